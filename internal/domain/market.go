package domain

import "time"

// Market is the subset of a Polymarket market the strategies read.
type Market struct {
	ID            string
	Question      string
	Slug          string
	Outcomes      [2]string // e.g. ["Yes","No"]
	TokenIDs      [2]string // CLOB token IDs for the two outcomes
	OutcomePrices [2]float64
	BestBid       float64
	BestAsk       float64
	Volume        float64
	Liquidity     float64
	Active        bool
	Closed        bool
	EndDate       *time.Time
}

// Mark is a fresh price for an open exposure. When Resolved is set, Price is
// the payout the position should be closed at.
type Mark struct {
	Price    float64
	Resolved bool
}

// WalletPosition is one holding reported for a watched wallet.
type WalletPosition struct {
	Asset       string  `json:"asset"` // CLOB token ID, the diff identity
	ConditionID string  `json:"condition_id"`
	Title       string  `json:"title"`
	Outcome     string  `json:"outcome"`
	Size        float64 `json:"size"`
	AvgPrice    float64 `json:"avg_price"`
	CurPrice    float64 `json:"cur_price"`
	Redeemable  bool    `json:"redeemable"`
}
