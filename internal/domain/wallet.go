package domain

import "time"

// Trade sides as reported in wallet activity.
const (
	TradeBuy  = "BUY"
	TradeSell = "SELL"
)

// WalletTrade is one entry of a watched wallet's trade history.
type WalletTrade struct {
	Side      string    `json:"side"` // TradeBuy or TradeSell
	Outcome   string    `json:"outcome"`
	Title     string    `json:"title"`
	Price     float64   `json:"price"`
	USDCSize  float64   `json:"usdc_size"`
	Timestamp time.Time `json:"timestamp"`
}

// SizingStats describes the USDC size of a wallet's buys.
type SizingStats struct {
	Count     int            `json:"count"`
	Min       float64        `json:"min"`
	Max       float64        `json:"max"`
	Mean      float64        `json:"mean"`
	Median    float64        `json:"median"`
	P25       float64        `json:"p25"`
	P75       float64        `json:"p75"`
	P95       float64        `json:"p95"`
	TotalUSDC float64        `json:"total_usdc"`
	Buckets   map[string]int `json:"buckets"`
}

// PriceStats describes the entry prices of a wallet's buys.
type PriceStats struct {
	Mean    float64        `json:"mean"`
	Median  float64        `json:"median"`
	Buckets map[string]int `json:"buckets"`
}

// OutcomeSplit counts Yes against No buys.
type OutcomeSplit struct {
	YesCount int     `json:"yes_count"`
	NoCount  int     `json:"no_count"`
	YesPct   float64 `json:"yes_pct"`
	NoPct    float64 `json:"no_pct"`
}

// TimingStats describes when a wallet trades.
type TimingStats struct {
	FirstTrade          time.Time `json:"first_trade"`
	LastTrade           time.Time `json:"last_trade"`
	DaysWithTrades      int       `json:"days_with_trades"`
	TradesLast30d       int       `json:"trades_last_30d"`
	AvgTradesPerDay     float64   `json:"avg_trades_per_day"`
	MostActiveDayTrades int       `json:"most_active_day_trades"`
}

// WalletAnalysis summarizes how a watched wallet trades. Sections with no
// data are nil.
type WalletAnalysis struct {
	Address         string         `json:"address"`
	FetchedAt       time.Time      `json:"fetched_at"`
	Trades          int            `json:"trades"`
	BuyTrades       int            `json:"buy_trades"`
	SellTrades      int            `json:"sell_trades"`
	Sizing          *SizingStats   `json:"sizing,omitempty"`
	Prices          *PriceStats    `json:"prices,omitempty"`
	Outcomes        OutcomeSplit   `json:"outcomes"`
	Categories      map[string]int `json:"categories"`
	ActivePositions int            `json:"active_positions"`
	RedeemableWins  int            `json:"redeemable_wins"`
	Timing          *TimingStats   `json:"timing,omitempty"`
}
