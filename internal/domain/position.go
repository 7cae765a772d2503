package domain

import "time"

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// TradeResult classifies a closed position by the sign of its realized P&L.
type TradeResult string

const (
	ResultWin  TradeResult = "win"
	ResultLoss TradeResult = "loss"
	ResultPush TradeResult = "push"
)

// CloseReason records why a position left its slot.
type CloseReason string

const (
	CloseResolved      CloseReason = "resolved"
	CloseSourceExit    CloseReason = "source_exit"
	CloseSettled       CloseReason = "settled"
	CloseAdmin         CloseReason = "admin"
	CloseSourceRemoved CloseReason = "source_removed"
	CloseReset         CloseReason = "reset"
)

// Settlement says when a paper position is expected to close.
type Settlement string

const (
	// SettleOnResolution positions stay open until the market resolves or
	// the source exits them.
	SettleOnResolution Settlement = "resolution"
	// SettleInstant positions are hedged at entry and close at 1.00 as soon
	// as they are opened.
	SettleInstant Settlement = "instant"
)

// Candidate is an accepted opportunity waiting to be admitted into a slot.
// Key identifies the exposure for dedupe and price marking: a token ID for
// single-outcome positions, a market ID for paired arbitrage.
type Candidate struct {
	Key        string     `json:"key"`
	SourceID   string     `json:"source_id"`
	SourceName string     `json:"source_name"`
	MarketID   string     `json:"market_id"`
	Question   string     `json:"question"`
	Side       string     `json:"side"`
	EntryPrice float64    `json:"entry_price"`
	EdgePct    float64    `json:"edge_pct"`
	Settlement Settlement `json:"settlement"`
	DetectedAt time.Time  `json:"detected_at"`
	// Epoch is the portfolio epoch observed when the poll that produced this
	// candidate started. Candidates from before a reset are refused.
	Epoch uint64 `json:"-"`
}

// QueueEntry is a candidate parked in the overflow queue.
type QueueEntry struct {
	ID        string    `json:"id"`
	Candidate Candidate `json:"candidate"`
	SourceID  string    `json:"source_id"`
	QueuedAt  time.Time `json:"queued_at"`
}

// Position is a simulated holding occupying one portfolio slot while open.
type Position struct {
	ID           string         `json:"id"`
	Key          string         `json:"key"`
	SourceID     string         `json:"source_id"`
	SourceName   string         `json:"source_name"`
	MarketID     string         `json:"market_id"`
	Question     string         `json:"question"`
	Side         string         `json:"side"`
	Slot         int            `json:"slot"`
	EntryPrice   float64        `json:"entry_price"`
	CurrentPrice float64        `json:"current_price"`
	SizeUSDC     float64        `json:"size_usdc"`
	Shares       float64        `json:"shares"`
	EdgePct      float64        `json:"edge_pct"`
	Settlement   Settlement     `json:"settlement"`
	Status       PositionStatus `json:"status"`
	OpenedAt     time.Time      `json:"opened_at"`
	ClosedAt     *time.Time     `json:"closed_at,omitempty"`
	ExitPrice    *float64       `json:"exit_price,omitempty"`
	RealizedPnL  float64        `json:"realized_pnl"`
	Result       TradeResult    `json:"result,omitempty"`
	CloseReason  CloseReason    `json:"close_reason,omitempty"`
}

// UnrealizedPnL marks an open position against its current price. Closed
// positions carry no unrealized P&L.
func (p Position) UnrealizedPnL() float64 {
	if p.Status != PositionStatusOpen {
		return 0
	}
	return p.Shares * (p.CurrentPrice - p.EntryPrice)
}
