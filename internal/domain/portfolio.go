package domain

import "time"

// Overview is the headline ledger of one strategy's paper portfolio.
type Overview struct {
	Strategy        string    `json:"strategy"`
	StartingBalance float64   `json:"starting_balance"`
	Balance         float64   `json:"balance"`
	RealizedPnL     float64   `json:"realized_pnl"`
	UnrealizedPnL   float64   `json:"unrealized_pnl"`
	TotalPnL        float64   `json:"total_pnl"`
	SlotsTotal      int       `json:"slots_total"`
	SlotsUsed       int       `json:"slots_used"`
	SlotBudget      float64   `json:"slot_budget"`
	QueueLen        int       `json:"queue_len"`
	Committed       float64   `json:"committed"`
	Wins            int       `json:"wins"`
	Losses          int       `json:"losses"`
	Pushes          int       `json:"pushes"`
	Fault           string    `json:"fault,omitempty"`
	StartedAt       time.Time `json:"started_at"`
}

// PortfolioSnapshot is a consistent point-in-time copy of a portfolio.
type PortfolioSnapshot struct {
	Overview  Overview     `json:"overview"`
	Positions []Position   `json:"positions"`
	Queue     []QueueEntry `json:"queue"`
	Resolved  []Position   `json:"resolved"`
}

// StrategySnapshot adds source health to a portfolio snapshot. It is what a
// newly connected dashboard needs to render a strategy tab.
type StrategySnapshot struct {
	PortfolioSnapshot
	Sources []Source `json:"sources"`
	// Edge is set for strategies that measure market reaction latency.
	Edge *EdgeReport `json:"edge,omitempty"`
}

// Snapshot is the full state across every running strategy.
type Snapshot struct {
	Strategies []StrategySnapshot `json:"strategies"`
	TakenAt    time.Time          `json:"taken_at"`
}
