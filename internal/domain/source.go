package domain

import "time"

// Health is the traffic-light state of a polled source.
type Health string

const (
	HealthGreen  Health = "green"
	HealthYellow Health = "yellow"
	HealthRed    Health = "red"
)

// BaselineState tracks how far a source's change detection has progressed.
type BaselineState string

const (
	BaselineUninitialized BaselineState = "uninitialized"
	BaselineBaselined     BaselineState = "baselined"
	BaselineActive        BaselineState = "active"
)

// Source is a watched signal source: a wallet, a sports tag, a trading pair or
// a live-score league, depending on the strategy polling it.
type Source struct {
	ID                  string        `json:"id"`
	Nickname            string        `json:"nickname"`
	Strategy            string        `json:"strategy"`
	Enabled             bool          `json:"enabled"`
	Health              Health        `json:"health"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastPollAt          *time.Time    `json:"last_poll_at,omitempty"`
	LastSuccessAt       *time.Time    `json:"last_success_at,omitempty"`
	NextPollIn          time.Duration `json:"next_poll_in"`
	LastError           string        `json:"last_error,omitempty"`
	Baseline            BaselineState `json:"baseline"`
	AddedAt             time.Time     `json:"added_at"`
	Stats               SourceStats   `json:"stats"`
}

// SourceStats aggregates the closed paper trades attributed to one source.
type SourceStats struct {
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	Pushes   int     `json:"pushes"`
	TotalPnL float64 `json:"total_pnl"`
}

// WinRate returns wins over decided trades as a percentage.
func (s SourceStats) WinRate() float64 {
	decided := s.Wins + s.Losses
	if decided == 0 {
		return 0
	}
	return float64(s.Wins) / float64(decided) * 100
}
