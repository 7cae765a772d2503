package domain

import "time"

// OpportunityStatus is the terminal outcome of one detected opportunity.
type OpportunityStatus string

const (
	OpportunityRejected  OpportunityStatus = "rejected"
	OpportunityAdmitted  OpportunityStatus = "admitted"
	OpportunityQueued    OpportunityStatus = "queued"
	OpportunityDuplicate OpportunityStatus = "duplicate"
	OpportunityPaused    OpportunityStatus = "paused"
	OpportunityStale     OpportunityStatus = "stale"
	OpportunityFailed    OpportunityStatus = "failed"
)

// Opportunity is an ephemeral detection. It lives only until the validator
// and the portfolio have decided what to do with it.
type Opportunity struct {
	SourceID   string            `json:"source_id"`
	MarketID   string            `json:"market_id"`
	Question   string            `json:"question,omitempty"`
	Side       string            `json:"side"`
	EdgePct    float64           `json:"edge_pct"`
	Price      float64           `json:"price"`
	DetectedAt time.Time         `json:"detected_at"`
	Detail     map[string]string `json:"detail,omitempty"`
}

// Fixture is the live state of one match in a score feed.
type Fixture struct {
	ID        string    `json:"id"`
	League    string    `json:"league"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	HomeScore int       `json:"home_score"`
	AwayScore int       `json:"away_score"`
	Minute    int       `json:"minute"`
	RedCards  int       `json:"red_cards"`
	Status    string    `json:"status"`
	SeenAt    time.Time `json:"seen_at"`
}
