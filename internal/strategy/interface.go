package strategy

import (
	"context"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/portfolio"
	"github.com/alanyoungcy/paperbot/internal/validator"
)

// Strategy turns one poll of a source into admissions. Implementations hold
// only detection state (baselines, last quotes); positions live in the
// portfolio handed to Poll.
type Strategy interface {
	Name() string
	// NormalizeSource validates and canonicalizes a source ID supplied by an
	// operator. It returns domain.ErrInvalidSource for unusable IDs.
	NormalizeSource(id string) (string, error)
	// Poll fetches, diffs, validates and admits for one source, in that
	// order, within the call.
	Poll(ctx context.Context, src domain.Source, pf Portfolio) (domain.PollDebug, error)
	// Marks prices the open positions, keyed by position key. A resolved
	// mark closes the position at its payout.
	Marks(ctx context.Context, open []domain.Position) (map[string]domain.Mark, error)
	Baseline(sourceID string) domain.BaselineState
	ResetBaselines()
	Forget(sourceID string)
}

// Background is implemented by strategies with work that runs beside the
// poll loop for the life of the bot.
type Background interface {
	RunBackground(ctx context.Context, publish func(domain.EventType, any)) error
}

// EdgeReporter is implemented by strategies that measure how fast markets
// react to what they detect.
type EdgeReporter interface {
	EdgeReport() domain.EdgeReport
}

// Analyzer is implemented by strategies that can profile a source's own
// trading history.
type Analyzer interface {
	Analyze(ctx context.Context, sourceID string) (domain.WalletAnalysis, error)
}

// Portfolio is the admission surface a Strategy sees during a poll.
type Portfolio interface {
	// Epoch must be read before fetching and copied into every candidate.
	Epoch() uint64
	Admit(c domain.Candidate) (portfolio.Admission, error)
	// CloseKey closes the position holding key if sourceID opened it.
	CloseKey(sourceID, key string, exit float64, reason domain.CloseReason) (domain.Position, bool, error)
	Mark(prices map[string]float64) int
	// Reject records a validator rejection.
	Reject(o domain.Opportunity, reason validator.Reason)
	// Notify publishes a strategy-specific event such as live_event.
	Notify(t domain.EventType, payload any)
}
