package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// EdgeConfig tunes edge-latency tracking.
type EdgeConfig struct {
	// PollInterval is how often pending edges are re-priced.
	PollInterval time.Duration
	// MoveThreshold is the absolute price change that counts as the market
	// having repriced.
	MoveThreshold float64
	// MaxWindow is how long an edge is tracked before it is given up.
	MaxWindow time.Duration
	// StatsInterval is how often edge_stats is published.
	StatsInterval time.Duration
	// Keep caps the retained measurements.
	Keep int
}

func (c EdgeConfig) withDefaults() EdgeConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.MoveThreshold <= 0 {
		c.MoveThreshold = 0.02
	}
	if c.MaxWindow <= 0 {
		c.MaxWindow = 2 * time.Minute
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = time.Minute
	}
	if c.Keep <= 0 {
		c.Keep = 200
	}
	return c
}

type pendingEdge struct {
	id       string
	sourceID string
	kind     domain.LiveEventKind
	fixture  string
	token    string
	price    float64
	at       time.Time
}

// EdgeTracker measures how long a market takes to move after a live event
// we traded on. Each tracked token is re-priced until it moves by
// MoveThreshold or MaxWindow passes.
type EdgeTracker struct {
	cfg    EdgeConfig
	prices domain.TokenPricer
	logger *slog.Logger
	now    func() time.Time

	mu           sync.Mutex
	pending      map[string]pendingEdge
	measurements []domain.EdgeMeasurement // oldest first
	expired      int
}

// NewEdgeTracker creates an EdgeTracker pricing tokens through prices.
func NewEdgeTracker(cfg EdgeConfig, prices domain.TokenPricer, logger *slog.Logger) *EdgeTracker {
	return &EdgeTracker{
		cfg:     cfg.withDefaults(),
		prices:  prices,
		logger:  logger.With(slog.String("component", "edge_tracker")),
		now:     func() time.Time { return time.Now().UTC() },
		pending: make(map[string]pendingEdge),
	}
}

// Track starts measuring the reaction of token to ev. price is the market
// price at detection. An event is tracked once.
func (t *EdgeTracker) Track(ev domain.LiveEvent, sourceID, token string, price float64) {
	id := fmt.Sprintf("%s_%s_%d", ev.Fixture.ID, ev.Kind, ev.Fixture.Minute)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[id]; ok {
		return
	}
	t.pending[id] = pendingEdge{
		id:       id,
		sourceID: sourceID,
		kind:     ev.Kind,
		fixture:  ev.Fixture.ID,
		token:    token,
		price:    price,
		at:       ev.DetectedAt,
	}
	t.logger.Debug("edge: tracking", slog.String("event", id), slog.String("token", token), slog.Float64("price", price))
}

// Forget stops tracking every edge raised by sourceID.
func (t *EdgeTracker) Forget(sourceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, p := range t.pending {
		if p.sourceID == sourceID {
			delete(t.pending, id)
		}
	}
}

// Check expires stale edges, re-prices the rest and returns the edges that
// moved.
func (t *EdgeTracker) Check(ctx context.Context) ([]domain.EdgeMeasurement, error) {
	now := t.now()
	t.mu.Lock()
	tokens := make([]string, 0, len(t.pending))
	seen := make(map[string]bool, len(t.pending))
	for id, p := range t.pending {
		if now.Sub(p.at) > t.cfg.MaxWindow {
			delete(t.pending, id)
			t.expired++
			t.logger.Debug("edge: expired without a price move", slog.String("event", id))
			continue
		}
		if !seen[p.token] {
			seen[p.token] = true
			tokens = append(tokens, p.token)
		}
	}
	t.mu.Unlock()
	if len(tokens) == 0 {
		return nil, nil
	}

	marks, err := t.prices.TokenPrices(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("edge: token prices: %w", err)
	}

	movedAt := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	var moved []domain.EdgeMeasurement
	for id, p := range t.pending {
		m, ok := marks[p.token]
		if !ok {
			continue
		}
		delta := m.Price - p.price
		if math.Abs(delta) < t.cfg.MoveThreshold-1e-9 {
			continue
		}
		meas := domain.EdgeMeasurement{
			EventID:          id,
			EventKind:        p.kind,
			FixtureID:        p.fixture,
			TokenID:          p.token,
			Latency:          movedAt.Sub(p.at),
			PriceAtDetection: p.price,
			PriceAfterMove:   m.Price,
			PriceDelta:       math.Round(delta*1e4) / 1e4,
			DetectedAt:       p.at,
			MovedAt:          movedAt,
		}
		delete(t.pending, id)
		t.measurements = append(t.measurements, meas)
		moved = append(moved, meas)
		t.logger.Info("edge: market repriced",
			slog.String("event", id),
			slog.Duration("latency", meas.Latency),
			slog.Float64("delta", meas.PriceDelta),
		)
	}
	if over := len(t.measurements) - t.cfg.Keep; over > 0 {
		t.measurements = append(t.measurements[:0:0], t.measurements[over:]...)
	}
	sort.Slice(moved, func(i, j int) bool { return moved[i].DetectedAt.Before(moved[j].DetectedAt) })
	return moved, nil
}

// Stats summarizes the retained measurements.
func (t *EdgeTracker) Stats() domain.EdgeStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statsLocked()
}

func (t *EdgeTracker) statsLocked() domain.EdgeStats {
	st := domain.EdgeStats{
		Measured: len(t.measurements),
		Pending:  len(t.pending),
		Expired:  t.expired,
	}
	n := len(t.measurements)
	if n == 0 {
		return st
	}
	lat := make([]time.Duration, n)
	var sum time.Duration
	for i, m := range t.measurements {
		lat[i] = m.Latency
		sum += m.Latency
	}
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
	st.AvgLatency = sum / time.Duration(n)
	st.P50Latency = lat[n/2]
	st.P95Latency = lat[min(int(float64(n)*0.95), n-1)]
	return st
}

// Report returns the stats and the retained measurements, newest first.
func (t *EdgeTracker) Report() domain.EdgeReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.EdgeMeasurement, len(t.measurements))
	for i, m := range t.measurements {
		out[len(out)-1-i] = m
	}
	return domain.EdgeReport{Stats: t.statsLocked(), Measurements: out}
}

// Run checks pending edges every PollInterval and publishes each measurement
// as edge_measurement and, every StatsInterval, the summary as edge_stats.
func (t *EdgeTracker) Run(ctx context.Context, publish func(domain.EventType, any)) error {
	check := time.NewTicker(t.cfg.PollInterval)
	defer check.Stop()
	stats := time.NewTicker(t.cfg.StatsInterval)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-check.C:
			moved, err := t.Check(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				t.logger.Debug("edge: check failed", slog.String("error", err.Error()))
				continue
			}
			for _, m := range moved {
				publish(domain.EventEdge, m)
			}
		case <-stats.C:
			if st := t.Stats(); st.Measured > 0 || st.Pending > 0 {
				publish(domain.EventEdgeStats, st)
			}
		}
	}
}
