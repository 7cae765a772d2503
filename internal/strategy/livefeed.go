package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/paperbot/internal/baseline"
	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/validator"
)

// LiveConfig tunes live-event trading.
type LiveConfig struct {
	MinEdgePct float64
	// EntryWindow is how long after detection an event may still be traded.
	EntryWindow    time.Duration
	RedCardShift   float64
	MatchThreshold float64
	Edge           EdgeConfig
}

// LiveEvents trades match-winner markets right after a goal or red card,
// when the score-implied probability and the market disagree. A source is a
// league ID of the score feed.
type LiveEvents struct {
	cfg      LiveConfig
	fixtures domain.FixtureFeed
	search   domain.MarketSearcher
	prices   domain.TokenPricer
	edges    *EdgeTracker
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	differs map[string]*baseline.Differ[domain.Fixture]
}

// NewLiveEvents creates the live-event strategy.
func NewLiveEvents(cfg LiveConfig, fixtures domain.FixtureFeed, search domain.MarketSearcher, prices domain.TokenPricer, logger *slog.Logger) *LiveEvents {
	if cfg.MinEdgePct <= 0 {
		cfg.MinEdgePct = 3
	}
	if cfg.EntryWindow <= 0 {
		cfg.EntryWindow = 45 * time.Second
	}
	if cfg.RedCardShift <= 0 {
		cfg.RedCardShift = 0.12
	}
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = 0.5
	}
	return &LiveEvents{
		cfg:      cfg,
		fixtures: fixtures,
		search:   search,
		prices:   prices,
		edges:    NewEdgeTracker(cfg.Edge, prices, logger),
		logger:   logger.With(slog.String("component", "live_events")),
		now:      func() time.Time { return time.Now().UTC() },
		differs:  make(map[string]*baseline.Differ[domain.Fixture]),
	}
}

// Name implements Strategy.
func (l *LiveEvents) Name() string { return "livefeed" }

// NormalizeSource accepts a numeric league ID.
func (l *LiveEvents) NormalizeSource(id string) (string, error) {
	id = strings.TrimSpace(id)
	if n, err := strconv.Atoi(id); err != nil || n <= 0 {
		return "", fmt.Errorf("livefeed: %q is not a league id: %w", id, domain.ErrInvalidSource)
	}
	return id, nil
}

func (l *LiveEvents) differ(sourceID string) *baseline.Differ[domain.Fixture] {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.differs[sourceID]
	if !ok {
		d = baseline.New(
			func(f domain.Fixture) string { return f.ID },
			func(a, b domain.Fixture) bool {
				return a.HomeScore == b.HomeScore && a.AwayScore == b.AwayScore &&
					a.RedCards == b.RedCards && a.Status == b.Status
			},
		)
		l.differs[sourceID] = d
	}
	return d
}

// Classify derives the live events between two observations of a fixture.
func Classify(prev, cur domain.Fixture, at time.Time) []domain.LiveEvent {
	var out []domain.LiveEvent
	if cur.HomeScore+cur.AwayScore > prev.HomeScore+prev.AwayScore {
		out = append(out, domain.LiveEvent{Kind: domain.LiveGoal, Fixture: cur, DetectedAt: at})
	}
	if cur.RedCards > prev.RedCards {
		out = append(out, domain.LiveEvent{Kind: domain.LiveRedCard, Fixture: cur, DetectedAt: at})
	}
	return out
}

// Poll implements Strategy.
func (l *LiveEvents) Poll(ctx context.Context, src domain.Source, pf Portfolio) (domain.PollDebug, error) {
	epoch := pf.Epoch()
	fixtures, err := l.fixtures.LiveFixtures(ctx, src.ID)
	if err != nil {
		return domain.PollDebug{}, fmt.Errorf("livefeed: fixtures: %w", err)
	}

	d := l.differ(src.ID)
	prev := make(map[string]domain.Fixture, len(fixtures))
	for _, f := range fixtures {
		if p, ok := d.Previous(f.ID); ok {
			prev[f.ID] = p
		}
	}
	diff := d.Apply(fixtures)
	dbg := domain.PollDebug{
		Items:     len(fixtures),
		New:       len(diff.New),
		Closed:    len(diff.Closed),
		Updated:   len(diff.Updated),
		Baselined: diff.Baselined,
	}
	if diff.Baselined {
		return dbg, nil
	}

	now := l.now()
	for _, f := range diff.New {
		pf.Notify(domain.EventLive, domain.LiveEvent{Kind: domain.LiveMatchStart, Fixture: f, DetectedAt: now})
	}
	for _, f := range diff.Closed {
		pf.Notify(domain.EventLive, domain.LiveEvent{Kind: domain.LiveMatchEnd, Fixture: f, DetectedAt: now})
	}
	for _, f := range diff.Updated {
		for _, ev := range Classify(prev[f.ID], f, now) {
			dbg.Candidates++
			pf.Notify(domain.EventLive, ev)
			if err := l.trade(ctx, ev, src, epoch, pf); err != nil {
				return dbg, err
			}
		}
	}
	return dbg, nil
}

func (l *LiveEvents) trade(ctx context.Context, ev domain.LiveEvent, src domain.Source, epoch uint64, pf Portfolio) error {
	f := ev.Fixture
	markets, err := l.search.SearchMarkets(ctx, f.HomeTeam+" "+f.AwayTeam)
	if err != nil {
		l.logger.Warn("livefeed: market search failed",
			slog.String("fixture", f.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	var best domain.Market
	bestScore := 0.0
	for _, m := range markets {
		if !m.Active || m.Closed || m.TokenIDs[0] == "" {
			continue
		}
		if s := MatchScore(m.Question, f.HomeTeam, f.AwayTeam); s > bestScore {
			best, bestScore = m, s
		}
	}
	if bestScore < l.cfg.MatchThreshold {
		l.logger.Debug("livefeed: no market matched",
			slog.String("fixture", f.ID),
			slog.Float64("best_score", bestScore),
		)
		return nil
	}

	now := l.now()
	if age := now.Sub(ev.DetectedAt); age > l.cfg.EntryWindow {
		l.logger.Info("livefeed: entry window missed",
			slog.String("fixture", f.ID),
			slog.Duration("age", age),
		)
		return nil
	}

	probs := FairProbs(f.HomeScore, f.AwayScore, f.Minute, ev.Kind == domain.LiveRedCard, l.cfg.RedCardShift)
	fair := probs.of(classifySide(best.Question, f.HomeTeam, f.AwayTeam))
	price := best.BestAsk
	dec := validator.FairValue(fair, price, l.cfg.MinEdgePct)

	opp := domain.Opportunity{
		SourceID:   src.ID,
		MarketID:   best.ID,
		Question:   best.Question,
		Side:       "Yes",
		EdgePct:    dec.EdgePct,
		Price:      price,
		DetectedAt: ev.DetectedAt,
		Detail: map[string]string{
			"event":   string(ev.Kind),
			"score":   fmt.Sprintf("%d-%d", f.HomeScore, f.AwayScore),
			"minute":  strconv.Itoa(f.Minute),
			"fair":    strconv.FormatFloat(fair, 'f', 4, 64),
			"fixture": f.ID,
		},
	}
	if !dec.Accepted {
		pf.Reject(opp, dec.Reason)
		return nil
	}

	c := domain.Candidate{
		Key:        best.TokenIDs[0],
		SourceID:   src.ID,
		SourceName: src.Nickname,
		MarketID:   best.ID,
		Question:   best.Question,
		Side:       "Yes",
		EntryPrice: price,
		EdgePct:    dec.EdgePct,
		Settlement: domain.SettleOnResolution,
		DetectedAt: ev.DetectedAt,
		Epoch:      epoch,
	}
	if dec.EdgePct < 0 {
		// the market overprices YES; buy NO against the best bid
		if best.TokenIDs[1] == "" || best.BestBid <= 0 || best.BestBid >= 1 {
			pf.Reject(opp, validator.ReasonInvalidQuote)
			return nil
		}
		c.Key = best.TokenIDs[1]
		c.Side = "No"
		c.EntryPrice = 1 - best.BestBid
		c.EdgePct = -dec.EdgePct
	}

	l.logger.Info("livefeed: fair value edge",
		slog.String("fixture", f.ID),
		slog.String("event", string(ev.Kind)),
		slog.String("market", best.ID),
		slog.String("side", c.Side),
		slog.Float64("fair", fair),
		slog.Float64("price", price),
		slog.Float64("edge_pct", c.EdgePct),
	)
	l.edges.Track(ev, src.ID, c.Key, c.EntryPrice)
	_, err = pf.Admit(c)
	return err
}

// Edges exposes the edge-latency tracker.
func (l *LiveEvents) Edges() *EdgeTracker { return l.edges }

// RunBackground implements Background by running the edge tracker.
func (l *LiveEvents) RunBackground(ctx context.Context, publish func(domain.EventType, any)) error {
	return l.edges.Run(ctx, publish)
}

// EdgeReport implements EdgeReporter.
func (l *LiveEvents) EdgeReport() domain.EdgeReport { return l.edges.Report() }

// Marks implements Strategy using token prices.
func (l *LiveEvents) Marks(ctx context.Context, open []domain.Position) (map[string]domain.Mark, error) {
	ids := make([]string, 0, len(open))
	for _, p := range open {
		ids = append(ids, p.Key)
	}
	marks, err := l.prices.TokenPrices(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("livefeed: token prices: %w", err)
	}
	return marks, nil
}

// Baseline implements Strategy.
func (l *LiveEvents) Baseline(sourceID string) domain.BaselineState {
	l.mu.Lock()
	d, ok := l.differs[sourceID]
	l.mu.Unlock()
	if !ok {
		return domain.BaselineUninitialized
	}
	return d.State()
}

// ResetBaselines implements Strategy.
func (l *LiveEvents) ResetBaselines() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range l.differs {
		d.Reset()
	}
}

// Forget implements Strategy.
func (l *LiveEvents) Forget(sourceID string) {
	l.mu.Lock()
	delete(l.differs, sourceID)
	l.mu.Unlock()
	l.edges.Forget(sourceID)
}

var (
	_ Strategy     = (*LiveEvents)(nil)
	_ Background   = (*LiveEvents)(nil)
	_ EdgeReporter = (*LiveEvents)(nil)
)
