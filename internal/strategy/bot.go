package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/eventbus"
	"github.com/alanyoungcy/paperbot/internal/metrics"
	"github.com/alanyoungcy/paperbot/internal/poller"
	"github.com/alanyoungcy/paperbot/internal/portfolio"
	"github.com/alanyoungcy/paperbot/internal/validator"
)

const defaultMarkInterval = 30 * time.Second

// Bus is the part of the event bus a Bot needs.
type Bus interface {
	domain.EventPublisher
	RegisterSnapshot(name string, fn eventbus.SnapshotFunc)
}

// BotConfig wires one strategy to its portfolio and poller.
type BotConfig struct {
	Portfolio    portfolio.Config
	Poll         poller.Config
	MarkInterval time.Duration
}

// Bot runs one strategy: its sources, its portfolio and its mark loop.
type Bot struct {
	name   string
	cfg    BotConfig
	strat  Strategy
	pf     *portfolio.Manager
	sched  *poller.Scheduler
	bus    Bus
	logger *slog.Logger
	now    func() time.Time
}

// NewBot creates a Bot and registers its snapshot with bus.
func NewBot(cfg BotConfig, strat Strategy, bus Bus, logger *slog.Logger) *Bot {
	name := strat.Name()
	cfg.Portfolio.Strategy = name
	if cfg.MarkInterval <= 0 {
		cfg.MarkInterval = defaultMarkInterval
	}
	b := &Bot{
		name:   name,
		cfg:    cfg,
		strat:  strat,
		bus:    bus,
		logger: logger.With(slog.String("component", "bot"), slog.String("strategy", name)),
		now:    func() time.Time { return time.Now().UTC() },
	}
	b.pf = portfolio.NewManager(cfg.Portfolio, bus, logger)
	b.pf.OnReset(strat.ResetBaselines)
	b.sched = poller.NewScheduler(name, cfg.Poll, b, bus, logger)
	bus.RegisterSnapshot(name, b.Snapshot)
	return b
}

// Name returns the strategy name.
func (b *Bot) Name() string { return b.name }

// Portfolio exposes the bot's portfolio manager.
func (b *Bot) Portfolio() *portfolio.Manager { return b.pf }

// Poll implements poller.Target.
func (b *Bot) Poll(ctx context.Context, src domain.Source) error {
	start := b.now()
	dbg, err := b.strat.Poll(ctx, src, &sink{bot: b})
	if err != nil {
		return fmt.Errorf("%s: poll %s: %w", b.name, src.ID, err)
	}
	dbg.SourceID = src.ID
	dbg.Took = b.now().Sub(start)
	b.publish(domain.EventPollDebug, dbg)
	return nil
}

// Baseline implements poller.Target.
func (b *Bot) Baseline(sourceID string) domain.BaselineState {
	return b.strat.Baseline(sourceID)
}

// AddSource starts watching id. The ID is normalized by the strategy first.
func (b *Bot) AddSource(id, nickname string) (domain.Source, error) {
	norm, err := b.strat.NormalizeSource(id)
	if err != nil {
		return domain.Source{}, fmt.Errorf("%s: add source %q: %w", b.name, id, err)
	}
	if nickname == "" {
		nickname = norm
	}
	src, err := b.sched.Add(domain.Source{ID: norm, Nickname: nickname, Enabled: true})
	if err != nil {
		return domain.Source{}, err
	}
	b.logger.Info("bot: source added", slog.String("source", norm), slog.String("nickname", nickname))
	b.publish(domain.EventSources, b.Sources())
	return src, nil
}

// RemoveSource stops polling id, waits for an in-flight poll, discards the
// source's baseline and closes or drops everything it still holds in the
// portfolio. id may be given in any form the strategy normalizes.
func (b *Bot) RemoveSource(id string) (domain.Source, error) {
	id = b.sourceID(id)
	src, err := b.sched.Remove(id)
	if err != nil {
		return domain.Source{}, err
	}
	b.strat.Forget(id)
	closed := b.pf.DropSource(id)
	b.logger.Info("bot: source removed", slog.String("source", id), slog.Int("closed_positions", len(closed)))
	b.publish(domain.EventSources, b.Sources())
	return src, nil
}

// SetEnabled pauses or resumes a source. A paused source neither polls nor
// admits; its open positions are kept.
func (b *Bot) SetEnabled(id string, enabled bool) (domain.Source, error) {
	id = b.sourceID(id)
	if !enabled {
		// pause admissions first so a poll already in flight cannot admit
		b.pf.SetSourcePaused(id, true)
	}
	src, err := b.sched.SetEnabled(id, enabled)
	if err != nil {
		b.pf.SetSourcePaused(id, false)
		return domain.Source{}, fmt.Errorf("%s: set enabled %s: %w", b.name, id, err)
	}
	if enabled {
		b.pf.SetSourcePaused(id, false)
	}
	if _, ok := b.sched.Get(id); !ok {
		// removed concurrently; its pause must not outlive it
		b.pf.SetSourcePaused(id, false)
		return domain.Source{}, fmt.Errorf("%s: set enabled %s: %w", b.name, id, domain.ErrNotFound)
	}
	b.publish(domain.EventSourceStatus, b.withStats(src))
	return b.withStats(src), nil
}

// sourceID maps an operator-supplied ID onto the stored one. IDs the
// strategy cannot normalize are looked up as given and simply miss.
func (b *Bot) sourceID(id string) string {
	if norm, err := b.strat.NormalizeSource(id); err == nil {
		return norm
	}
	return id
}

// Source returns one source with its trade stats.
func (b *Bot) Source(id string) (domain.Source, error) {
	id = b.sourceID(id)
	src, ok := b.sched.Get(id)
	if !ok {
		return domain.Source{}, fmt.Errorf("%s: source %s: %w", b.name, id, domain.ErrNotFound)
	}
	return b.withStats(src), nil
}

// SourceAnalysis profiles the trading history of a source. It returns
// domain.ErrNotFound for unknown sources and strategies without analysis.
func (b *Bot) SourceAnalysis(ctx context.Context, id string) (domain.WalletAnalysis, error) {
	id = b.sourceID(id)
	if _, ok := b.sched.Get(id); !ok {
		return domain.WalletAnalysis{}, fmt.Errorf("%s: source %s: %w", b.name, id, domain.ErrNotFound)
	}
	an, ok := b.strat.(Analyzer)
	if !ok {
		return domain.WalletAnalysis{}, fmt.Errorf("%s: source analysis: %w", b.name, domain.ErrNotFound)
	}
	return an.Analyze(ctx, id)
}

// Sources lists every source with its trade stats.
func (b *Bot) Sources() []domain.Source {
	list := b.sched.List()
	for i := range list {
		list[i] = b.withStats(list[i])
	}
	return list
}

func (b *Bot) withStats(src domain.Source) domain.Source {
	src.Stats = b.pf.SourceStats(src.ID)
	return src
}

// Reset wipes the portfolio, re-baselines every source and re-announces the
// bot as freshly started.
func (b *Bot) Reset() portfolio.ResetResult {
	res := b.pf.Reset()
	b.publishInitialState()
	return res
}

// ClosePosition closes an open position at its current mark.
func (b *Bot) ClosePosition(id string) (domain.Position, error) {
	for _, p := range b.pf.OpenPositions() {
		if p.ID == id {
			return b.pf.Close(id, p.CurrentPrice, domain.CloseAdmin)
		}
	}
	return domain.Position{}, fmt.Errorf("%s: close position %s: %w", b.name, id, domain.ErrNotFound)
}

// Snapshot returns the bot's full state.
func (b *Bot) Snapshot() domain.StrategySnapshot {
	snap := domain.StrategySnapshot{
		PortfolioSnapshot: b.pf.Snapshot(),
		Sources:           b.Sources(),
	}
	if er, ok := b.strat.(EdgeReporter); ok {
		rep := er.EdgeReport()
		snap.Edge = &rep
	}
	return snap
}

// Run polls and marks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.publishInitialState()
	b.logger.Info("bot: started", slog.Int("sources", len(b.sched.List())))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.sched.Run(gctx) })
	g.Go(func() error { return b.markLoop(gctx) })
	if bg, ok := b.strat.(Background); ok {
		g.Go(func() error { return bg.RunBackground(gctx, b.publish) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (b *Bot) markLoop(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.MarkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.MarkOnce(ctx)
		}
	}
}

// MarkOnce refreshes prices of every open position and closes those whose
// market has resolved.
func (b *Bot) MarkOnce(ctx context.Context) {
	open := b.pf.OpenPositions()
	if len(open) == 0 {
		return
	}
	marks, err := b.strat.Marks(ctx, open)
	if err != nil {
		b.logger.Warn("bot: mark failed", slog.String("error", err.Error()))
		return
	}

	prices := make(map[string]float64, len(marks))
	for _, p := range open {
		m, ok := marks[p.Key]
		if !ok {
			continue
		}
		if !m.Resolved {
			prices[p.Key] = m.Price
			continue
		}
		if _, err := b.pf.Close(p.ID, m.Price, domain.CloseResolved); err != nil && !errors.Is(err, domain.ErrNotFound) {
			b.logger.Error("bot: close on resolution failed",
				slog.String("position", p.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if len(prices) > 0 {
		b.pf.Mark(prices)
	}
}

func (b *Bot) publishInitialState() {
	snap := b.pf.Snapshot()
	b.publish(domain.EventBotStart, domain.BotStart{Strategy: b.name, StartedAt: snap.Overview.StartedAt, Paper: true})
	b.publish(domain.EventOverview, snap.Overview)
	b.publish(domain.EventPositions, snap.Positions)
	b.publish(domain.EventQueue, snap.Queue)
	b.publish(domain.EventSources, b.Sources())
}

func (b *Bot) publish(t domain.EventType, payload any) {
	if err := b.bus.Publish(b.name, t, payload); err != nil {
		b.logger.Error("bot: publish failed",
			slog.String("type", string(t)),
			slog.String("error", err.Error()),
		)
	}
}

// sink is the Portfolio a strategy sees during a poll.
type sink struct {
	bot *Bot
}

func (s *sink) Epoch() uint64 { return s.bot.pf.Epoch() }

func (s *sink) Admit(c domain.Candidate) (portfolio.Admission, error) {
	return s.bot.pf.Admit(c)
}

func (s *sink) CloseKey(sourceID, key string, exit float64, reason domain.CloseReason) (domain.Position, bool, error) {
	return s.bot.pf.CloseKey(sourceID, key, exit, reason)
}

func (s *sink) Mark(prices map[string]float64) int { return s.bot.pf.Mark(prices) }

func (s *sink) Reject(o domain.Opportunity, reason validator.Reason) {
	metrics.Rejections.WithLabelValues(s.bot.name, string(reason)).Inc()
	s.bot.logger.Debug("bot: opportunity rejected",
		slog.String("source", o.SourceID),
		slog.String("market", o.MarketID),
		slog.String("reason", string(reason)),
		slog.Float64("edge_pct", o.EdgePct),
	)
	s.bot.publish(domain.EventOpportunity, domain.OpportunityEvent{
		Opportunity: o,
		Status:      domain.OpportunityRejected,
		Reason:      string(reason),
	})
}

func (s *sink) Notify(t domain.EventType, payload any) { s.bot.publish(t, payload) }

var (
	_ poller.Target = (*Bot)(nil)
	_ Portfolio     = (*sink)(nil)
)
