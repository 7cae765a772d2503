// Package paper simulates opening and closing positions and keeps the P&L
// ledger for one portfolio.
package paper

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// pnlScale rounds money to 1e-8 USDC so products like 50 * 0.6 land on the
// value a human would write down.
const pnlScale = 1e8

const defaultResolvedLimit = 200

// Sizer picks the USDC size of a new position. limit is
// min(slot budget, max trade size); results outside (0, limit] are clamped.
type Sizer func(c domain.Candidate, limit float64) float64

// FullSize spends the whole limit at the detected price.
func FullSize(_ domain.Candidate, limit float64) float64 { return limit }

// Config holds the sizing and retention parameters of an Engine.
type Config struct {
	Strategy      string
	SlotBudget    float64
	MaxTradeSize  float64
	Sizer         Sizer
	ResolvedLimit int
}

// Ledger is the cumulative record of closed trades.
type Ledger struct {
	RealizedPnL float64
	Wins        int
	Losses      int
	Pushes      int
}

// Engine holds open positions, the resolved feed and the ledger. It is not
// safe for concurrent use; portfolio.Manager serializes every call.
type Engine struct {
	cfg    Config
	bus    domain.EventPublisher
	logger *slog.Logger
	now    func() time.Time

	open     map[string]*domain.Position
	byKey    map[string]string
	resolved []domain.Position // newest first
	ledger   Ledger
	sources  map[string]domain.SourceStats
}

// NewEngine creates an Engine publishing to bus.
func NewEngine(cfg Config, bus domain.EventPublisher, logger *slog.Logger) *Engine {
	if cfg.Sizer == nil {
		cfg.Sizer = FullSize
	}
	if cfg.ResolvedLimit <= 0 {
		cfg.ResolvedLimit = defaultResolvedLimit
	}
	return &Engine{
		cfg:     cfg,
		bus:     bus,
		logger:  logger.With(slog.String("component", "paper_engine"), slog.String("strategy", cfg.Strategy)),
		now:     func() time.Time { return time.Now().UTC() },
		open:    make(map[string]*domain.Position),
		byKey:   make(map[string]string),
		sources: make(map[string]domain.SourceStats),
	}
}

// SizeLimit is the most a single position may commit.
func (e *Engine) SizeLimit() float64 {
	return math.Min(e.cfg.SlotBudget, e.cfg.MaxTradeSize)
}

// Open records a new position for c in slot and emits position_opened.
func (e *Engine) Open(c domain.Candidate, slot int) (domain.Position, error) {
	if c.EntryPrice <= 0 || c.EntryPrice >= 1 {
		return domain.Position{}, fmt.Errorf("paper: open %s at %.4f: %w", c.Key, c.EntryPrice, domain.ErrInvalidPrice)
	}
	if _, dup := e.byKey[c.Key]; dup {
		return domain.Position{}, fmt.Errorf("paper: open %s: %w", c.Key, domain.ErrAlreadyExists)
	}

	limit := e.SizeLimit()
	size := e.cfg.Sizer(c, limit)
	if size <= 0 || size > limit || math.IsNaN(size) {
		size = limit
	}

	settlement := c.Settlement
	if settlement == "" {
		settlement = domain.SettleOnResolution
	}
	pos := &domain.Position{
		ID:           uuid.NewString(),
		Key:          c.Key,
		SourceID:     c.SourceID,
		SourceName:   c.SourceName,
		MarketID:     c.MarketID,
		Question:     c.Question,
		Side:         c.Side,
		Slot:         slot,
		EntryPrice:   c.EntryPrice,
		CurrentPrice: c.EntryPrice,
		SizeUSDC:     size,
		Shares:       size / c.EntryPrice,
		EdgePct:      c.EdgePct,
		Settlement:   settlement,
		Status:       domain.PositionStatusOpen,
		OpenedAt:     e.now(),
	}
	e.open[pos.ID] = pos
	e.byKey[pos.Key] = pos.ID

	e.logger.Info("paper: position opened",
		slog.String("id", pos.ID),
		slog.String("key", pos.Key),
		slog.String("source", pos.SourceID),
		slog.Int("slot", slot),
		slog.Float64("entry", pos.EntryPrice),
		slog.Float64("size_usdc", pos.SizeUSDC),
	)
	e.publish(domain.EventPositionOpened, *pos)
	return *pos, nil
}

// Close settles an open position at exit and emits position_closed. The
// caller is responsible for freeing the slot.
func (e *Engine) Close(id string, exit float64, reason domain.CloseReason) (domain.Position, error) {
	pos, ok := e.open[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("paper: close %s: %w", id, domain.ErrNotFound)
	}
	if exit < 0 || exit > 1 || math.IsNaN(exit) {
		return domain.Position{}, fmt.Errorf("paper: close %s at %.4f: %w", id, exit, domain.ErrInvalidPrice)
	}

	closed := e.settle(pos, exit, reason)
	e.ledger.RealizedPnL = round(e.ledger.RealizedPnL + closed.RealizedPnL)
	switch closed.Result {
	case domain.ResultWin:
		e.ledger.Wins++
	case domain.ResultLoss:
		e.ledger.Losses++
	default:
		e.ledger.Pushes++
	}

	st := e.sources[closed.SourceID]
	st.Trades++
	st.TotalPnL = round(st.TotalPnL + closed.RealizedPnL)
	switch closed.Result {
	case domain.ResultWin:
		st.Wins++
	case domain.ResultLoss:
		st.Losses++
	default:
		st.Pushes++
	}
	e.sources[closed.SourceID] = st

	e.resolved = append([]domain.Position{closed}, e.resolved...)
	if len(e.resolved) > e.cfg.ResolvedLimit {
		e.resolved = e.resolved[:e.cfg.ResolvedLimit]
	}

	e.logger.Info("paper: position closed",
		slog.String("id", closed.ID),
		slog.String("key", closed.Key),
		slog.String("reason", string(reason)),
		slog.Float64("exit", exit),
		slog.Float64("realized_pnl", closed.RealizedPnL),
		slog.String("result", string(closed.Result)),
	)
	e.publish(domain.EventPositionClosed, closed)
	return closed, nil
}

// settle removes pos from the open set and returns its closed form.
func (e *Engine) settle(pos *domain.Position, exit float64, reason domain.CloseReason) domain.Position {
	delete(e.open, pos.ID)
	delete(e.byKey, pos.Key)

	closed := *pos
	at := e.now()
	closed.Status = domain.PositionStatusClosed
	closed.ClosedAt = &at
	closed.ExitPrice = &exit
	closed.CurrentPrice = exit
	closed.CloseReason = reason
	closed.RealizedPnL = round(closed.Shares * (exit - closed.EntryPrice))
	switch {
	case closed.RealizedPnL > 0:
		closed.Result = domain.ResultWin
	case closed.RealizedPnL < 0:
		closed.Result = domain.ResultLoss
	default:
		closed.Result = domain.ResultPush
	}
	return closed
}

// Mark updates the current price of the open position holding key.
func (e *Engine) Mark(key string, price float64) bool {
	id, ok := e.byKey[key]
	if !ok || price < 0 || price > 1 {
		return false
	}
	e.open[id].CurrentPrice = price
	return true
}

// Reset closes every open position at its entry price with reason reset and
// clears the ledger, the resolved feed and per-source stats. The closed
// positions are returned, not recorded.
func (e *Engine) Reset() []domain.Position {
	closed := make([]domain.Position, 0, len(e.open))
	for _, pos := range e.Positions() {
		p := e.open[pos.ID]
		closed = append(closed, e.settle(p, p.EntryPrice, domain.CloseReset))
	}
	e.resolved = nil
	e.ledger = Ledger{}
	e.sources = make(map[string]domain.SourceStats)
	return closed
}

// Get returns the open position with id.
func (e *Engine) Get(id string) (domain.Position, bool) {
	p, ok := e.open[id]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// ByKey returns the open position holding key.
func (e *Engine) ByKey(key string) (domain.Position, bool) {
	id, ok := e.byKey[key]
	if !ok {
		return domain.Position{}, false
	}
	return *e.open[id], true
}

// OpenCount returns the number of open positions.
func (e *Engine) OpenCount() int { return len(e.open) }

// Positions returns the open positions ordered by slot.
func (e *Engine) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(e.open))
	for _, p := range e.open {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Resolved returns the closed positions, newest first.
func (e *Engine) Resolved() []domain.Position {
	out := make([]domain.Position, len(e.resolved))
	copy(out, e.resolved)
	return out
}

// Ledger returns the cumulative record.
func (e *Engine) Ledger() Ledger { return e.ledger }

// SourceStats returns the closed-trade stats of one source.
func (e *Engine) SourceStats(sourceID string) domain.SourceStats {
	return e.sources[sourceID]
}

// Unrealized sums shares*(current-entry) over open positions.
func (e *Engine) Unrealized() float64 {
	var total float64
	for _, p := range e.open {
		total += p.UnrealizedPnL()
	}
	return round(total)
}

// Committed sums the USDC tied up in open positions.
func (e *Engine) Committed() float64 {
	var total float64
	for _, p := range e.open {
		total += p.SizeUSDC
	}
	return round(total)
}

func (e *Engine) publish(t domain.EventType, payload any) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(e.cfg.Strategy, t, payload); err != nil {
		e.logger.Error("paper: publish failed",
			slog.String("type", string(t)),
			slog.String("error", err.Error()),
		)
	}
}

func round(v float64) float64 {
	return math.Round(v*pnlScale) / pnlScale
}
