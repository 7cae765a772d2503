// Package portfolio owns a strategy's slot pool and overflow queue and is the
// only place admission and eviction decisions are made.
package portfolio

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/metrics"
	"github.com/alanyoungcy/paperbot/internal/paper"
)

// Outcome is the terminal result of an admission request.
type Outcome string

const (
	Admitted  Outcome = "admitted"
	Queued    Outcome = "queued"
	Duplicate Outcome = "duplicate"
	Paused    Outcome = "paused"
	Stale     Outcome = "stale"
)

// Admission describes what Admit did with a candidate.
type Admission struct {
	Outcome  Outcome
	Position *domain.Position
	Entry    *domain.QueueEntry
}

// Requote may refresh a queued candidate at the moment a slot frees. Returning
// false drops the candidate. It runs under the portfolio lock and must not
// block.
type Requote func(c domain.Candidate) (domain.Candidate, bool)

// Config describes one portfolio.
type Config struct {
	Strategy        string
	Slots           int
	SlotBudget      float64
	MaxTradeSize    float64
	StartingBalance float64
	ResolvedLimit   int
	Sizer           paper.Sizer
	// Requote is nil by default: queued candidates are admitted at the price
	// they were detected at.
	Requote Requote
}

// Manager is the single authority over a portfolio. Every mutation and every
// snapshot goes through mu, so admit, close and reset are linearizable.
type Manager struct {
	cfg    Config
	bus    domain.EventPublisher
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	exec      *paper.Engine
	slots     []string // position ID per slot, "" when free
	queue     []domain.QueueEntry
	paused    map[string]bool
	epoch     uint64
	fault     error
	startedAt time.Time

	hooksMu sync.Mutex
	onReset []func()
}

// NewManager creates a Manager with all slots free.
func NewManager(cfg Config, bus domain.EventPublisher, logger *slog.Logger) *Manager {
	if cfg.Slots < 1 {
		cfg.Slots = 1
	}
	logger = logger.With(slog.String("component", "portfolio"), slog.String("strategy", cfg.Strategy))
	m := &Manager{
		cfg:    cfg,
		bus:    bus,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		exec: paper.NewEngine(paper.Config{
			Strategy:      cfg.Strategy,
			SlotBudget:    cfg.SlotBudget,
			MaxTradeSize:  cfg.MaxTradeSize,
			Sizer:         cfg.Sizer,
			ResolvedLimit: cfg.ResolvedLimit,
		}, bus, logger),
		slots:  make([]string, cfg.Slots),
		paused: make(map[string]bool),
	}
	m.startedAt = m.now()
	return m
}

// OnReset registers fn to run inside every Reset, under the portfolio lock and
// in the same step as the epoch bump. Strategies use it to re-baseline their
// sources, so no poll can pair the new epoch with a pre-reset baseline. fn
// must not call back into the Manager.
func (m *Manager) OnReset(fn func()) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.onReset = append(m.onReset, fn)
}

// Epoch increments on every reset. A poll records it before fetching so that
// a result landing after a reset is recognised as stale.
func (m *Manager) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// Admit places c into a free slot, or queues it when all slots are taken.
// Queueing never blocks. The only error is domain.ErrInvariantViolation for a
// halted portfolio.
func (m *Manager) Admit(c domain.Candidate) (Admission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fault != nil {
		return Admission{}, fmt.Errorf("portfolio: admit %s: %w", c.Key, m.fault)
	}

	var adm Admission
	switch {
	case c.Epoch != m.epoch:
		adm.Outcome = Stale
	case m.paused[c.SourceID]:
		adm.Outcome = Paused
	case m.holdsLocked(c.Key):
		adm.Outcome = Duplicate
	default:
		if slot := m.freeSlotLocked(); slot >= 0 {
			pos, err := m.openLocked(c, slot)
			if err != nil {
				return Admission{}, err
			}
			adm = Admission{Outcome: Admitted, Position: &pos}
		} else {
			entry := domain.QueueEntry{
				ID:        uuid.NewString(),
				Candidate: c,
				SourceID:  c.SourceID,
				QueuedAt:  m.now(),
			}
			m.queue = append(m.queue, entry)
			adm = Admission{Outcome: Queued, Entry: &entry}
			m.logger.Info("portfolio: slots full, candidate queued",
				slog.String("key", c.Key),
				slog.String("source", c.SourceID),
				slog.Int("queue_len", len(m.queue)),
			)
			m.publish(domain.EventQueue, m.queueLocked())
		}
	}

	metrics.Admissions.WithLabelValues(m.cfg.Strategy, string(adm.Outcome)).Inc()
	if adm.Outcome != Admitted && adm.Outcome != Queued {
		m.logger.Debug("portfolio: candidate not admitted",
			slog.String("key", c.Key),
			slog.String("source", c.SourceID),
			slog.String("outcome", string(adm.Outcome)),
		)
	}
	m.publish(domain.EventOpportunity, domain.OpportunityEvent{
		Opportunity: opportunityOf(c),
		Status:      domain.OpportunityStatus(adm.Outcome),
	})
	m.afterMutationLocked()
	return adm, nil
}

// openLocked opens c in slot and, for instantly settled candidates, closes it
// again at 1.00 within the same critical section.
func (m *Manager) openLocked(c domain.Candidate, slot int) (domain.Position, error) {
	pos, err := m.exec.Open(c, slot)
	if err != nil {
		return domain.Position{}, fmt.Errorf("portfolio: open %s: %w", c.Key, err)
	}
	m.slots[slot] = pos.ID
	if pos.Settlement != domain.SettleInstant {
		return pos, nil
	}
	closed, err := m.closeLocked(pos.ID, 1, domain.CloseSettled)
	if err != nil {
		return domain.Position{}, err
	}
	return closed, nil
}

// Close settles the position with id at exit and hands its slot to the head
// of the queue.
func (m *Manager) Close(id string, exit float64, reason domain.CloseReason) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	closed, err := m.closeLocked(id, exit, reason)
	if err != nil {
		return domain.Position{}, err
	}
	m.afterMutationLocked()
	return closed, nil
}

// CloseKey closes the open position holding key when sourceID opened it. When
// key is only queued by sourceID the queue entry is dropped instead and found
// is false. An empty sourceID matches any source.
func (m *Manager) CloseKey(sourceID, key string, exit float64, reason domain.CloseReason) (domain.Position, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owned := func(src string) bool { return sourceID == "" || src == sourceID }
	pos, ok := m.exec.ByKey(key)
	if !ok || !owned(pos.SourceID) {
		if m.dropQueuedLocked(func(e domain.QueueEntry) bool { return e.Candidate.Key == key && owned(e.SourceID) }) > 0 {
			m.publish(domain.EventQueue, m.queueLocked())
			m.afterMutationLocked()
		}
		return domain.Position{}, false, nil
	}
	closed, err := m.closeLocked(pos.ID, exit, reason)
	if err != nil {
		return domain.Position{}, true, err
	}
	m.afterMutationLocked()
	return closed, true, nil
}

func (m *Manager) closeLocked(id string, exit float64, reason domain.CloseReason) (domain.Position, error) {
	pos, ok := m.exec.Get(id)
	if !ok {
		return domain.Position{}, fmt.Errorf("portfolio: close %s: %w", id, domain.ErrNotFound)
	}
	if pos.Slot < 0 || pos.Slot >= len(m.slots) || m.slots[pos.Slot] != id {
		m.faultLocked(fmt.Errorf("%w: position %s not found in slot %d", domain.ErrInvariantViolation, id, pos.Slot))
		return domain.Position{}, m.fault
	}

	closed, err := m.exec.Close(id, exit, reason)
	if err != nil {
		return domain.Position{}, fmt.Errorf("portfolio: close %s: %w", id, err)
	}
	m.releaseLocked(pos.Slot)
	return closed, nil
}

// releaseLocked frees slot and admits queued candidates in FIFO order until a
// slot stays occupied or the queue is empty.
func (m *Manager) releaseLocked(slot int) {
	m.slots[slot] = ""
	drained := false
	for len(m.queue) > 0 && m.fault == nil {
		free := m.freeSlotLocked()
		if free < 0 {
			break
		}
		head := m.queue[0]
		m.queue = m.queue[1:]
		drained = true

		c := head.Candidate
		if m.cfg.Requote != nil {
			var keep bool
			if c, keep = m.cfg.Requote(c); !keep {
				m.logger.Info("portfolio: queued candidate dropped on requote", slog.String("key", c.Key))
				continue
			}
		}
		pos, err := m.openLocked(c, free)
		if err != nil {
			m.logger.Error("portfolio: dequeued candidate failed to open",
				slog.String("key", c.Key),
				slog.String("error", err.Error()),
			)
			m.publish(domain.EventOpportunity, domain.OpportunityEvent{
				Opportunity: opportunityOf(c),
				Status:      domain.OpportunityFailed,
				Reason:      err.Error(),
			})
			continue
		}
		m.logger.Info("portfolio: queued candidate admitted",
			slog.String("key", c.Key),
			slog.String("position", pos.ID),
			slog.Duration("waited", m.now().Sub(head.QueuedAt)),
		)
		metrics.Admissions.WithLabelValues(m.cfg.Strategy, "dequeued").Inc()
	}
	if drained {
		m.publish(domain.EventQueue, m.queueLocked())
	}
}

// Mark applies fresh prices keyed by position key and republishes the
// overview and open positions.
func (m *Manager) Mark(prices map[string]float64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, price := range prices {
		if m.exec.Mark(key, price) {
			n++
		}
	}
	if n > 0 {
		m.publish(domain.EventPositions, m.exec.Positions())
		m.publish(domain.EventOverview, m.overviewLocked())
	}
	return n
}

// SetSourcePaused blocks or unblocks new admissions from a source. Pausing
// drops the source's queued candidates; its open positions stay open.
func (m *Manager) SetSourcePaused(sourceID string, paused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !paused {
		delete(m.paused, sourceID)
		return
	}
	m.paused[sourceID] = true
	if m.dropQueuedLocked(func(e domain.QueueEntry) bool { return e.SourceID == sourceID }) > 0 {
		m.publish(domain.EventQueue, m.queueLocked())
		m.afterMutationLocked()
	}
}

// DropSource removes every trace of a source: queued candidates are dropped
// and open positions are closed at their last mark.
func (m *Manager) DropSource(sourceID string) []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.paused, sourceID)
	dropped := m.dropQueuedLocked(func(e domain.QueueEntry) bool { return e.SourceID == sourceID })

	var closed []domain.Position
	for _, pos := range m.exec.Positions() {
		if pos.SourceID != sourceID {
			continue
		}
		c, err := m.closeLocked(pos.ID, pos.CurrentPrice, domain.CloseSourceRemoved)
		if err != nil {
			m.logger.Error("portfolio: close on source removal failed",
				slog.String("position", pos.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		closed = append(closed, c)
	}
	if dropped > 0 || len(closed) > 0 {
		m.publish(domain.EventQueue, m.queueLocked())
		m.afterMutationLocked()
	}
	return closed
}

// ResetResult summarizes what Reset discarded.
type ResetResult struct {
	Closed       []domain.Position
	DroppedQueue int
	Epoch        uint64
}

// Reset atomically closes every open position as closed-at-reset, empties the
// queue, zeroes the ledger, clears any fault and runs the OnReset hooks.
func (m *Manager) Reset() ResetResult {
	m.mu.Lock()
	closed := m.exec.Reset()
	res := ResetResult{
		Closed:       closed,
		DroppedQueue: len(m.queue),
	}
	for i := range m.slots {
		m.slots[i] = ""
	}
	m.queue = nil
	m.fault = nil
	m.epoch++
	m.startedAt = m.now()
	res.Epoch = m.epoch

	m.hooksMu.Lock()
	hooks := make([]func(), len(m.onReset))
	copy(hooks, m.onReset)
	m.hooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}

	for _, pos := range closed {
		m.publish(domain.EventPositionClosed, pos)
	}
	m.publish(domain.EventReset, domain.ResetNotice{
		Strategy:        m.cfg.Strategy,
		ClosedPositions: len(closed),
		DroppedQueue:    res.DroppedQueue,
		Epoch:           res.Epoch,
	})
	m.publish(domain.EventPositions, []domain.Position{})
	m.publish(domain.EventQueue, []domain.QueueEntry{})
	m.afterMutationLocked()
	m.mu.Unlock()

	m.logger.Info("portfolio: reset",
		slog.Int("closed", len(closed)),
		slog.Int("dropped_queue", res.DroppedQueue),
		slog.Uint64("epoch", res.Epoch),
	)
	return res
}

// Snapshot returns a consistent copy of the portfolio.
func (m *Manager) Snapshot() domain.PortfolioSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.PortfolioSnapshot{
		Overview:  m.overviewLocked(),
		Positions: m.exec.Positions(),
		Queue:     m.queueLocked(),
		Resolved:  m.exec.Resolved(),
	}
}

// Overview returns the headline ledger.
func (m *Manager) Overview() domain.Overview {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overviewLocked()
}

// OpenPositions returns the open positions ordered by slot.
func (m *Manager) OpenPositions() []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exec.Positions()
}

// SourceStats returns closed-trade stats for a source.
func (m *Manager) SourceStats(sourceID string) domain.SourceStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exec.SourceStats(sourceID)
}

// Fault returns the invariant violation halting the portfolio, if any.
func (m *Manager) Fault() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fault
}

func (m *Manager) overviewLocked() domain.Overview {
	ledger := m.exec.Ledger()
	unrealized := m.exec.Unrealized()
	committed := m.exec.Committed()
	ov := domain.Overview{
		Strategy:        m.cfg.Strategy,
		StartingBalance: m.cfg.StartingBalance,
		Balance:         roundCents(m.cfg.StartingBalance + ledger.RealizedPnL - committed),
		RealizedPnL:     ledger.RealizedPnL,
		UnrealizedPnL:   unrealized,
		TotalPnL:        ledger.RealizedPnL + unrealized,
		SlotsTotal:      len(m.slots),
		SlotsUsed:       m.usedLocked(),
		SlotBudget:      m.cfg.SlotBudget,
		QueueLen:        len(m.queue),
		Committed:       committed,
		Wins:            ledger.Wins,
		Losses:          ledger.Losses,
		Pushes:          ledger.Pushes,
		StartedAt:       m.startedAt,
	}
	if m.fault != nil {
		ov.Fault = m.fault.Error()
	}
	return ov
}

func (m *Manager) queueLocked() []domain.QueueEntry {
	out := make([]domain.QueueEntry, len(m.queue))
	copy(out, m.queue)
	return out
}

func (m *Manager) holdsLocked(key string) bool {
	if _, ok := m.exec.ByKey(key); ok {
		return true
	}
	for _, e := range m.queue {
		if e.Candidate.Key == key {
			return true
		}
	}
	return false
}

func (m *Manager) freeSlotLocked() int {
	for i, id := range m.slots {
		if id == "" {
			return i
		}
	}
	return -1
}

func (m *Manager) usedLocked() int {
	n := 0
	for _, id := range m.slots {
		if id != "" {
			n++
		}
	}
	return n
}

func (m *Manager) dropQueuedLocked(match func(domain.QueueEntry) bool) int {
	kept := m.queue[:0]
	dropped := 0
	for _, e := range m.queue {
		if match(e) {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	m.queue = kept
	return dropped
}

// afterMutationLocked verifies slot accounting, then refreshes gauges and
// the overview.
func (m *Manager) afterMutationLocked() {
	if err := m.checkLocked(); err != nil && m.fault == nil {
		m.faultLocked(err)
	}
	ov := m.overviewLocked()
	metrics.SlotsUsed.WithLabelValues(m.cfg.Strategy).Set(float64(ov.SlotsUsed))
	metrics.QueueDepth.WithLabelValues(m.cfg.Strategy).Set(float64(ov.QueueLen))
	metrics.RealizedPnL.WithLabelValues(m.cfg.Strategy).Set(ov.RealizedPnL)
	m.publish(domain.EventOverview, ov)
}

func (m *Manager) checkLocked() error {
	used := m.usedLocked()
	open := m.exec.OpenCount()
	if used != open {
		return fmt.Errorf("%w: %d slots used but %d positions open", domain.ErrInvariantViolation, used, open)
	}
	for i, id := range m.slots {
		if id == "" {
			continue
		}
		pos, ok := m.exec.Get(id)
		if !ok || pos.Slot != i {
			return fmt.Errorf("%w: slot %d references position %s it does not hold", domain.ErrInvariantViolation, i, id)
		}
	}
	if len(m.queue) > 0 && used < len(m.slots) {
		return fmt.Errorf("%w: %d queued with %d free slots", domain.ErrInvariantViolation, len(m.queue), len(m.slots)-used)
	}
	return nil
}

func (m *Manager) faultLocked(err error) {
	m.fault = err
	metrics.Faults.WithLabelValues(m.cfg.Strategy).Inc()
	m.logger.Error("portfolio: INVARIANT VIOLATION, admissions halted until reset",
		slog.String("error", err.Error()),
	)
	m.publish(domain.EventFault, domain.Fault{Strategy: m.cfg.Strategy, Message: err.Error()})
}

func (m *Manager) publish(t domain.EventType, payload any) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(m.cfg.Strategy, t, payload); err != nil {
		m.logger.Error("portfolio: publish failed",
			slog.String("type", string(t)),
			slog.String("error", err.Error()),
		)
	}
}

func opportunityOf(c domain.Candidate) domain.Opportunity {
	return domain.Opportunity{
		SourceID:   c.SourceID,
		MarketID:   c.MarketID,
		Question:   c.Question,
		Side:       c.Side,
		EdgePct:    c.EdgePct,
		Price:      c.EntryPrice,
		DetectedAt: c.DetectedAt,
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
