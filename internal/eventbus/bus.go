// Package eventbus is the in-process publish/subscribe hub that carries
// portfolio and poller state changes to observers such as the websocket hub
// and the Redis relay.
package eventbus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/metrics"
)

const (
	defaultHistorySize = 300
	defaultMaxDrops    = 64
	defaultBufferSize  = 256
)

// Config tunes the bus.
type Config struct {
	// HistorySize is how many recent events are kept for replay.
	HistorySize int
	// MaxDrops is the number of consecutive undelivered events after which a
	// subscriber is detached.
	MaxDrops int
	// BufferSize is the channel capacity used when Subscribe is given 0.
	BufferSize int
}

// SnapshotFunc returns the current state of one strategy.
type SnapshotFunc func() domain.StrategySnapshot

type provider struct {
	name string
	fn   SnapshotFunc
}

// Bus fans published events out to subscribers in registration order. A
// subscriber that cannot keep up loses events and is eventually detached; the
// publisher never waits.
type Bus struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	seq       uint64
	nextID    uint64
	subs      []*Subscription
	history   []domain.Event // ring of cfg.HistorySize
	histStart int
	histLen   int
	providers []provider
}

// New creates a Bus. Zero Config fields take defaults.
func New(cfg Config, logger *slog.Logger) *Bus {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if cfg.MaxDrops <= 0 {
		cfg.MaxDrops = defaultMaxDrops
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	return &Bus{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "eventbus")),
		now:     func() time.Time { return time.Now().UTC() },
		history: make([]domain.Event, cfg.HistorySize),
	}
}

// Publish validates payload against the schema for t, stamps it and delivers
// it to every subscriber. Invalid payloads are refused with
// domain.ErrInvalidEvent and reach nobody.
func (b *Bus) Publish(strategy string, t domain.EventType, payload any) error {
	if err := domain.CheckPayload(t, payload); err != nil {
		b.logger.Warn("eventbus: refusing event",
			slog.String("strategy", strategy),
			slog.String("type", string(t)),
			slog.String("error", err.Error()),
		)
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	ev := domain.Event{
		Seq:       b.seq,
		Type:      t,
		Strategy:  strategy,
		Timestamp: b.now(),
		Payload:   payload,
	}
	b.remember(ev)

	kept := b.subs[:0]
	for _, s := range b.subs {
		if b.deliver(s, ev) {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(b.subs); i++ {
		b.subs[i] = nil
	}
	b.subs = kept
	return nil
}

// deliver attempts a non-blocking send and reports whether s stays attached.
// Caller holds b.mu.
func (b *Bus) deliver(s *Subscription, ev domain.Event) bool {
	select {
	case s.ch <- ev:
		s.consecutive = 0
		return true
	default:
	}

	s.consecutive++
	s.dropped++
	metrics.BusDrops.WithLabelValues(s.name).Inc()
	if s.consecutive <= b.cfg.MaxDrops {
		return true
	}

	b.logger.Warn("eventbus: detaching slow subscriber",
		slog.String("subscriber", s.name),
		slog.Uint64("dropped", s.dropped),
	)
	metrics.BusDetached.Inc()
	s.closed = true
	close(s.ch)
	return false
}

func (b *Bus) remember(ev domain.Event) {
	size := len(b.history)
	if b.histLen < size {
		b.history[(b.histStart+b.histLen)%size] = ev
		b.histLen++
		return
	}
	b.history[b.histStart] = ev
	b.histStart = (b.histStart + 1) % size
}

// Subscribe attaches a new subscriber with a channel of the given capacity
// (0 uses the configured default). name labels drop metrics and logs.
func (b *Bus) Subscribe(name string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = b.cfg.BufferSize
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &Subscription{
		id:   b.nextID,
		name: name,
		ch:   make(chan domain.Event, buffer),
		bus:  b,
	}
	b.subs = append(b.subs, s)
	return s
}

// SubscribeWithHistory attaches a subscriber and returns the retained history
// taken atomically with the attach, so no event is both replayed and
// delivered, and none is missed.
func (b *Bus) SubscribeWithHistory(name string, buffer int) (*Subscription, []domain.Event) {
	if buffer <= 0 {
		buffer = b.cfg.BufferSize
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &Subscription{
		id:   b.nextID,
		name: name,
		ch:   make(chan domain.Event, buffer),
		bus:  b,
	}
	b.subs = append(b.subs, s)
	return s, b.historyLocked()
}

// History returns the retained events, oldest first.
func (b *Bus) History() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.historyLocked()
}

func (b *Bus) historyLocked() []domain.Event {
	out := make([]domain.Event, 0, b.histLen)
	for i := 0; i < b.histLen; i++ {
		out = append(out, b.history[(b.histStart+i)%len(b.history)])
	}
	return out
}

// Subscribers returns the number of attached subscribers.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// RegisterSnapshot adds a per-strategy state provider consulted by Snapshot.
func (b *Bus) RegisterSnapshot(name string, fn SnapshotFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.providers = append(b.providers, provider{name: name, fn: fn})
}

// Snapshot collects the current state of every registered strategy. Each
// provider returns its own consistent copy; the bus lock is not held while
// providers run.
func (b *Bus) Snapshot() domain.Snapshot {
	b.mu.Lock()
	providers := make([]provider, len(b.providers))
	copy(providers, b.providers)
	b.mu.Unlock()

	snap := domain.Snapshot{
		Strategies: make([]domain.StrategySnapshot, 0, len(providers)),
		TakenAt:    b.now(),
	}
	for _, p := range providers {
		snap.Strategies = append(snap.Strategies, p.fn())
	}
	return snap
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	for i, cur := range b.subs {
		if cur == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
}

// Subscription is a live feed handle returned by Subscribe.
type Subscription struct {
	id   uint64
	name string
	ch   chan domain.Event
	bus  *Bus

	// guarded by bus.mu
	consecutive int
	dropped     uint64
	closed      bool
}

// Events returns the feed. It is closed when the subscription is closed or
// detached for falling behind.
func (s *Subscription) Events() <-chan domain.Event {
	return s.ch
}

// Name returns the label given at Subscribe.
func (s *Subscription) Name() string { return s.name }

// Dropped returns how many events this subscriber has missed.
func (s *Subscription) Dropped() uint64 {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	return s.dropped
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}
