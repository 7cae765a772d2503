package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/metrics"
)

// Target is what a Scheduler polls. Poll runs the whole
// diff, validate, admit sequence for one source.
type Target interface {
	Poll(ctx context.Context, src domain.Source) error
	Baseline(sourceID string) domain.BaselineState
}

type entry struct {
	src  domain.Source
	stop chan struct{}
	wake chan struct{}
	done chan struct{}

	started bool
	removed bool
}

// Scheduler owns the polling loops of one strategy's sources.
type Scheduler struct {
	strategy string
	cfg      Config
	target   Target
	bus      domain.EventPublisher
	logger   *slog.Logger
	now      func() time.Time
	jitter   func(time.Duration, float64) time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	runCtx  context.Context
}

// NewScheduler creates a Scheduler. Sources added before Run start polling
// when Run is called; sources added afterwards start immediately.
func NewScheduler(strategy string, cfg Config, target Target, bus domain.EventPublisher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		strategy: strategy,
		cfg:      cfg.withDefaults(),
		target:   target,
		bus:      bus,
		logger:   logger.With(slog.String("component", "poller"), slog.String("strategy", strategy)),
		now:      func() time.Time { return time.Now().UTC() },
		jitter:   jitter,
		entries:  make(map[string]*entry),
	}
}

// Add registers a source. It fails with domain.ErrAlreadyExists when the ID is
// already scheduled.
func (s *Scheduler) Add(src domain.Source) (domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[src.ID]; ok {
		return domain.Source{}, fmt.Errorf("poller: add %s: %w", src.ID, domain.ErrAlreadyExists)
	}
	src.Strategy = s.strategy
	if src.Health == "" {
		src.Health = domain.HealthGreen
	}
	if src.AddedAt.IsZero() {
		src.AddedAt = s.now()
	}
	src.Baseline = domain.BaselineUninitialized
	e := &entry{
		src:  src,
		stop: make(chan struct{}),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.entries[src.ID] = e
	if s.runCtx != nil {
		s.startLocked(e)
	}
	metrics.SourceHealth.WithLabelValues(s.strategy, src.ID).Set(metrics.HealthValue(src.Health))
	return e.src, nil
}

// Remove stops a source's loop and waits for an in-flight poll to return, so
// no late result lands after the caller tears down the source's state.
func (s *Scheduler) Remove(id string) (domain.Source, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return domain.Source{}, fmt.Errorf("poller: remove %s: %w", id, domain.ErrNotFound)
	}
	delete(s.entries, id)
	e.removed = true
	close(e.stop)
	started := e.started
	src := e.src
	s.mu.Unlock()

	if started {
		<-e.done
	}
	metrics.SourceHealth.DeleteLabelValues(s.strategy, id)
	s.logger.Info("poller: source removed", slog.String("source", id))
	return src, nil
}

// SetEnabled parks or resumes a source's loop. A parked loop never polls; a
// resumed one polls right away.
func (s *Scheduler) SetEnabled(id string, enabled bool) (domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return domain.Source{}, fmt.Errorf("poller: set enabled %s: %w", id, domain.ErrNotFound)
	}
	e.src.Enabled = enabled
	select {
	case e.wake <- struct{}{}:
	default:
	}
	return e.src, nil
}

// Get returns the current state of one source.
func (s *Scheduler) Get(id string) (domain.Source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return domain.Source{}, false
	}
	e.src.Baseline = s.target.Baseline(id)
	return e.src, true
}

// List returns every source ordered by the time it was added.
func (s *Scheduler) List() []domain.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Source, 0, len(s.entries))
	for id, e := range s.entries {
		e.src.Baseline = s.target.Baseline(id)
		out = append(out, e.src)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out
}

// Run starts every registered loop and blocks until ctx is cancelled and all
// loops have exited.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.runCtx != nil {
		s.mu.Unlock()
		return errors.New("poller: scheduler already running")
	}
	s.runCtx = ctx
	for _, e := range s.entries {
		s.startLocked(e)
	}
	s.mu.Unlock()

	s.logger.Info("poller: scheduler started", slog.Duration("interval", s.cfg.Interval))
	<-ctx.Done()

	s.mu.Lock()
	pending := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.started {
			pending = append(pending, e)
		}
	}
	s.mu.Unlock()
	for _, e := range pending {
		<-e.done
	}
	s.logger.Info("poller: scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) startLocked(e *entry) {
	if e.started {
		return
	}
	e.started = true
	go s.loop(s.runCtx, e)
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer close(e.done)

	var delay time.Duration
	for {
		select {
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		s.mu.Lock()
		enabled := e.src.Enabled
		s.mu.Unlock()

		if !enabled {
			select {
			case <-e.stop:
				return
			case <-ctx.Done():
				return
			case <-e.wake:
				delay = 0
				continue
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-e.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-e.wake:
			timer.Stop()
			continue
		case <-timer.C:
		}

		select {
		case <-e.stop:
			return
		default:
		}
		delay = s.pollOnce(ctx, e)
	}
}

// pollOnce runs one bounded poll and records its outcome. It returns the wait
// before the next attempt.
func (s *Scheduler) pollOnce(ctx context.Context, e *entry) time.Duration {
	s.mu.Lock()
	src := e.src
	s.mu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	start := s.now()
	err := s.target.Poll(pctx, src)
	timedOut := errors.Is(pctx.Err(), context.DeadlineExceeded)
	cancel()
	took := s.now().Sub(start)
	metrics.PollDuration.WithLabelValues(s.strategy).Observe(took.Seconds())

	if ctx.Err() != nil {
		// shutting down; not the source's fault
		return 0
	}

	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRateLimited):
		result = "rate_limited"
	case timedOut || errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
		err = fmt.Errorf("poll timed out after %s: %w", s.cfg.Timeout, domain.ErrTransient)
	default:
		result = "error"
	}
	metrics.PollResults.WithLabelValues(s.strategy, result).Inc()

	s.mu.Lock()
	prevFailures := e.src.ConsecutiveFailures
	e.src.LastPollAt = &start
	var delay time.Duration
	if err == nil {
		e.src.ConsecutiveFailures = 0
		e.src.Health = domain.HealthGreen
		e.src.LastError = ""
		done := s.now()
		e.src.LastSuccessAt = &done
		delay = s.jitter(s.cfg.Interval, s.cfg.Jitter)
	} else {
		e.src.ConsecutiveFailures++
		e.src.Health = HealthFor(e.src.ConsecutiveFailures, s.cfg.YellowAfter, s.cfg.RedAfter)
		e.src.LastError = err.Error()
		delay = Backoff(s.cfg.BackoffFloor, s.cfg.BackoffCap, e.src.ConsecutiveFailures)
		if result == "rate_limited" && delay < s.cfg.RateLimitPause {
			delay = s.cfg.RateLimitPause
		}
	}
	e.src.NextPollIn = delay
	e.src.Baseline = s.target.Baseline(src.ID)
	snap := e.src
	removed := e.removed
	s.mu.Unlock()

	if removed {
		return delay
	}

	metrics.SourceHealth.WithLabelValues(s.strategy, src.ID).Set(metrics.HealthValue(snap.Health))
	s.publish(domain.EventSourceStatus, snap)

	switch {
	case err != nil:
		kind := domain.APIPollError
		if result == "rate_limited" {
			kind = domain.APIRateLimited
		}
		s.logger.Warn("poller: poll failed",
			slog.String("source", src.ID),
			slog.Int("consecutive_failures", snap.ConsecutiveFailures),
			slog.String("health", string(snap.Health)),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)
		s.publish(domain.EventAPI, domain.APIEvent{
			SourceID: src.ID,
			Kind:     kind,
			Message:  err.Error(),
			RetryIn:  delay,
		})
	case prevFailures > 0:
		s.logger.Info("poller: source recovered",
			slog.String("source", src.ID),
			slog.Int("after_failures", prevFailures),
		)
		s.publish(domain.EventAPI, domain.APIEvent{SourceID: src.ID, Kind: domain.APIRecovered})
	default:
		s.logger.Debug("poller: poll ok",
			slog.String("source", src.ID),
			slog.Duration("took", took),
			slog.Duration("next", delay),
		)
	}
	return delay
}

func (s *Scheduler) publish(t domain.EventType, payload any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(s.strategy, t, payload); err != nil {
		s.logger.Error("poller: publish failed",
			slog.String("type", string(t)),
			slog.String("error", err.Error()),
		)
	}
}
