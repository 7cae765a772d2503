package poller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/eventbus"
)

type fakeTarget struct {
	mu     sync.Mutex
	calls  map[string]int
	errs   map[string][]error
	block  chan struct{}
	inPoll atomic.Int32
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{calls: map[string]int{}, errs: map[string][]error{}}
}

func (f *fakeTarget) Poll(ctx context.Context, src domain.Source) error {
	f.inPoll.Add(1)
	defer f.inPoll.Add(-1)

	f.mu.Lock()
	f.calls[src.ID]++
	var err error
	if q := f.errs[src.ID]; len(q) > 0 {
		err, f.errs[src.ID] = q[0], q[1:]
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeTarget) Baseline(string) domain.BaselineState { return domain.BaselineActive }

func (f *fakeTarget) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func testConfig() Config {
	return Config{
		Interval:       5 * time.Millisecond,
		Jitter:         0.2,
		BackoffFloor:   time.Millisecond,
		BackoffCap:     4 * time.Millisecond,
		RateLimitPause: time.Millisecond,
		Timeout:        200 * time.Millisecond,
		YellowAfter:    0,
		RedAfter:       2,
	}
}

func newTestScheduler(t *testing.T, target Target) (*Scheduler, *eventbus.Bus, context.CancelFunc) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := eventbus.New(eventbus.Config{HistorySize: 5000}, logger)
	s := NewScheduler("mirror", testConfig(), target, bus, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, bus, cancel
}

func TestSchedulerPollsEnabledSources(t *testing.T) {
	target := newFakeTarget()
	s, _, _ := newTestScheduler(t, target)

	_, err := s.Add(domain.Source{ID: "w1", Enabled: true})
	require.NoError(t, err)
	_, err = s.Add(domain.Source{ID: "w1", Enabled: true})
	require.ErrorIs(t, err, domain.ErrAlreadyExists)

	require.Eventually(t, func() bool { return target.count("w1") >= 3 }, time.Second, time.Millisecond)

	src, ok := s.Get("w1")
	require.True(t, ok)
	assert.Equal(t, domain.HealthGreen, src.Health)
	assert.NotNil(t, src.LastSuccessAt)
	assert.Equal(t, "mirror", src.Strategy)
}

func TestFailuresDegradeHealthAndSuccessRecovers(t *testing.T) {
	target := newFakeTarget()
	transient := fmt.Errorf("dial: %w", domain.ErrTransient)
	target.errs["w1"] = []error{transient, transient, transient}
	s, bus, _ := newTestScheduler(t, target)

	sub := bus.Subscribe("test", 1024)
	defer sub.Close()

	_, err := s.Add(domain.Source{ID: "w1", Enabled: true})
	require.NoError(t, err)

	var sawRed, sawRecovered bool
	deadline := time.After(2 * time.Second)
	for !(sawRed && sawRecovered) {
		select {
		case ev := <-sub.Events():
			switch p := ev.Payload.(type) {
			case domain.Source:
				if p.Health == domain.HealthRed {
					sawRed = true
					assert.Equal(t, 3, p.ConsecutiveFailures)
					assert.Equal(t, 4*time.Millisecond, p.NextPollIn)
				}
			case domain.APIEvent:
				if p.Kind == domain.APIRecovered {
					sawRecovered = true
				}
			}
		case <-deadline:
			t.Fatalf("red=%v recovered=%v", sawRed, sawRecovered)
		}
	}

	require.Eventually(t, func() bool {
		src, _ := s.Get("w1")
		return src.Health == domain.HealthGreen && src.ConsecutiveFailures == 0
	}, time.Second, time.Millisecond)
}

func TestRateLimitPublishesAPIEvent(t *testing.T) {
	target := newFakeTarget()
	target.errs["w1"] = []error{fmt.Errorf("positions: %w", domain.ErrRateLimited)}
	s, bus, _ := newTestScheduler(t, target)
	sub := bus.Subscribe("test", 1024)
	defer sub.Close()

	_, err := s.Add(domain.Source{ID: "w1", Enabled: true})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for {
			select {
			case ev := <-sub.Events():
				if p, ok := ev.Payload.(domain.APIEvent); ok && p.Kind == domain.APIRateLimited {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, time.Millisecond)
}

func TestDisabledSourceDoesNotPoll(t *testing.T) {
	target := newFakeTarget()
	s, _, _ := newTestScheduler(t, target)

	_, err := s.Add(domain.Source{ID: "w1", Enabled: false})
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, target.count("w1"))

	_, err = s.SetEnabled("w1", true)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return target.count("w1") > 0 }, time.Second, time.Millisecond)

	_, err = s.SetEnabled("w1", false)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	n := target.count("w1")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, target.count("w1"))
}

func TestRemoveWaitsForInFlightPoll(t *testing.T) {
	target := newFakeTarget()
	target.block = make(chan struct{})
	s, _, _ := newTestScheduler(t, target)

	_, err := s.Add(domain.Source{ID: "w1", Enabled: true})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return target.inPoll.Load() == 1 }, time.Second, time.Millisecond)

	removed := make(chan struct{})
	go func() {
		_, err := s.Remove("w1")
		assert.NoError(t, err)
		close(removed)
	}()

	select {
	case <-removed:
		t.Fatal("remove returned while a poll was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(target.block)
	select {
	case <-removed:
	case <-time.After(time.Second):
		t.Fatal("remove did not return")
	}
	assert.Equal(t, int32(0), target.inPoll.Load())
	_, ok := s.Get("w1")
	assert.False(t, ok)

	_, err = s.Remove("w1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTimeoutCountsAsFailure(t *testing.T) {
	target := newFakeTarget()
	target.block = make(chan struct{}) // never released; every poll times out
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig()
	cfg.Timeout = 5 * time.Millisecond
	s := NewScheduler("mirror", cfg, target, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	_, err := s.Add(domain.Source{ID: "w1", Enabled: true})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		src, _ := s.Get("w1")
		return src.ConsecutiveFailures >= 2
	}, time.Second, time.Millisecond)

	src, _ := s.Get("w1")
	assert.Contains(t, src.LastError, "timed out")
	assert.NotEqual(t, domain.HealthGreen, src.Health)
}
