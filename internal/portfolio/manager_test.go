package portfolio

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/eventbus"
)

func newTestManager(t *testing.T, slots int) (*Manager, *eventbus.Bus) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := eventbus.New(eventbus.Config{HistorySize: 1000}, logger)
	m := NewManager(Config{
		Strategy:        "mirror",
		Slots:           slots,
		SlotBudget:      20,
		MaxTradeSize:    500,
		StartingBalance: 1000,
	}, bus, logger)
	return m, bus
}

func cand(m *Manager, key, source string, price float64) domain.Candidate {
	return domain.Candidate{
		Key:        key,
		SourceID:   source,
		MarketID:   "m-" + key,
		Side:       "Yes",
		EntryPrice: price,
		Epoch:      m.Epoch(),
	}
}

func TestAdmitFillsSlotsThenQueues(t *testing.T) {
	m, _ := newTestManager(t, 40)

	for i := 0; i < 40; i++ {
		adm, err := m.Admit(cand(m, fmt.Sprintf("k%02d", i), "w1", 0.5))
		require.NoError(t, err)
		require.Equal(t, Admitted, adm.Outcome)
	}

	adm, err := m.Admit(cand(m, "k40", "w1", 0.5))
	require.NoError(t, err)
	assert.Equal(t, Queued, adm.Outcome)
	require.NotNil(t, adm.Entry)

	snap := m.Snapshot()
	assert.Equal(t, 40, snap.Overview.SlotsUsed)
	assert.Equal(t, 1, snap.Overview.QueueLen)

	// freeing any slot admits the queued candidate immediately
	victim := snap.Positions[7]
	_, err = m.Close(victim.ID, 1, domain.CloseResolved)
	require.NoError(t, err)

	snap = m.Snapshot()
	assert.Equal(t, 40, snap.Overview.SlotsUsed)
	assert.Equal(t, 0, snap.Overview.QueueLen)
	var found bool
	for _, p := range snap.Positions {
		if p.Key == "k40" {
			found = true
			assert.Equal(t, 7, p.Slot)
		}
	}
	assert.True(t, found)
}

func TestQueueDrainsInFIFOOrder(t *testing.T) {
	m, _ := newTestManager(t, 2)

	a1, _ := m.Admit(cand(m, "x", "w1", 0.5))
	_, _ = m.Admit(cand(m, "y", "w1", 0.5))
	for _, key := range []string{"A", "B", "C"} {
		adm, err := m.Admit(cand(m, key, "w2", 0.5))
		require.NoError(t, err)
		require.Equal(t, Queued, adm.Outcome)
	}

	_, err := m.Close(a1.Position.ID, 0, domain.CloseResolved)
	require.NoError(t, err)

	snap := m.Snapshot()
	require.Len(t, snap.Queue, 2)
	assert.Equal(t, "B", snap.Queue[0].Candidate.Key)
	assert.Equal(t, "C", snap.Queue[1].Candidate.Key)

	keys := map[string]bool{}
	for _, p := range snap.Positions {
		keys[p.Key] = true
	}
	assert.True(t, keys["A"])
	assert.False(t, keys["B"])
}

func TestDuplicateKeyIsRejected(t *testing.T) {
	m, _ := newTestManager(t, 1)

	adm, err := m.Admit(cand(m, "tok", "w1", 0.5))
	require.NoError(t, err)
	require.Equal(t, Admitted, adm.Outcome)

	adm, err = m.Admit(cand(m, "tok", "w2", 0.5))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, adm.Outcome)

	_, _ = m.Admit(cand(m, "q", "w1", 0.5))
	adm, err = m.Admit(cand(m, "q", "w1", 0.5))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, adm.Outcome, "queued keys count as held")
}

func TestStaleEpochIsRejected(t *testing.T) {
	m, _ := newTestManager(t, 2)
	c := cand(m, "tok", "w1", 0.5)

	m.Reset()

	adm, err := m.Admit(c)
	require.NoError(t, err)
	assert.Equal(t, Stale, adm.Outcome)
	assert.Empty(t, m.OpenPositions())
}

func TestPausedSourceIsRejectedAndQueueDropped(t *testing.T) {
	m, _ := newTestManager(t, 1)

	_, _ = m.Admit(cand(m, "open", "w1", 0.5))
	_, _ = m.Admit(cand(m, "q1", "w2", 0.5))
	_, _ = m.Admit(cand(m, "q2", "w1", 0.5))

	m.SetSourcePaused("w2", true)
	snap := m.Snapshot()
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, "q2", snap.Queue[0].Candidate.Key)

	adm, err := m.Admit(cand(m, "q3", "w2", 0.5))
	require.NoError(t, err)
	assert.Equal(t, Paused, adm.Outcome)

	m.SetSourcePaused("w2", false)
	adm, err = m.Admit(cand(m, "q3", "w2", 0.5))
	require.NoError(t, err)
	assert.Equal(t, Queued, adm.Outcome)
}

func TestCloseKeyClosesOpenOrDropsQueued(t *testing.T) {
	m, _ := newTestManager(t, 1)
	_, _ = m.Admit(cand(m, "open", "w1", 0.40))
	_, _ = m.Admit(cand(m, "queued", "w1", 0.40))

	_, found, err := m.CloseKey("w1", "queued", 0.5, domain.CloseSourceExit)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, m.Snapshot().Queue)

	_, found, err = m.CloseKey("w2", "open", 0.60, domain.CloseSourceExit)
	require.NoError(t, err)
	assert.False(t, found, "another source cannot exit the position")

	pos, found, err := m.CloseKey("w1", "open", 0.60, domain.CloseSourceExit)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 10.0, pos.RealizedPnL)
	assert.Equal(t, domain.CloseSourceExit, pos.CloseReason)

	_, found, err = m.CloseKey("", "open", 0.60, domain.CloseSourceExit)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInstantSettlementFreesSlot(t *testing.T) {
	m, _ := newTestManager(t, 1)
	c := cand(m, "btc", "BTC-USD", 0.99)
	c.Settlement = domain.SettleInstant

	adm, err := m.Admit(c)
	require.NoError(t, err)
	require.Equal(t, Admitted, adm.Outcome)
	require.NotNil(t, adm.Position)
	assert.Equal(t, domain.PositionStatusClosed, adm.Position.Status)
	assert.Equal(t, domain.CloseSettled, adm.Position.CloseReason)
	assert.Greater(t, adm.Position.RealizedPnL, 0.0)

	ov := m.Overview()
	assert.Equal(t, 0, ov.SlotsUsed)
	assert.Equal(t, 1, ov.Wins)
}

func TestResetRestoresInitialState(t *testing.T) {
	m, bus := newTestManager(t, 2)
	var hooked int
	m.OnReset(func() { hooked++ })

	p, _ := m.Admit(cand(m, "a", "w1", 0.5))
	_, _ = m.Admit(cand(m, "b", "w1", 0.5))
	_, _ = m.Admit(cand(m, "c", "w1", 0.5))
	m.Mark(map[string]float64{"b": 0.9})
	_, err := m.Close(p.Position.ID, 1, domain.CloseResolved)
	require.NoError(t, err)

	res := m.Reset()
	assert.Len(t, res.Closed, 2)
	assert.Equal(t, 0, res.DroppedQueue)
	assert.Equal(t, uint64(1), res.Epoch)
	assert.Equal(t, 1, hooked)

	snap := m.Snapshot()
	assert.Empty(t, snap.Positions)
	assert.Empty(t, snap.Queue)
	assert.Empty(t, snap.Resolved)
	assert.Equal(t, 0, snap.Overview.SlotsUsed)
	assert.Equal(t, 0.0, snap.Overview.RealizedPnL)
	assert.Equal(t, 0.0, snap.Overview.UnrealizedPnL)
	assert.Equal(t, 1000.0, snap.Overview.Balance)

	var resets, closedAtReset int
	for _, ev := range bus.History() {
		switch ev.Type {
		case domain.EventReset:
			resets++
		case domain.EventPositionClosed:
			if ev.Payload.(domain.Position).CloseReason == domain.CloseReset {
				closedAtReset++
			}
		}
	}
	assert.Equal(t, 1, resets)
	assert.Equal(t, 2, closedAtReset)
}

func TestDropSourceClosesPositionsAtMark(t *testing.T) {
	m, _ := newTestManager(t, 2)
	_, _ = m.Admit(cand(m, "a", "w1", 0.5))
	_, _ = m.Admit(cand(m, "b", "w2", 0.5))
	_, _ = m.Admit(cand(m, "c", "w1", 0.5))
	m.Mark(map[string]float64{"a": 0.6})

	closed := m.DropSource("w1")
	require.Len(t, closed, 1)
	assert.Equal(t, domain.CloseSourceRemoved, closed[0].CloseReason)
	assert.Equal(t, 4.0, closed[0].RealizedPnL)

	snap := m.Snapshot()
	assert.Empty(t, snap.Queue)
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, "b", snap.Positions[0].Key)
}

func TestOverviewBalance(t *testing.T) {
	m, _ := newTestManager(t, 3)
	p, _ := m.Admit(cand(m, "a", "w1", 0.40))
	_, _ = m.Admit(cand(m, "b", "w1", 0.50))
	_, err := m.Close(p.Position.ID, 1, domain.CloseResolved)
	require.NoError(t, err)
	m.Mark(map[string]float64{"b": 0.55})

	ov := m.Overview()
	assert.Equal(t, 30.0, ov.RealizedPnL)
	assert.Equal(t, 20.0, ov.Committed)
	assert.Equal(t, 1010.0, ov.Balance)
	assert.InDelta(t, 2.0, ov.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 32.0, ov.TotalPnL, 1e-9)
}

func TestInvariantViolationHaltsUntilReset(t *testing.T) {
	m, bus := newTestManager(t, 1)

	m.mu.Lock()
	m.slots[0] = "ghost"
	m.mu.Unlock()

	// the next mutation detects the accounting mismatch
	_, err := m.Admit(cand(m, "a", "w1", 0.5))
	require.NoError(t, err)
	require.ErrorIs(t, m.Fault(), domain.ErrInvariantViolation)
	assert.NotEmpty(t, m.Overview().Fault)

	_, err = m.Admit(cand(m, "b", "w1", 0.5))
	require.ErrorIs(t, err, domain.ErrInvariantViolation)

	var faults int
	for _, ev := range bus.History() {
		if ev.Type == domain.EventFault {
			faults++
		}
	}
	assert.Equal(t, 1, faults)

	m.Reset()
	assert.NoError(t, m.Fault())
	adm, err := m.Admit(cand(m, "b", "w1", 0.5))
	require.NoError(t, err)
	assert.Equal(t, Admitted, adm.Outcome)
}

func TestConcurrentAdmitKeepsAccounting(t *testing.T) {
	m, _ := newTestManager(t, 5)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = m.Admit(cand(m, fmt.Sprintf("k%d", i), "w1", 0.5))
		}(i)
	}
	wg.Wait()

	ov := m.Overview()
	assert.Equal(t, 5, ov.SlotsUsed)
	assert.Equal(t, 45, ov.QueueLen)
	assert.NoError(t, m.Fault())

	for _, p := range m.OpenPositions() {
		_, err := m.Close(p.ID, 1, domain.CloseResolved)
		require.NoError(t, err)
	}
	ov = m.Overview()
	assert.Equal(t, 5, ov.SlotsUsed)
	assert.Equal(t, 40, ov.QueueLen)
}
