package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

const wallet = "0x56687bf447db6ffa42ffe2204a05edaa20f55839"

func wp(asset string, price float64) domain.WalletPosition {
	return domain.WalletPosition{Asset: asset, ConditionID: "c-" + asset, Title: "Q " + asset, Outcome: "Yes", Size: 100, CurPrice: price}
}

func TestMirrorNormalizeSource(t *testing.T) {
	m := NewMirror(&fakeWallets{}, &fakePricer{}, discardLogger())

	got, err := m.NormalizeSource("  0x56687BF447DB6FFA42FFE2204A05EDAA20F55839 ")
	require.NoError(t, err)
	assert.Equal(t, wallet, got)

	for _, bad := range []string{"", "0x123", "56687bf447db6ffa42ffe2204a05edaa20f55839", "not-a-wallet"} {
		_, err := m.NormalizeSource(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidSource, bad)
	}
}

func TestMirrorBaselineThenDiff(t *testing.T) {
	wallets := &fakeWallets{}
	m := NewMirror(wallets, &fakePricer{}, discardLogger())
	bot, bus := newTestBot(t, m, 5)
	ctx := context.Background()

	src, err := bot.AddSource(wallet, "whale")
	require.NoError(t, err)
	assert.Equal(t, domain.BaselineUninitialized, bot.Baseline(src.ID))

	// existing holdings are never mirrored
	wallets.set(wallet, wp("A", 0.40))
	require.NoError(t, bot.Poll(ctx, src))
	assert.Empty(t, bot.Portfolio().OpenPositions())
	assert.Equal(t, domain.BaselineBaselined, bot.Baseline(src.ID))

	// unchanged poll is a no-op
	require.NoError(t, bot.Poll(ctx, src))
	assert.Empty(t, bot.Portfolio().OpenPositions())

	wallets.set(wallet, wp("A", 0.40), wp("B", 0.50))
	require.NoError(t, bot.Poll(ctx, src))
	open := bot.Portfolio().OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, "B", open[0].Key)
	assert.Equal(t, 0.50, open[0].EntryPrice)
	assert.Equal(t, "whale", open[0].SourceName)
	assert.Equal(t, domain.BaselineActive, bot.Baseline(src.ID))

	// a price move marks, an exit closes at the last seen price
	wallets.set(wallet, wp("A", 0.40), wp("B", 0.60))
	require.NoError(t, bot.Poll(ctx, src))
	assert.Equal(t, 0.60, bot.Portfolio().OpenPositions()[0].CurrentPrice)

	wallets.set(wallet, wp("A", 0.40))
	require.NoError(t, bot.Poll(ctx, src))
	assert.Empty(t, bot.Portfolio().OpenPositions())

	resolved := bot.Portfolio().Snapshot().Resolved
	require.Len(t, resolved, 1)
	assert.Equal(t, domain.CloseSourceExit, resolved[0].CloseReason)
	assert.Equal(t, 4.0, resolved[0].RealizedPnL)

	debug := eventsOf[domain.PollDebug](bus, domain.EventPollDebug)
	require.Len(t, debug, 5)
	assert.True(t, debug[0].Baselined)
	assert.Equal(t, 1, debug[2].New)
	assert.Equal(t, 1, debug[4].Closed)
}

func TestMirrorSkipsRedeemableAndBadPrices(t *testing.T) {
	wallets := &fakeWallets{}
	m := NewMirror(wallets, &fakePricer{}, discardLogger())
	bot, bus := newTestBot(t, m, 5)
	ctx := context.Background()
	src, err := bot.AddSource(wallet, "")
	require.NoError(t, err)

	require.NoError(t, bot.Poll(ctx, src))

	redeemable := wp("R", 0.99)
	redeemable.Redeemable = true
	wallets.set(wallet, redeemable, wp("Z", 0))
	require.NoError(t, bot.Poll(ctx, src))
	assert.Empty(t, bot.Portfolio().OpenPositions())

	var rejected []domain.OpportunityEvent
	for _, o := range eventsOf[domain.OpportunityEvent](bus, domain.EventOpportunity) {
		if o.Status == domain.OpportunityRejected {
			rejected = append(rejected, o)
		}
	}
	require.Len(t, rejected, 1)
	assert.Equal(t, "invalid_quote", rejected[0].Reason)
}

func TestMirrorResetRebaselines(t *testing.T) {
	wallets := &fakeWallets{}
	m := NewMirror(wallets, &fakePricer{}, discardLogger())
	bot, _ := newTestBot(t, m, 5)
	ctx := context.Background()
	src, err := bot.AddSource(wallet, "whale")
	require.NoError(t, err)

	require.NoError(t, bot.Poll(ctx, src))
	wallets.set(wallet, wp("A", 0.40))
	require.NoError(t, bot.Poll(ctx, src))
	require.Len(t, bot.Portfolio().OpenPositions(), 1)

	res := bot.Reset()
	assert.Len(t, res.Closed, 1)
	assert.Equal(t, domain.BaselineUninitialized, bot.Baseline(src.ID))

	// after reset, what the wallet already holds is the new baseline
	wallets.set(wallet, wp("A", 0.40), wp("B", 0.30))
	require.NoError(t, bot.Poll(ctx, src))
	assert.Empty(t, bot.Portfolio().OpenPositions())

	wallets.set(wallet, wp("A", 0.40), wp("B", 0.30), wp("C", 0.20))
	require.NoError(t, bot.Poll(ctx, src))
	open := bot.Portfolio().OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, "C", open[0].Key)
}

// slowResetMirror holds ResetBaselines open until release is closed.
type slowResetMirror struct {
	*Mirror
	entered chan struct{}
	release chan struct{}
}

func (s *slowResetMirror) ResetBaselines() {
	close(s.entered)
	<-s.release
	s.Mirror.ResetBaselines()
}

func TestMirrorPollDuringResetNeverUsesOldBaseline(t *testing.T) {
	wallets := &fakeWallets{}
	strat := &slowResetMirror{
		Mirror:  NewMirror(wallets, &fakePricer{}, discardLogger()),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	bot, _ := newTestBot(t, strat, 5)
	ctx := context.Background()
	src, err := bot.AddSource(wallet, "whale")
	require.NoError(t, err)
	require.NoError(t, bot.Poll(ctx, src))

	resetDone := make(chan struct{})
	go func() {
		defer close(resetDone)
		bot.Reset()
	}()
	<-strat.entered

	// the wallet opens a position while the reset is still re-baselining
	wallets.set(wallet, wp("PRE", 0.40))
	pollDone := make(chan error, 1)
	go func() { pollDone <- bot.Poll(ctx, src) }()

	time.Sleep(20 * time.Millisecond)
	close(strat.release)
	<-resetDone
	require.NoError(t, <-pollDone)

	assert.Empty(t, bot.Portfolio().OpenPositions(), "first poll after reset only re-baselines")
	assert.Equal(t, domain.BaselineBaselined, bot.Baseline(src.ID))
}

func TestMirrorFetchErrorLeavesBaselineAlone(t *testing.T) {
	wallets := &fakeWallets{err: domain.ErrRateLimited}
	m := NewMirror(wallets, &fakePricer{}, discardLogger())
	bot, _ := newTestBot(t, m, 5)
	src, err := bot.AddSource(wallet, "")
	require.NoError(t, err)

	err = bot.Poll(context.Background(), src)
	require.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, domain.BaselineUninitialized, bot.Baseline(src.ID))
}
