package strategy

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

type fakeHistory struct {
	*fakeWallets
	trades     []domain.WalletTrade
	redeemable []domain.WalletPosition
	gate       chan struct{} // when set, FetchActivity waits on it
	calls      atomic.Int32
}

func (f *fakeHistory) FetchActivity(ctx context.Context, _ string, limit int) ([]domain.WalletTrade, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.trades[:min(limit, len(f.trades))], nil
}

func (f *fakeHistory) FetchRedeemable(context.Context, string) ([]domain.WalletPosition, error) {
	return f.redeemable, nil
}

var analysisNow = time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

func buy(title, outcome string, price, usdc float64, daysAgo int) domain.WalletTrade {
	return domain.WalletTrade{
		Side:      domain.TradeBuy,
		Outcome:   outcome,
		Title:     title,
		Price:     price,
		USDCSize:  usdc,
		Timestamp: analysisNow.Add(-time.Duration(daysAgo) * 24 * time.Hour),
	}
}

func TestAnalyzeWallet(t *testing.T) {
	trades := []domain.WalletTrade{
		buy("Arsenal vs Chelsea O/U 2.5", "Yes", 0.25, 40, 0),
		buy("Lakers vs Knicks", "No", 0.45, 75, 0),
		buy("Will Bitcoin hit 100k?", "Yes", 0.60, 120, 2),
		buy("Senate control", "No", 0.80, 300, 45),
		buy("Who wins the Oscars?", "Yes", 0.95, 900, 3),
		{Side: domain.TradeSell, Title: "Arsenal vs Chelsea O/U 2.5", Price: 0.5, USDCSize: 60},
	}

	a := AnalyzeWallet(wallet, trades, 4, 2, analysisNow)

	assert.Equal(t, 6, a.Trades)
	assert.Equal(t, 5, a.BuyTrades)
	assert.Equal(t, 1, a.SellTrades)
	assert.Equal(t, 4, a.ActivePositions)
	assert.Equal(t, 2, a.RedeemableWins)

	require.NotNil(t, a.Sizing)
	assert.Equal(t, 5, a.Sizing.Count)
	assert.Equal(t, 40.0, a.Sizing.Min)
	assert.Equal(t, 900.0, a.Sizing.Max)
	assert.Equal(t, 120.0, a.Sizing.Median)
	assert.Equal(t, 287.0, a.Sizing.Mean)
	assert.Equal(t, 75.0, a.Sizing.P25)
	assert.Equal(t, 300.0, a.Sizing.P75)
	assert.Equal(t, 900.0, a.Sizing.P95)
	assert.Equal(t, 1435.0, a.Sizing.TotalUSDC)
	assert.Equal(t, map[string]int{
		"<$50": 1, "$50-100": 1, "$100-250": 1, "$250-500": 1, "$500+": 1,
	}, a.Sizing.Buckets)

	require.NotNil(t, a.Prices)
	assert.Equal(t, 0.61, a.Prices.Mean)
	assert.Equal(t, 0.60, a.Prices.Median)
	assert.Equal(t, map[string]int{
		"<30%": 1, "30-50%": 1, "50-70%": 1, "70-90%": 1, ">90%": 1,
	}, a.Prices.Buckets)

	assert.Equal(t, domain.OutcomeSplit{YesCount: 3, NoCount: 2, YesPct: 60, NoPct: 40}, a.Outcomes)
	assert.Equal(t, map[string]int{
		"Soccer": 1, "Basketball": 1, "Crypto": 1, "Politics": 1, "Other": 1,
	}, a.Categories)

	require.NotNil(t, a.Timing)
	assert.Equal(t, 4, a.Timing.DaysWithTrades)
	assert.Equal(t, 4, a.Timing.TradesLast30d)
	assert.Equal(t, 2, a.Timing.MostActiveDayTrades)
	assert.Equal(t, 0.1, a.Timing.AvgTradesPerDay)
	assert.Equal(t, analysisNow.Add(-45*24*time.Hour), a.Timing.FirstTrade)
	assert.Equal(t, analysisNow, a.Timing.LastTrade)
}

func TestAnalyzeWalletWithoutBuys(t *testing.T) {
	a := AnalyzeWallet(wallet, []domain.WalletTrade{{Side: domain.TradeSell}}, 0, 0, analysisNow)
	assert.Equal(t, 1, a.SellTrades)
	assert.Nil(t, a.Sizing)
	assert.Nil(t, a.Prices)
	assert.Nil(t, a.Timing)
	assert.Empty(t, a.Categories)
	assert.Zero(t, a.Outcomes.YesPct)
}

func TestMirrorAnalyzeCachesForFiveMinutes(t *testing.T) {
	hist := &fakeHistory{
		fakeWallets: &fakeWallets{},
		trades:      []domain.WalletTrade{buy("NBA finals", "Yes", 0.5, 100, 0)},
		redeemable:  []domain.WalletPosition{wp("R", 1)},
	}
	hist.set(wallet, wp("A", 0.4), wp("B", 0.6))
	m := NewMirror(hist, &fakePricer{}, discardLogger())
	now := analysisNow
	m.now = func() time.Time { return now }

	a, err := m.Analyze(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, 2, a.ActivePositions)
	assert.Equal(t, 1, a.RedeemableWins)
	assert.Equal(t, map[string]int{"Basketball": 1}, a.Categories)

	now = now.Add(4 * time.Minute)
	_, err = m.Analyze(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hist.calls.Load())

	now = now.Add(2 * time.Minute)
	a, err = m.Analyze(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hist.calls.Load())
	assert.Equal(t, now, a.FetchedAt)

	m.Forget(wallet)
	_, err = m.Analyze(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hist.calls.Load())
}

func TestMirrorAnalyzeSharesConcurrentFetch(t *testing.T) {
	hist := &fakeHistory{fakeWallets: &fakeWallets{}, gate: make(chan struct{})}
	m := NewMirror(hist, &fakePricer{}, discardLogger())

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Analyze(context.Background(), wallet)
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return hist.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(hist.gate)
	wg.Wait()
	assert.Equal(t, int32(1), hist.calls.Load())
}

func TestMirrorAnalyzeWithoutHistory(t *testing.T) {
	m := NewMirror(&fakeWallets{}, &fakePricer{}, discardLogger())
	_, err := m.Analyze(context.Background(), wallet)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBotSourceAnalysis(t *testing.T) {
	hist := &fakeHistory{fakeWallets: &fakeWallets{}}
	bot, _ := newTestBot(t, NewMirror(hist, &fakePricer{}, discardLogger()), 2)
	ctx := context.Background()

	_, err := bot.SourceAnalysis(ctx, wallet)
	require.ErrorIs(t, err, domain.ErrNotFound, "unknown source")

	_, err = bot.AddSource(wallet, "")
	require.NoError(t, err)
	a, err := bot.SourceAnalysis(ctx, "0x56687BF447DB6FFA42FFE2204A05EDAA20F55839")
	require.NoError(t, err)
	assert.Equal(t, wallet, a.Address)

	sports, _ := newTestBot(t, newSports(&fakeMarkets{}), 2)
	_, err = sports.AddSource("nba", "")
	require.NoError(t, err)
	_, err = sports.SourceAnalysis(ctx, "nba")
	require.ErrorIs(t, err, domain.ErrNotFound, "strategy without analysis")
}
