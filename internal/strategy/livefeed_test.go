package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/validator"
)

func fixture(home, away, minute int) domain.Fixture {
	return domain.Fixture{
		ID:        "f1",
		League:    "39",
		HomeTeam:  "Arsenal",
		AwayTeam:  "Chelsea",
		HomeScore: home,
		AwayScore: away,
		Minute:    minute,
		Status:    "1H",
	}
}

func arsenalMarket(ask, bid float64) domain.Market {
	return domain.Market{
		ID:       "ars-che",
		Question: "Arsenal vs. Chelsea: Will Arsenal win?",
		TokenIDs: [2]string{"ars-yes", "ars-no"},
		BestAsk:  ask,
		BestBid:  bid,
		Active:   true,
	}
}

func TestClassify(t *testing.T) {
	at := time.Date(2026, 3, 1, 15, 20, 0, 0, time.UTC)
	tests := []struct {
		name string
		prev domain.Fixture
		cur  domain.Fixture
		want []domain.LiveEventKind
	}{
		{"goal", fixture(0, 0, 10), fixture(1, 0, 20), []domain.LiveEventKind{domain.LiveGoal}},
		{"clock only", fixture(0, 0, 10), fixture(0, 0, 11), nil},
		{"red card", fixture(0, 0, 10), func() domain.Fixture { f := fixture(0, 0, 30); f.RedCards = 1; return f }(), []domain.LiveEventKind{domain.LiveRedCard}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var kinds []domain.LiveEventKind
			for _, ev := range Classify(tt.prev, tt.cur, at) {
				kinds = append(kinds, ev.Kind)
				assert.Equal(t, at, ev.DetectedAt)
			}
			assert.Equal(t, tt.want, kinds)
		})
	}
}

func TestFairProbs(t *testing.T) {
	p := FairProbs(1, 0, 20, false, 0.12)
	assert.Equal(t, OutcomeProbs{Home: 0.62, Draw: 0.24, Away: 0.14}, p)

	p = FairProbs(4, 0, 80, false, 0.12)
	assert.Equal(t, 0.90, p.Home, "goal difference is clipped to two")

	p = FairProbs(0, 0, 30, true, 0.12)
	assert.InDelta(t, 0.28, p.Home, 1e-9)

	p = FairProbs(2, 0, 60, true, 0.12)
	assert.Equal(t, 0.99, p.Home)
}

func TestMatchScore(t *testing.T) {
	assert.Equal(t, 1.0, MatchScore("Arsenal vs. Chelsea: Will Arsenal win?", "Arsenal", "Chelsea"))
	assert.Equal(t, 0.5, MatchScore("Will Arsenal win the league?", "Arsenal", "Chelsea"))
	assert.Equal(t, 1.0, MatchScore("Manchester United vs Tottenham", "Man Utd", "Spurs"))
	assert.Equal(t, 0.0, MatchScore("Lakers vs Celtics", "Arsenal", "Chelsea"))
}

func newLive(fixtures *fakeFixtures, markets *fakeMarkets) *LiveEvents {
	return NewLiveEvents(LiveConfig{}, fixtures, markets, &fakePricer{}, discardLogger())
}

func TestLiveEventsBuysYesAfterGoal(t *testing.T) {
	fixtures := &fakeFixtures{polls: [][]domain.Fixture{
		{fixture(0, 0, 10)},
		{fixture(1, 0, 20)},
	}}
	markets := &fakeMarkets{markets: []domain.Market{arsenalMarket(0.50, 0.48)}}
	bot, bus := newTestBot(t, newLive(fixtures, markets), 5)
	ctx := context.Background()
	src, err := bot.AddSource("39", "premier league")
	require.NoError(t, err)

	require.NoError(t, bot.Poll(ctx, src))
	assert.Equal(t, domain.BaselineBaselined, bot.Baseline(src.ID))
	assert.Empty(t, bot.Portfolio().OpenPositions())

	require.NoError(t, bot.Poll(ctx, src))
	open := bot.Portfolio().OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, "ars-yes", open[0].Key)
	assert.Equal(t, "Yes", open[0].Side)
	assert.Equal(t, 0.50, open[0].EntryPrice)
	assert.InDelta(t, 12.0, open[0].EdgePct, 1e-9)

	live := eventsOf[domain.LiveEvent](bus, domain.EventLive)
	require.Len(t, live, 1)
	assert.Equal(t, domain.LiveGoal, live[0].Kind)
}

func TestLiveEventsBuysNoWhenYesOverpriced(t *testing.T) {
	fixtures := &fakeFixtures{polls: [][]domain.Fixture{
		{fixture(0, 0, 10)},
		{fixture(1, 0, 20)},
	}}
	markets := &fakeMarkets{markets: []domain.Market{arsenalMarket(0.75, 0.70)}}
	bot, _ := newTestBot(t, newLive(fixtures, markets), 5)
	ctx := context.Background()
	src, err := bot.AddSource("39", "")
	require.NoError(t, err)
	require.NoError(t, bot.Poll(ctx, src))
	require.NoError(t, bot.Poll(ctx, src))

	open := bot.Portfolio().OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, "ars-no", open[0].Key)
	assert.Equal(t, "No", open[0].Side)
	assert.InDelta(t, 0.30, open[0].EntryPrice, 1e-9)
	assert.InDelta(t, 13.0, open[0].EdgePct, 1e-9)
}

func TestLiveEventsSmallEdgeRejected(t *testing.T) {
	fixtures := &fakeFixtures{polls: [][]domain.Fixture{
		{fixture(0, 0, 10)},
		{fixture(1, 0, 20)},
	}}
	markets := &fakeMarkets{markets: []domain.Market{arsenalMarket(0.60, 0.58)}}
	bot, bus := newTestBot(t, newLive(fixtures, markets), 5)
	ctx := context.Background()
	src, err := bot.AddSource("39", "")
	require.NoError(t, err)
	require.NoError(t, bot.Poll(ctx, src))
	require.NoError(t, bot.Poll(ctx, src))

	assert.Empty(t, bot.Portfolio().OpenPositions())
	opps := eventsOf[domain.OpportunityEvent](bus, domain.EventOpportunity)
	require.Len(t, opps, 1)
	assert.Equal(t, string(validator.ReasonBelowThreshold), opps[0].Reason)
}

func TestLiveEventsMatchStartAndEnd(t *testing.T) {
	second := fixture(0, 0, 1)
	second.ID = "f2"
	fixtures := &fakeFixtures{polls: [][]domain.Fixture{
		{fixture(0, 0, 10)},
		{fixture(0, 0, 10), second},
		{second},
	}}
	bot, bus := newTestBot(t, newLive(fixtures, &fakeMarkets{}), 5)
	ctx := context.Background()
	src, err := bot.AddSource("39", "")
	require.NoError(t, err)
	for range 3 {
		require.NoError(t, bot.Poll(ctx, src))
	}

	var kinds []domain.LiveEventKind
	for _, ev := range eventsOf[domain.LiveEvent](bus, domain.EventLive) {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []domain.LiveEventKind{domain.LiveMatchStart, domain.LiveMatchEnd}, kinds)
}

func TestLiveEventsNormalizeSource(t *testing.T) {
	l := newLive(&fakeFixtures{}, &fakeMarkets{})
	id, err := l.NormalizeSource(" 39 ")
	require.NoError(t, err)
	assert.Equal(t, "39", id)

	for _, bad := range []string{"", "epl", "-1", "0"} {
		_, err := l.NormalizeSource(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidSource, bad)
	}
}
