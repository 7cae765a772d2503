package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/validator"
)

var defaultFees = map[string]VenueFees{
	"coinbase": {Taker: 0.006, Maker: 0.004},
	"kraken":   {Taker: 0.0026, Maker: 0.0016},
}

func venueBook(ask, bid float64) domain.VenueBook {
	return domain.VenueBook{
		Asks: []domain.PriceLevel{{Price: ask, Size: 5}},
		Bids: []domain.PriceLevel{{Price: bid, Size: 5}},
	}
}

func newCrypto(threshold float64, coinbase, kraken domain.VenueBook) *Crypto {
	return NewCrypto(CryptoConfig{ThresholdPct: threshold, Fees: defaultFees}, []domain.VenueBookFetcher{
		&fakeVenue{name: "coinbase", book: coinbase},
		&fakeVenue{name: "kraken", book: kraken},
	}, discardLogger())
}

func TestCryptoNormalizeSource(t *testing.T) {
	c := newCrypto(0.3, venueBook(1, 1), venueBook(1, 1))
	sym, err := c.NormalizeSource("btc-usd")
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", sym)

	for _, bad := range []string{"BTCUSD", "-USD", "BTC-", "A-B-C"} {
		_, err := c.NormalizeSource(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidSource, bad)
	}
}

func TestCryptoSpreadNetsFeesAndSlippage(t *testing.T) {
	c := newCrypto(0.3, domain.VenueBook{}, domain.VenueBook{})
	a := venueBook(100, 99.9)
	a.Venue = "coinbase"
	b := venueBook(101.5, 101.2)
	b.Venue = "kraken"

	sp, ok := c.Spread(a, b)
	require.True(t, ok)
	assert.InDelta(t, 1.2, sp.Quote.RawSpreadPct, 1e-9)
	assert.InDelta(t, 0.76, sp.Quote.FeePct, 1e-9)
	assert.InDelta(t, 0, sp.Quote.SlippagePct, 1e-9)
	assert.InDelta(t, 0.44, sp.Quote.NetPct(), 1e-9)

	// a thin ask side walks into a worse level
	a.Asks = []domain.PriceLevel{{Price: 100, Size: 0.5}, {Price: 101, Size: 5}}
	sp, ok = c.Spread(a, b)
	require.True(t, ok)
	assert.Greater(t, sp.Quote.SlippagePct, 0.0)

	_, ok = c.Spread(domain.VenueBook{Venue: "coinbase"}, b)
	assert.False(t, ok)
}

func TestCryptoPollSettlesInstantly(t *testing.T) {
	c := newCrypto(0.3, venueBook(100, 99.9), venueBook(101.5, 101.2))
	bot, bus := newTestBot(t, c, 5)
	src, err := bot.AddSource("BTC-USD", "")
	require.NoError(t, err)
	require.NoError(t, bot.Poll(context.Background(), src))

	ov := bot.Portfolio().Overview()
	assert.Equal(t, 0, ov.SlotsUsed)
	assert.Equal(t, 1, ov.Wins)
	assert.InDelta(t, 0.088, ov.RealizedPnL, 1e-6)
	assert.InDelta(t, 1000.088, ov.Balance, 0.01)

	closed := eventsOf[domain.Position](bus, domain.EventPositionClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, "coinbase>kraken", closed[0].Side)
	assert.Equal(t, domain.SettleInstant, closed[0].Settlement)

	debug := eventsOf[domain.PollDebug](bus, domain.EventPollDebug)
	require.Len(t, debug, 1)
	assert.Equal(t, 1, debug[0].Candidates, "only the profitable direction is evaluated")
	assert.Zero(t, debug[0].New)
}

func TestCryptoRejectsBelowThreshold(t *testing.T) {
	c := newCrypto(0.5, venueBook(100, 99.9), venueBook(101.5, 101.2))
	bot, bus := newTestBot(t, c, 5)
	src, err := bot.AddSource("BTC-USD", "")
	require.NoError(t, err)
	require.NoError(t, bot.Poll(context.Background(), src))

	assert.Equal(t, 0, bot.Portfolio().Overview().Wins)
	opps := eventsOf[domain.OpportunityEvent](bus, domain.EventOpportunity)
	require.Len(t, opps, 1)
	assert.Equal(t, domain.OpportunityRejected, opps[0].Status)
	assert.Equal(t, string(validator.ReasonBelowThreshold), opps[0].Reason)
	assert.InDelta(t, 0.44, opps[0].Opportunity.EdgePct, 1e-9)
}
