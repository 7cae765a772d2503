package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/validator"
)

// VenueFees are fractional fees, 0.006 meaning 0.6%.
type VenueFees struct {
	Taker float64
	Maker float64
}

// CryptoConfig tunes cross-venue arbitrage.
type CryptoConfig struct {
	ThresholdPct float64
	// TradeSizeUSDC is the notional walked through each book to estimate
	// slippage.
	TradeSizeUSDC float64
	Fees          map[string]VenueFees
}

// Crypto buys a pair on the venue with the cheaper ask and sells on the one
// with the richer bid. A source is a symbol such as "BTC-USD".
//
// Both legs fill at detection, so an admitted trade is booked as a position
// bought at 1/(1+net) and settled at 1.00 immediately: its realized P&L is
// size * net.
type Crypto struct {
	cfg    CryptoConfig
	venues []domain.VenueBookFetcher
	logger *slog.Logger
	now    func() time.Time
}

// NewCrypto creates the cross-venue strategy over two or more venues.
func NewCrypto(cfg CryptoConfig, venues []domain.VenueBookFetcher, logger *slog.Logger) *Crypto {
	if cfg.TradeSizeUSDC <= 0 {
		cfg.TradeSizeUSDC = 100
	}
	return &Crypto{
		cfg:    cfg,
		venues: venues,
		logger: logger.With(slog.String("component", "crypto_arb")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Name implements Strategy.
func (c *Crypto) Name() string { return "crypto" }

// NormalizeSource accepts BASE-QUOTE symbols and uppercases them.
func (c *Crypto) NormalizeSource(id string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(id))
	base, quote, ok := strings.Cut(sym, "-")
	if !ok || base == "" || quote == "" || strings.Contains(quote, "-") {
		return "", fmt.Errorf("crypto: %q is not a BASE-QUOTE symbol: %w", id, domain.ErrInvalidSource)
	}
	return sym, nil
}

// Spread is one buy-here, sell-there evaluation.
type Spread struct {
	BuyVenue  string
	SellVenue string
	BuyAsk    float64
	SellBid   float64
	Quote     validator.CrossVenueQuote
}

// Spread evaluates buying on a and selling on b.
func (c *Crypto) Spread(a, b domain.VenueBook) (Spread, bool) {
	ask, bid := a.BestAsk(), b.BestBid()
	if ask <= 0 || bid <= 0 {
		return Spread{}, false
	}
	buyVWAP, _ := domain.WalkBuy(a.Asks, c.cfg.TradeSizeUSDC)
	sellVWAP, _ := domain.WalkSell(b.Bids, c.cfg.TradeSizeUSDC)

	fa, fb := c.cfg.Fees[a.Venue], c.cfg.Fees[b.Venue]
	return Spread{
		BuyVenue:  a.Venue,
		SellVenue: b.Venue,
		BuyAsk:    ask,
		SellBid:   bid,
		Quote: validator.CrossVenueQuote{
			RawSpreadPct: (bid - ask) / ask * 100,
			FeePct:       (fa.Taker + fb.Maker) * 100,
			SlippagePct:  relDiffPct(buyVWAP, ask) + relDiffPct(sellVWAP, bid),
		},
	}, true
}

func relDiffPct(v, ref float64) float64 {
	if ref <= 0 {
		return 0
	}
	d := (v - ref) / ref * 100
	if d < 0 {
		return -d
	}
	return d
}

// Poll implements Strategy.
func (c *Crypto) Poll(ctx context.Context, src domain.Source, pf Portfolio) (domain.PollDebug, error) {
	epoch := pf.Epoch()

	books := make([]domain.VenueBook, len(c.venues))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range c.venues {
		g.Go(func() error {
			b, err := v.FetchVenueBook(gctx, src.ID)
			if err != nil {
				return fmt.Errorf("%s book: %w", v.Venue(), err)
			}
			b.Venue = v.Venue()
			books[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.PollDebug{}, fmt.Errorf("crypto: %w", err)
	}

	dbg := domain.PollDebug{Items: len(books)}
	now := c.now()
	for i := range books {
		for j := range books {
			if i == j {
				continue
			}
			sp, ok := c.Spread(books[i], books[j])
			if !ok {
				continue
			}
			if sp.Quote.RawSpreadPct <= 0 {
				continue
			}
			dbg.Candidates++
			if err := c.evaluate(sp, src, epoch, now, pf); err != nil {
				return dbg, err
			}
		}
	}
	return dbg, nil
}

func (c *Crypto) evaluate(sp Spread, src domain.Source, epoch uint64, now time.Time, pf Portfolio) error {
	dec := validator.CrossVenue(sp.Quote, c.cfg.ThresholdPct)
	side := sp.BuyVenue + ">" + sp.SellVenue
	opp := domain.Opportunity{
		SourceID:   src.ID,
		MarketID:   src.ID,
		Question:   fmt.Sprintf("%s buy %s sell %s", src.ID, sp.BuyVenue, sp.SellVenue),
		Side:       side,
		EdgePct:    dec.EdgePct,
		Price:      sp.BuyAsk,
		DetectedAt: now,
		Detail: map[string]string{
			"raw_pct":  strconv.FormatFloat(sp.Quote.RawSpreadPct, 'f', 4, 64),
			"fee_pct":  strconv.FormatFloat(sp.Quote.FeePct, 'f', 4, 64),
			"slip_pct": strconv.FormatFloat(sp.Quote.SlippagePct, 'f', 4, 64),
			"sell_bid": strconv.FormatFloat(sp.SellBid, 'f', -1, 64),
		},
	}
	if !dec.Accepted || dec.EdgePct <= 0 {
		reason := dec.Reason
		if reason == "" {
			reason = validator.ReasonBelowThreshold
		}
		pf.Reject(opp, reason)
		return nil
	}

	c.logger.Info("crypto: spread found",
		slog.String("symbol", src.ID),
		slog.String("route", side),
		slog.Float64("net_pct", dec.EdgePct),
	)
	_, err := pf.Admit(domain.Candidate{
		Key:        src.ID + ":" + side + ":" + strconv.FormatInt(now.UnixNano(), 36),
		SourceID:   src.ID,
		SourceName: src.Nickname,
		MarketID:   src.ID,
		Question:   opp.Question,
		Side:       side,
		EntryPrice: 1 / (1 + dec.EdgePct/100),
		EdgePct:    dec.EdgePct,
		Settlement: domain.SettleInstant,
		DetectedAt: now,
		Epoch:      epoch,
	})
	return err
}

// Marks implements Strategy. Crypto positions settle on entry and are never
// left open.
func (c *Crypto) Marks(context.Context, []domain.Position) (map[string]domain.Mark, error) {
	return nil, nil
}

// Baseline implements Strategy.
func (c *Crypto) Baseline(string) domain.BaselineState { return domain.BaselineActive }

// ResetBaselines implements Strategy.
func (c *Crypto) ResetBaselines() {}

// Forget implements Strategy.
func (c *Crypto) Forget(string) {}

var _ Strategy = (*Crypto)(nil)
