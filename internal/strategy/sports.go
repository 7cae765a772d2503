package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/validator"
)

// SportsConfig tunes same-market YES+NO arbitrage.
type SportsConfig struct {
	validator.SameMarketConfig
	// PrescreenBuffer widens the listing-price prescreen so that markets whose
	// implied NO ask is slightly off still get a real book check.
	PrescreenBuffer float64
	// BookDepth is how many ask levels count as liquidity; 0 uses the whole
	// side.
	BookDepth int
	// Concurrency bounds parallel book fetches per poll.
	Concurrency int
}

// Sports looks for binary markets under a tag whose YES and NO asks sum to
// less than 1. A source is a Gamma tag such as "nba".
type Sports struct {
	cfg     SportsConfig
	markets domain.MarketLister
	books   domain.BookFetcher
	marks   domain.MarketResolver
	logger  *slog.Logger
	now     func() time.Time
}

// NewSports creates the sports arbitrage strategy.
func NewSports(cfg SportsConfig, markets domain.MarketLister, books domain.BookFetcher, marks domain.MarketResolver, logger *slog.Logger) *Sports {
	if cfg.PrescreenBuffer <= 0 {
		cfg.PrescreenBuffer = 0.02
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	return &Sports{
		cfg:     cfg,
		markets: markets,
		books:   books,
		marks:   marks,
		logger:  logger.With(slog.String("component", "sports_arb")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Name implements Strategy.
func (s *Sports) Name() string { return "sports" }

// NormalizeSource accepts a lowercase tag slug.
func (s *Sports) NormalizeSource(id string) (string, error) {
	tag := strings.ToLower(strings.TrimSpace(id))
	if tag == "" || strings.ContainsAny(tag, " /?&#") {
		return "", fmt.Errorf("sports: %q is not a tag: %w", id, domain.ErrInvalidSource)
	}
	return tag, nil
}

// Prescreen estimates the pair cost from listing prices: YES at the best ask
// and NO at 1 - best bid. Markets without both quotes pass so the book can
// decide.
func (s *Sports) Prescreen(m domain.Market) bool {
	if m.BestAsk <= 0 || m.BestBid <= 0 {
		return true
	}
	yes, no := m.BestAsk, 1-m.BestBid
	if yes >= 1 || no <= 0 || no >= 1 {
		return false
	}
	threshold := 1 - s.cfg.MinProfitThresholdPct/100 + s.cfg.PrescreenBuffer
	return yes+no < threshold
}

type pairQuote struct {
	market domain.Market
	yes    domain.Book
	no     domain.Book
}

// Poll implements Strategy.
func (s *Sports) Poll(ctx context.Context, src domain.Source, pf Portfolio) (domain.PollDebug, error) {
	epoch := pf.Epoch()
	markets, err := s.markets.ListMarkets(ctx, src.ID)
	if err != nil {
		return domain.PollDebug{}, fmt.Errorf("sports: list markets: %w", err)
	}

	var candidates []domain.Market
	for _, m := range markets {
		if !m.Active || m.Closed || m.TokenIDs[0] == "" || m.TokenIDs[1] == "" {
			continue
		}
		if s.Prescreen(m) {
			candidates = append(candidates, m)
		}
	}
	dbg := domain.PollDebug{Items: len(markets), Candidates: len(candidates)}
	if len(candidates) == 0 {
		return dbg, nil
	}

	quotes := make([]pairQuote, len(candidates))
	ok := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, m := range candidates {
		g.Go(func() error {
			yes, err := s.books.FetchBook(gctx, m.TokenIDs[0])
			if err != nil {
				s.logger.Debug("sports: book fetch failed", slog.String("market", m.ID), slog.String("error", err.Error()))
				return nil
			}
			no, err := s.books.FetchBook(gctx, m.TokenIDs[1])
			if err != nil {
				s.logger.Debug("sports: book fetch failed", slog.String("market", m.ID), slog.String("error", err.Error()))
				return nil
			}
			quotes[i] = pairQuote{market: m, yes: yes, no: no}
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return dbg, err
	}

	now := s.now()
	for i, q := range quotes {
		if !ok[i] {
			continue
		}
		if err := s.evaluate(q, src, epoch, now, pf); err != nil {
			return dbg, err
		}
	}
	return dbg, nil
}

func (s *Sports) evaluate(q pairQuote, src domain.Source, epoch uint64, now time.Time, pf Portfolio) error {
	quote := validator.SameMarketQuote{
		YesAsk:       q.yes.BestAsk(),
		NoAsk:        q.no.BestAsk(),
		YesLiquidity: q.yes.AskDepthUSDC(s.cfg.BookDepth),
		NoLiquidity:  q.no.AskDepthUSDC(s.cfg.BookDepth),
		SlippagePct: math.Max(
			slippagePct(q.yes.BestAsk(), q.market.BestAsk),
			slippagePct(q.no.BestAsk(), 1-q.market.BestBid),
		),
	}
	dec := validator.SameMarket(quote, s.cfg.SameMarketConfig)

	opp := domain.Opportunity{
		SourceID:   src.ID,
		MarketID:   q.market.ID,
		Question:   q.market.Question,
		Side:       "YES+NO",
		EdgePct:    dec.EdgePct,
		Price:      quote.CombinedCost(),
		DetectedAt: now,
		Detail: map[string]string{
			"yes_ask":      strconv.FormatFloat(quote.YesAsk, 'f', 4, 64),
			"no_ask":       strconv.FormatFloat(quote.NoAsk, 'f', 4, 64),
			"slippage_pct": strconv.FormatFloat(quote.SlippagePct, 'f', 2, 64),
		},
	}
	if !dec.Accepted {
		pf.Reject(opp, dec.Reason)
		return nil
	}

	s.logger.Info("sports: arbitrage found",
		slog.String("market", q.market.ID),
		slog.Float64("combined", quote.CombinedCost()),
		slog.Float64("edge_pct", dec.EdgePct),
	)
	_, err := pf.Admit(domain.Candidate{
		Key:        q.market.ID,
		SourceID:   src.ID,
		SourceName: src.Nickname,
		MarketID:   q.market.ID,
		Question:   q.market.Question,
		Side:       "YES+NO",
		EntryPrice: quote.CombinedCost(),
		EdgePct:    dec.EdgePct,
		Settlement: domain.SettleOnResolution,
		DetectedAt: now,
		Epoch:      epoch,
	})
	return err
}

// slippagePct is how far the live ask moved from the listed quote, in
// percent of the quote. Without a usable quote it is zero.
func slippagePct(live, quoted float64) float64 {
	if quoted <= 0 || quoted >= 1 || live <= 0 {
		return 0
	}
	return math.Abs(live-quoted) / quoted * 100
}

// Marks implements Strategy. A held pair is worth the sum of both outcome
// prices; once the market resolves it pays 1.00.
func (s *Sports) Marks(ctx context.Context, open []domain.Position) (map[string]domain.Mark, error) {
	out := make(map[string]domain.Mark, len(open))
	for _, p := range open {
		m, err := s.marks.MarketMark(ctx, p.MarketID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Debug("sports: mark failed", slog.String("market", p.MarketID), slog.String("error", err.Error()))
			continue
		}
		m.Price = clampPrice(m.Price)
		out[p.Key] = m
	}
	return out, nil
}

// Baseline implements Strategy. Sports scans are stateless between polls.
func (s *Sports) Baseline(string) domain.BaselineState { return domain.BaselineActive }

// ResetBaselines implements Strategy.
func (s *Sports) ResetBaselines() {}

// Forget implements Strategy.
func (s *Sports) Forget(string) {}

var _ Strategy = (*Sports)(nil)
