package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/paperbot/internal/baseline"
	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/validator"
)

const (
	// analysisTTL is how long a wallet analysis is served from cache.
	analysisTTL = 5 * time.Minute
	// activityLimit is how many recent trades an analysis covers.
	activityLimit = 500
)

// Mirror copies the entries and exits of watched wallets. Each wallet is a
// source; its first successful poll only establishes the baseline.
type Mirror struct {
	positions domain.PositionFetcher
	prices    domain.TokenPricer
	history   domain.WalletHistory // nil when positions cannot read history
	logger    *slog.Logger
	now       func() time.Time

	analyzing singleflight.Group

	mu       sync.Mutex
	differs  map[string]*baseline.Differ[domain.WalletPosition]
	analyses map[string]domain.WalletAnalysis
}

// NewMirror creates the wallet-mirroring strategy. Wallet analysis is
// available when positions also implements domain.WalletHistory.
func NewMirror(positions domain.PositionFetcher, prices domain.TokenPricer, logger *slog.Logger) *Mirror {
	history, _ := positions.(domain.WalletHistory)
	return &Mirror{
		positions: positions,
		prices:    prices,
		history:   history,
		logger:    logger.With(slog.String("component", "mirror")),
		now:       func() time.Time { return time.Now().UTC() },
		differs:   make(map[string]*baseline.Differ[domain.WalletPosition]),
		analyses:  make(map[string]domain.WalletAnalysis),
	}
}

// Name implements Strategy.
func (m *Mirror) Name() string { return "mirror" }

// NormalizeSource accepts a 0x-prefixed 20-byte hex address and lowercases it.
func (m *Mirror) NormalizeSource(id string) (string, error) {
	id = strings.TrimSpace(id)
	if !strings.HasPrefix(id, "0x") || !common.IsHexAddress(id) {
		return "", fmt.Errorf("mirror: %q is not a wallet address: %w", id, domain.ErrInvalidSource)
	}
	return strings.ToLower(common.HexToAddress(id).Hex()), nil
}

func (m *Mirror) differ(sourceID string) *baseline.Differ[domain.WalletPosition] {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.differs[sourceID]
	if !ok {
		d = baseline.New(
			func(p domain.WalletPosition) string { return p.Asset },
			func(a, b domain.WalletPosition) bool { return a.Size == b.Size && a.CurPrice == b.CurPrice },
		)
		m.differs[sourceID] = d
	}
	return d
}

// Poll implements Strategy.
func (m *Mirror) Poll(ctx context.Context, src domain.Source, pf Portfolio) (domain.PollDebug, error) {
	epoch := pf.Epoch()
	held, err := m.positions.FetchPositions(ctx, src.ID)
	if err != nil {
		return domain.PollDebug{}, fmt.Errorf("mirror: fetch positions: %w", err)
	}

	active := held[:0:0]
	for _, p := range held {
		if p.Asset == "" || p.Redeemable || p.Size <= 0 {
			continue
		}
		active = append(active, p)
	}

	diff := m.differ(src.ID).Apply(active)
	dbg := domain.PollDebug{
		Items:     len(active),
		New:       len(diff.New),
		Closed:    len(diff.Closed),
		Updated:   len(diff.Updated),
		Baselined: diff.Baselined,
	}
	if diff.Baselined {
		m.logger.Info("mirror: baseline snapshot taken, existing positions not mirrored",
			slog.String("source", src.ID),
			slog.Int("positions", len(active)),
		)
		return dbg, nil
	}

	now := m.now()
	for _, p := range diff.New {
		c := domain.Candidate{
			Key:        p.Asset,
			SourceID:   src.ID,
			SourceName: src.Nickname,
			MarketID:   p.ConditionID,
			Question:   p.Title,
			Side:       p.Outcome,
			EntryPrice: p.CurPrice,
			Settlement: domain.SettleOnResolution,
			DetectedAt: now,
			Epoch:      epoch,
		}
		if p.CurPrice <= 0 || p.CurPrice >= 1 {
			pf.Reject(opportunityOf(c), validator.ReasonInvalidQuote)
			continue
		}
		adm, err := pf.Admit(c)
		if err != nil {
			return dbg, err
		}
		m.logger.Info("mirror: wallet opened position",
			slog.String("source", src.ID),
			slog.String("asset", p.Asset),
			slog.Float64("price", p.CurPrice),
			slog.String("outcome", string(adm.Outcome)),
		)
	}

	for _, p := range diff.Closed {
		exit := clampPrice(p.CurPrice)
		pos, found, err := pf.CloseKey(src.ID, p.Asset, exit, domain.CloseSourceExit)
		if err != nil {
			return dbg, err
		}
		if found {
			m.logger.Info("mirror: wallet exited position",
				slog.String("source", src.ID),
				slog.String("asset", p.Asset),
				slog.Float64("exit", exit),
				slog.Float64("realized_pnl", pos.RealizedPnL),
			)
		}
	}

	if len(diff.Updated) > 0 {
		prices := make(map[string]float64, len(diff.Updated))
		for _, p := range diff.Updated {
			if p.CurPrice >= 0 && p.CurPrice <= 1 {
				prices[p.Asset] = p.CurPrice
			}
		}
		pf.Mark(prices)
	}
	return dbg, nil
}

// Marks implements Strategy using token prices.
func (m *Mirror) Marks(ctx context.Context, open []domain.Position) (map[string]domain.Mark, error) {
	ids := make([]string, 0, len(open))
	for _, p := range open {
		ids = append(ids, p.Key)
	}
	marks, err := m.prices.TokenPrices(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("mirror: token prices: %w", err)
	}
	return marks, nil
}

// Baseline implements Strategy.
func (m *Mirror) Baseline(sourceID string) domain.BaselineState {
	m.mu.Lock()
	d, ok := m.differs[sourceID]
	m.mu.Unlock()
	if !ok {
		return domain.BaselineUninitialized
	}
	return d.State()
}

// ResetBaselines implements Strategy.
func (m *Mirror) ResetBaselines() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.differs {
		d.Reset()
	}
}

// Forget implements Strategy.
func (m *Mirror) Forget(sourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.differs, sourceID)
	delete(m.analyses, sourceID)
}

// Analyze summarizes how the wallet behind sourceID trades. A result is
// reused for analysisTTL and concurrent callers share one fetch.
func (m *Mirror) Analyze(ctx context.Context, sourceID string) (domain.WalletAnalysis, error) {
	if m.history == nil {
		return domain.WalletAnalysis{}, fmt.Errorf("mirror: wallet history unavailable: %w", domain.ErrNotFound)
	}
	m.mu.Lock()
	cached, ok := m.analyses[sourceID]
	m.mu.Unlock()
	if ok && m.now().Sub(cached.FetchedAt) < analysisTTL {
		return cached, nil
	}

	v, err, _ := m.analyzing.Do(sourceID, func() (any, error) {
		trades, err := m.history.FetchActivity(ctx, sourceID, activityLimit)
		if err != nil {
			return nil, fmt.Errorf("mirror: activity: %w", err)
		}
		active, err := m.positions.FetchPositions(ctx, sourceID)
		if err != nil {
			return nil, fmt.Errorf("mirror: fetch positions: %w", err)
		}
		redeemable, err := m.history.FetchRedeemable(ctx, sourceID)
		if err != nil {
			return nil, fmt.Errorf("mirror: redeemable positions: %w", err)
		}
		a := AnalyzeWallet(sourceID, trades, len(active), len(redeemable), m.now())
		m.mu.Lock()
		m.analyses[sourceID] = a
		m.mu.Unlock()
		m.logger.Info("mirror: wallet analyzed",
			slog.String("source", sourceID),
			slog.Int("trades", a.Trades),
			slog.Int("buys", a.BuyTrades),
		)
		return a, nil
	})
	if err != nil {
		return domain.WalletAnalysis{}, err
	}
	return v.(domain.WalletAnalysis), nil
}

func opportunityOf(c domain.Candidate) domain.Opportunity {
	return domain.Opportunity{
		SourceID:   c.SourceID,
		MarketID:   c.MarketID,
		Question:   c.Question,
		Side:       c.Side,
		EdgePct:    c.EdgePct,
		Price:      c.EntryPrice,
		DetectedAt: c.DetectedAt,
	}
}

func clampPrice(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

var (
	_ Strategy = (*Mirror)(nil)
	_ Analyzer = (*Mirror)(nil)
)
