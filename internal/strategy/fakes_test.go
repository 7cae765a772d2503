package strategy

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/eventbus"
	"github.com/alanyoungcy/paperbot/internal/portfolio"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBot(t *testing.T, strat Strategy, slots int) (*Bot, *eventbus.Bus) {
	t.Helper()
	logger := discardLogger()
	bus := eventbus.New(eventbus.Config{HistorySize: 2000}, logger)
	bot := NewBot(BotConfig{
		Portfolio: portfolio.Config{
			Slots:           slots,
			SlotBudget:      20,
			MaxTradeSize:    20,
			StartingBalance: 1000,
		},
	}, strat, bus, logger)
	return bot, bus
}

func eventsOf[T any](bus *eventbus.Bus, t domain.EventType) []T {
	var out []T
	for _, ev := range bus.History() {
		if ev.Type == t {
			out = append(out, ev.Payload.(T))
		}
	}
	return out
}

type fakeWallets struct {
	mu   sync.Mutex
	held map[string][]domain.WalletPosition
	err  error
}

func (f *fakeWallets) set(addr string, ps ...domain.WalletPosition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held == nil {
		f.held = map[string][]domain.WalletPosition{}
	}
	f.held[addr] = ps
}

func (f *fakeWallets) FetchPositions(_ context.Context, addr string) ([]domain.WalletPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.WalletPosition, len(f.held[addr]))
	copy(out, f.held[addr])
	return out, nil
}

type fakePricer struct {
	mu    sync.Mutex
	marks map[string]domain.Mark
}

func (f *fakePricer) set(id string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.marks == nil {
		f.marks = map[string]domain.Mark{}
	}
	f.marks[id] = domain.Mark{Price: price}
}

func (f *fakePricer) TokenPrices(_ context.Context, ids []string) (map[string]domain.Mark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]domain.Mark{}
	for _, id := range ids {
		if m, ok := f.marks[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

type fakeMarkets struct {
	markets []domain.Market
	books   map[string]domain.Book
	marks   map[string]domain.Mark

	mu      sync.Mutex
	fetched map[string]int
}

func (f *fakeMarkets) ListMarkets(context.Context, string) ([]domain.Market, error) {
	return f.markets, nil
}

func (f *fakeMarkets) SearchMarkets(context.Context, string) ([]domain.Market, error) {
	return f.markets, nil
}

func (f *fakeMarkets) FetchBook(_ context.Context, tokenID string) (domain.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetched == nil {
		f.fetched = map[string]int{}
	}
	f.fetched[tokenID]++
	b, ok := f.books[tokenID]
	if !ok {
		return domain.Book{}, domain.ErrNotFound
	}
	return b, nil
}

func (f *fakeMarkets) MarketMark(_ context.Context, id string) (domain.Mark, error) {
	m, ok := f.marks[id]
	if !ok {
		return domain.Mark{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeMarkets) fetchCount(tokenID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetched[tokenID]
}

type fakeVenue struct {
	name string
	book domain.VenueBook
}

func (f *fakeVenue) Venue() string { return f.name }

func (f *fakeVenue) FetchVenueBook(context.Context, string) (domain.VenueBook, error) {
	return f.book, nil
}

type fakeFixtures struct {
	mu    sync.Mutex
	polls [][]domain.Fixture
}

func (f *fakeFixtures) LiveFixtures(context.Context, string) ([]domain.Fixture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.polls) == 0 {
		return nil, nil
	}
	cur := f.polls[0]
	if len(f.polls) > 1 {
		f.polls = f.polls[1:]
	}
	return cur, nil
}
