package domain

import "context"

// PositionFetcher lists the current holdings of a wallet.
type PositionFetcher interface {
	FetchPositions(ctx context.Context, address string) ([]WalletPosition, error)
}

// BookFetcher reads the CLOB order book for one outcome token.
type BookFetcher interface {
	FetchBook(ctx context.Context, tokenID string) (Book, error)
}

// MarketLister lists active markets under a tag.
type MarketLister interface {
	ListMarkets(ctx context.Context, tag string) ([]Market, error)
}

// MarketSearcher finds active markets by free-text query.
type MarketSearcher interface {
	SearchMarkets(ctx context.Context, query string) ([]Market, error)
}

// TokenPricer returns fresh marks for outcome tokens. Tokens of resolved
// markets come back with Resolved set and their payout as Price.
type TokenPricer interface {
	TokenPrices(ctx context.Context, tokenIDs []string) (map[string]Mark, error)
}

// MarketResolver marks a whole binary market, summing both outcome prices.
type MarketResolver interface {
	MarketMark(ctx context.Context, marketID string) (Mark, error)
}

// VenueBookFetcher reads a trading-pair order book from a centralized venue.
type VenueBookFetcher interface {
	Venue() string
	FetchVenueBook(ctx context.Context, symbol string) (VenueBook, error)
}

// FixtureFeed lists fixtures currently in play.
type FixtureFeed interface {
	LiveFixtures(ctx context.Context, league string) ([]Fixture, error)
}

// WalletHistory reads what a wallet traded in the past.
type WalletHistory interface {
	// FetchActivity returns up to limit recent trades, newest first.
	FetchActivity(ctx context.Context, address string, limit int) ([]WalletTrade, error)
	// FetchRedeemable returns holdings in markets that resolved in the
	// wallet's favour.
	FetchRedeemable(ctx context.Context, address string) ([]WalletPosition, error)
}
