package exchange

import (
	"context"
	"fmt"
	"net/url"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// Coinbase reads level-2 books from the Coinbase Exchange public API.
type Coinbase struct {
	client
}

// NewCoinbase creates a Coinbase book reader.
func NewCoinbase(cfg Config) *Coinbase {
	return &Coinbase{client: newClient(cfg, "https://api.exchange.coinbase.com")}
}

// Venue implements domain.VenueBookFetcher.
func (c *Coinbase) Venue() string { return "coinbase" }

// FetchVenueBook returns the book of a BASE-QUOTE product.
func (c *Coinbase) FetchVenueBook(ctx context.Context, symbol string) (domain.VenueBook, error) {
	var resp struct {
		Bids []rawLevel `json:"bids"`
		Asks []rawLevel `json:"asks"`
	}
	u := c.cfg.BaseURL + "/products/" + url.PathEscape(symbol) + "/book?level=2"
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return domain.VenueBook{}, fmt.Errorf("coinbase: book %s: %w", symbol, err)
	}
	return toBook(c.Venue(), symbol, resp.Bids, resp.Asks, c.cfg.Depth), nil
}

var _ domain.VenueBookFetcher = (*Coinbase)(nil)
