package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// krakenAssets maps common tickers to Kraken's names.
var krakenAssets = map[string]string{
	"BTC":  "XBT",
	"DOGE": "XDG",
}

// Kraken reads books from the Kraken public REST API.
type Kraken struct {
	client
}

// NewKraken creates a Kraken book reader.
func NewKraken(cfg Config) *Kraken {
	return &Kraken{client: newClient(cfg, "https://api.kraken.com")}
}

// Venue implements domain.VenueBookFetcher.
func (k *Kraken) Venue() string { return "kraken" }

// KrakenPair converts "BTC-USD" to "XBTUSD".
func KrakenPair(symbol string) string {
	base, quote, _ := strings.Cut(strings.ToUpper(symbol), "-")
	if alias, ok := krakenAssets[base]; ok {
		base = alias
	}
	if alias, ok := krakenAssets[quote]; ok {
		quote = alias
	}
	return base + quote
}

// FetchVenueBook returns the book of a BASE-QUOTE pair.
func (k *Kraken) FetchVenueBook(ctx context.Context, symbol string) (domain.VenueBook, error) {
	var resp struct {
		Error  []string `json:"error"`
		Result map[string]struct {
			Bids []rawLevel `json:"bids"`
			Asks []rawLevel `json:"asks"`
		} `json:"result"`
	}
	params := url.Values{}
	params.Set("pair", KrakenPair(symbol))
	params.Set("count", strconv.Itoa(k.cfg.Depth))
	if err := k.getJSON(ctx, k.cfg.BaseURL+"/0/public/Depth?"+params.Encode(), &resp); err != nil {
		return domain.VenueBook{}, fmt.Errorf("kraken: book %s: %w", symbol, err)
	}
	if len(resp.Error) > 0 {
		err := errors.New(strings.Join(resp.Error, "; "))
		if strings.Contains(err.Error(), "Unknown asset pair") {
			err = fmt.Errorf("%w: %w", domain.ErrNotFound, err)
		}
		return domain.VenueBook{}, fmt.Errorf("kraken: book %s: %w", symbol, err)
	}
	// the result is keyed by Kraken's internal pair name, e.g. XXBTZUSD
	for _, b := range resp.Result {
		return toBook(k.Venue(), symbol, b.Bids, b.Asks, k.cfg.Depth), nil
	}
	return domain.VenueBook{}, fmt.Errorf("kraken: book %s: %w", symbol, domain.ErrNotFound)
}

var _ domain.VenueBookFetcher = (*Kraken)(nil)
