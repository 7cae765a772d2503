// Package exchange reads public order books from centralized crypto venues.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// Config is shared by every venue client.
type Config struct {
	BaseURL string
	// Depth is how many levels per side to request.
	Depth int
	// RatePerSecond caps outgoing requests; 0 disables the limiter.
	RatePerSecond float64
	Timeout       time.Duration
}

type client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

func newClient(cfg Config, defaultURL string) client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultURL
	}
	if cfg.Depth <= 0 {
		cfg.Depth = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	c := client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
	if cfg.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return c
}

func (c *client) getJSON(ctx context.Context, url string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "paperbot")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w: %w", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w: %w", domain.ErrTransient, err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, body)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, body)
	case resp.StatusCode >= 500:
		return fmt.Errorf("HTTP %d: %w", resp.StatusCode, domain.ErrTransient)
	case resp.StatusCode >= 300:
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// rawLevel is a venue price level such as ["101.5","0.25",3]. Only the first
// two fields are read.
type rawLevel []json.RawMessage

func (l rawLevel) parse() (domain.PriceLevel, bool) {
	if len(l) < 2 {
		return domain.PriceLevel{}, false
	}
	price, ok1 := number(l[0])
	size, ok2 := number(l[1])
	if !ok1 || !ok2 || price <= 0 || size <= 0 {
		return domain.PriceLevel{}, false
	}
	return domain.PriceLevel{Price: price, Size: size}, true
}

func number(raw json.RawMessage) (float64, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}

// toBook parses both sides and sorts asks ascending, bids descending.
func toBook(venue, symbol string, bids, asks []rawLevel, depth int) domain.VenueBook {
	book := domain.VenueBook{Venue: venue, Symbol: symbol, Timestamp: time.Now().UTC()}
	for _, l := range bids {
		if lvl, ok := l.parse(); ok {
			book.Bids = append(book.Bids, lvl)
		}
	}
	for _, l := range asks {
		if lvl, ok := l.parse(); ok {
			book.Asks = append(book.Asks, lvl)
		}
	}
	sort.Slice(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })
	sort.Slice(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
	if len(book.Bids) > depth {
		book.Bids = book.Bids[:depth]
	}
	if len(book.Asks) > depth {
		book.Asks = book.Asks[:depth]
	}
	return book
}
