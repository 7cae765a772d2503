package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// tokenBatch is how many token IDs go into one clobTokenIds lookup.
const tokenBatch = 20

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery, metadata, and search.
type GammaClient struct {
	restClient
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, opts ...Option) *GammaClient {
	return &GammaClient{restClient: newRESTClient(baseURL, opts)}
}

// ListMarkets returns the open markets under a tag, deduplicated by
// condition ID.
func (g *GammaClient) ListMarkets(ctx context.Context, tag string) ([]domain.Market, error) {
	params := url.Values{}
	params.Set("tag", tag)
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("limit", "100")

	apiMarkets, err := g.markets(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: list markets %s: %w", tag, err)
	}

	seen := make(map[string]bool, len(apiMarkets))
	markets := make([]domain.Market, 0, len(apiMarkets))
	for i := range apiMarkets {
		m := &apiMarkets[i]
		key := m.ConditionID
		if key == "" {
			key = m.ID
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		markets = append(markets, m.ToDomainMarket())
	}
	return markets, nil
}

// SearchMarkets searches for open markets matching the given query string.
func (g *GammaClient) SearchMarkets(ctx context.Context, query string) ([]domain.Market, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("limit", "50")

	apiMarkets, err := g.markets(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: search markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(apiMarkets))
	for i := range apiMarkets {
		markets = append(markets, apiMarkets[i].ToDomainMarket())
	}
	return markets, nil
}

// MarketMark values a YES+NO pair of a market as the sum of both outcome
// prices. A closed market is reported as resolved.
func (g *GammaClient) MarketMark(ctx context.Context, marketID string) (domain.Mark, error) {
	body, err := g.get(ctx, "/markets/"+url.PathEscape(marketID), nil)
	if err != nil {
		return domain.Mark{}, fmt.Errorf("polymarket/gamma: get market %s: %w", marketID, err)
	}

	var m APIMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return domain.Mark{}, fmt.Errorf("polymarket/gamma: decode market: %w", err)
	}

	var sum float64
	prices := m.prices()
	if len(prices) == 0 {
		return domain.Mark{}, fmt.Errorf("polymarket/gamma: market %s has no outcome prices: %w", marketID, domain.ErrInvalidPrice)
	}
	for _, p := range prices {
		if p < 0 {
			return domain.Mark{}, fmt.Errorf("polymarket/gamma: market %s outcome prices %v: %w", marketID, m.OutcomePrices, domain.ErrInvalidPrice)
		}
		sum += p
	}
	return domain.Mark{Price: sum, Resolved: bool(m.Closed)}, nil
}

// TokenPrices returns the outcome price of each token, looked up in batches
// through the markets that carry them. Tokens of closed or inactive markets
// come back resolved at their final outcome price. Tokens the API does not
// know are absent from the result.
func (g *GammaClient) TokenPrices(ctx context.Context, tokenIDs []string) (map[string]domain.Mark, error) {
	out := make(map[string]domain.Mark, len(tokenIDs))
	for start := 0; start < len(tokenIDs); start += tokenBatch {
		end := min(start+tokenBatch, len(tokenIDs))
		params := url.Values{}
		params.Set("clobTokenIds", strings.Join(tokenIDs[start:end], ","))

		apiMarkets, err := g.markets(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("polymarket/gamma: token prices: %w", err)
		}
		for i := range apiMarkets {
			m := &apiMarkets[i]
			prices := m.prices()
			resolved := bool(m.Closed) || !bool(m.Active)
			for j, tok := range m.ClobTokenIDs {
				if j >= len(prices) || prices[j] < 0 || prices[j] > 1 {
					continue
				}
				out[tok] = domain.Mark{Price: prices[j], Resolved: resolved}
			}
		}
	}
	return out, nil
}

func (g *GammaClient) markets(ctx context.Context, params url.Values) ([]APIMarket, error) {
	body, err := g.get(ctx, "/markets", params)
	if err != nil {
		return nil, err
	}
	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return nil, fmt.Errorf("decode markets: %w", err)
	}
	return apiMarkets, nil
}

var (
	_ domain.MarketLister   = (*GammaClient)(nil)
	_ domain.MarketSearcher = (*GammaClient)(nil)
	_ domain.MarketResolver = (*GammaClient)(nil)
	_ domain.TokenPricer    = (*GammaClient)(nil)
)
