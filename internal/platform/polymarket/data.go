package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// positionLimit is high enough that a busy wallet is never truncated.
const positionLimit = 500

// DataClient reads wallet holdings and trade history from the Polymarket
// Data API.
type DataClient struct {
	restClient
}

// NewDataClient creates a Data API client.
//
// baseURL is the Data API root, e.g. "https://data-api.polymarket.com".
func NewDataClient(baseURL string, opts ...Option) *DataClient {
	return &DataClient{restClient: newRESTClient(baseURL, opts)}
}

// FetchPositions returns the open, non-redeemable holdings of a wallet.
func (d *DataClient) FetchPositions(ctx context.Context, address string) ([]domain.WalletPosition, error) {
	return d.positions(ctx, address, false)
}

// FetchRedeemable returns the holdings of a wallet in markets that resolved
// in its favour.
func (d *DataClient) FetchRedeemable(ctx context.Context, address string) ([]domain.WalletPosition, error) {
	return d.positions(ctx, address, true)
}

func (d *DataClient) positions(ctx context.Context, address string, redeemable bool) ([]domain.WalletPosition, error) {
	params := url.Values{}
	params.Set("user", address)
	params.Set("sizeThreshold", "0.01")
	params.Set("redeemable", strconv.FormatBool(redeemable))
	params.Set("limit", strconv.Itoa(positionLimit))

	body, err := d.get(ctx, "/positions", params)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: positions %s: %w", address, err)
	}

	var apiPositions []APIPosition
	if err := json.Unmarshal(body, &apiPositions); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode positions: %w", err)
	}

	out := make([]domain.WalletPosition, 0, len(apiPositions))
	for i := range apiPositions {
		out = append(out, apiPositions[i].ToDomainPosition())
	}
	return out, nil
}

// FetchActivity returns up to limit recent trades of a wallet. It reads
// /activity and falls back to /trades when that path is not served.
func (d *DataClient) FetchActivity(ctx context.Context, address string, limit int) ([]domain.WalletTrade, error) {
	params := url.Values{}
	params.Set("user", address)
	params.Set("limit", strconv.Itoa(limit))

	var body []byte
	var err error
	for _, path := range []string{"/activity", "/trades"} {
		body, err = d.get(ctx, path, params)
		if !errors.Is(err, domain.ErrNotFound) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: activity %s: %w", address, err)
	}

	activity, err := decodeActivity(body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: decode activity: %w", err)
	}
	out := make([]domain.WalletTrade, 0, len(activity))
	for i := range activity {
		out = append(out, activity[i].ToDomainTrade())
	}
	return out, nil
}

// decodeActivity accepts a bare array or one wrapped in an object under
// "data", "activities" or "trades".
func decodeActivity(body []byte) ([]APIActivity, error) {
	var list []APIActivity
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Data       []APIActivity `json:"data"`
		Activities []APIActivity `json:"activities"`
		Trades     []APIActivity `json:"trades"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	switch {
	case len(wrapped.Data) > 0:
		return wrapped.Data, nil
	case len(wrapped.Activities) > 0:
		return wrapped.Activities, nil
	default:
		return wrapped.Trades, nil
	}
}

var (
	_ domain.PositionFetcher = (*DataClient)(nil)
	_ domain.WalletHistory   = (*DataClient)(nil)
)
