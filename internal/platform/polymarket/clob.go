package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// ClobClient reads public order books from the Polymarket CLOB API. The
// engine never places orders, so no credentials are involved.
type ClobClient struct {
	restClient
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
func NewClobClient(baseURL string, opts ...Option) *ClobClient {
	return &ClobClient{restClient: newRESTClient(baseURL, opts)}
}

// FetchBook returns the order book of one outcome token.
func (c *ClobClient) FetchBook(ctx context.Context, tokenID string) (domain.Book, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	body, err := c.get(ctx, "/book", params)
	if err != nil {
		return domain.Book{}, fmt.Errorf("polymarket/clob: book %s: %w", tokenID, err)
	}

	var book APIBook
	if err := json.Unmarshal(body, &book); err != nil {
		return domain.Book{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}
	if book.AssetID == "" {
		book.AssetID = tokenID
	}
	return book.ToDomainBook(), nil
}

var _ domain.BookFetcher = (*ClobClient)(nil)
