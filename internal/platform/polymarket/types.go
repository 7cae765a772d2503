package polymarket

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat accepts a JSON number, a numeric string or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = 0
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// stringList decodes Gamma's JSON-encoded arrays, e.g. "[\"Yes\",\"No\"]",
// and also plain JSON arrays.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var direct []string
	if err := json.Unmarshal(data, &direct); err == nil {
		*l = direct
		return nil
	}
	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return err
	}
	if encoded == "" {
		*l = nil
		return nil
	}
	return json.Unmarshal([]byte(encoded), (*[]string)(l))
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket is a market as returned by the Gamma API.
type APIMarket struct {
	ID            string     `json:"id"`
	Question      string     `json:"question"`
	ConditionID   string     `json:"conditionId"`
	Slug          string     `json:"slug"`
	Active        flexBool   `json:"active"`
	Closed        flexBool   `json:"closed"`
	Outcomes      stringList `json:"outcomes"`
	OutcomePrices stringList `json:"outcomePrices"`
	ClobTokenIDs  stringList `json:"clobTokenIds"`
	BestBid       flexFloat  `json:"bestBid"`
	BestAsk       flexFloat  `json:"bestAsk"`
	Volume        flexFloat  `json:"volume"`
	Liquidity     flexFloat  `json:"liquidity"`
	EndDate       string     `json:"endDate"`
}

// prices parses OutcomePrices; unparseable entries come back as -1.
func (m *APIMarket) prices() []float64 {
	out := make([]float64, len(m.OutcomePrices))
	for i, s := range m.OutcomePrices {
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			p = -1
		}
		out[i] = p
	}
	return out
}

// ToDomainMarket converts a Gamma APIMarket to a domain.Market. Outcomes
// default to Yes/No when the API omits them.
func (m *APIMarket) ToDomainMarket() domain.Market {
	dm := domain.Market{
		ID:        m.ID,
		Question:  m.Question,
		Slug:      m.Slug,
		Outcomes:  [2]string{"Yes", "No"},
		BestBid:   float64(m.BestBid),
		BestAsk:   float64(m.BestAsk),
		Volume:    float64(m.Volume),
		Liquidity: float64(m.Liquidity),
		Active:    bool(m.Active),
		Closed:    bool(m.Closed),
	}
	for i := 0; i < 2 && i < len(m.Outcomes); i++ {
		if m.Outcomes[i] != "" {
			dm.Outcomes[i] = m.Outcomes[i]
		}
	}
	for i := 0; i < 2 && i < len(m.ClobTokenIDs); i++ {
		dm.TokenIDs[i] = m.ClobTokenIDs[i]
	}
	for i, p := range m.prices() {
		if i >= 2 {
			break
		}
		if p >= 0 {
			dm.OutcomePrices[i] = p
		}
	}
	if m.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
			dm.EndDate = &t
		}
	}
	return dm
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIBook is the public order book of one token.
type APIBook struct {
	Market    string          `json:"market"`
	AssetID   string          `json:"asset_id"`
	Bids      []APIPriceLevel `json:"bids"`
	Asks      []APIPriceLevel `json:"asks"`
	Timestamp string          `json:"timestamp"`
}

// APIPriceLevel is one level of an APIBook; the CLOB sends numbers as strings.
type APIPriceLevel struct {
	Price flexFloat `json:"price"`
	Size  flexFloat `json:"size"`
}

// ToDomainBook converts an APIBook to a domain.Book with asks ascending and
// bids descending. Empty levels are dropped.
func (b *APIBook) ToDomainBook() domain.Book {
	book := domain.Book{
		TokenID: b.AssetID,
		Bids:    levels(b.Bids),
		Asks:    levels(b.Asks),
	}
	sort.Slice(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
	sort.Slice(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })

	if ms, err := strconv.ParseInt(b.Timestamp, 10, 64); err == nil {
		book.Timestamp = time.UnixMilli(ms).UTC()
	} else {
		book.Timestamp = time.Now().UTC()
	}
	return book
}

func levels(in []APIPriceLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, l := range in {
		if l.Price <= 0 || l.Size <= 0 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: float64(l.Price), Size: float64(l.Size)})
	}
	return out
}

// --------------------------------------------------------------------------
// Data API DTOs
// --------------------------------------------------------------------------

// APIPosition is one wallet holding as returned by the Data API.
type APIPosition struct {
	Asset        string    `json:"asset"`
	ConditionID  string    `json:"conditionId"`
	Title        string    `json:"title"`
	Outcome      string    `json:"outcome"`
	Size         flexFloat `json:"size"`
	AvgPrice     flexFloat `json:"avgPrice"`
	CurPrice     flexFloat `json:"curPrice"`
	Redeemable   flexBool  `json:"redeemable"`
	ProxyWallet  string    `json:"proxyWallet"`
	InitialValue flexFloat `json:"initialValue"`
}

// ToDomainPosition converts an APIPosition to a domain.WalletPosition.
func (p *APIPosition) ToDomainPosition() domain.WalletPosition {
	return domain.WalletPosition{
		Asset:       p.Asset,
		ConditionID: p.ConditionID,
		Title:       p.Title,
		Outcome:     p.Outcome,
		Size:        float64(p.Size),
		AvgPrice:    float64(p.AvgPrice),
		CurPrice:    float64(p.CurPrice),
		Redeemable:  bool(p.Redeemable),
	}
}

// APIActivity is one trade of a wallet as returned by the Data API
// /activity and /trades endpoints. Field names vary between the two.
type APIActivity struct {
	Side      string    `json:"side"`
	Type      string    `json:"type"`
	Outcome   string    `json:"outcome"`
	Title     string    `json:"title"`
	Market    string    `json:"market"`
	Price     flexFloat `json:"price"`
	Size      flexFloat `json:"size"`
	USDCSize  flexFloat `json:"usdcSize"`
	Timestamp flexFloat `json:"timestamp"`
}

// ToDomainTrade converts an APIActivity to a domain.WalletTrade. Anything
// not recognizably a sell counts as a buy; a missing USDC size falls back to
// shares times price.
func (a *APIActivity) ToDomainTrade() domain.WalletTrade {
	t := domain.WalletTrade{
		Side:     domain.TradeBuy,
		Outcome:  strings.TrimSpace(a.Outcome),
		Title:    a.Title,
		USDCSize: float64(a.USDCSize),
	}
	side := strings.ToUpper(a.Side + " " + a.Type)
	if !strings.Contains(side, "BUY") && (strings.Contains(side, "SELL") || strings.Contains(side, "REDEEM")) {
		t.Side = domain.TradeSell
	}
	if t.Title == "" {
		t.Title = a.Market
	}
	if p := float64(a.Price); p > 0 && p <= 1 {
		t.Price = p
	}
	if t.USDCSize <= 0 && t.Price > 0 && a.Size > 0 {
		t.USDCSize = math.Round(t.Price*float64(a.Size)*1e4) / 1e4
	}
	if ts := float64(a.Timestamp); ts > 0 {
		// Values past the year 2100 in seconds are milliseconds.
		if ts > 4e9 {
			ts /= 1000
		}
		t.Timestamp = time.Unix(int64(ts), 0).UTC()
	}
	return t
}
