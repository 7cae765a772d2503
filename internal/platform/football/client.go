// Package football polls live fixtures from API-Football.
package football

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

const defaultBaseURL = "https://v3.football.api-sports.io"

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	// RatePerMinute caps requests; the free plan allows 10 per minute.
	RatePerMinute int
	Timeout       time.Duration
}

// Client reads live fixtures. It implements domain.FixtureFeed.
type Client struct {
	cfg       Config
	http      *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
	remaining atomic.Int64
}

// NewClient creates an API-Football client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(slog.String("component", "football")),
	}
	if cfg.RatePerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60), 1)
	}
	c.remaining.Store(-1)
	return c
}

type apiResponse struct {
	Errors   json.RawMessage `json:"errors"`
	Response []apiFixture    `json:"response"`
}

type apiFixture struct {
	Fixture struct {
		ID     int64 `json:"id"`
		Status struct {
			Short   string `json:"short"`
			Elapsed *int   `json:"elapsed"`
		} `json:"status"`
	} `json:"fixture"`
	League struct {
		ID int `json:"id"`
	} `json:"league"`
	Teams struct {
		Home struct {
			Name string `json:"name"`
		} `json:"home"`
		Away struct {
			Name string `json:"name"`
		} `json:"away"`
	} `json:"teams"`
	Goals struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"goals"`
	Events []struct {
		Type   string `json:"type"`
		Detail string `json:"detail"`
	} `json:"events"`
}

func (f *apiFixture) toDomain(seen time.Time) domain.Fixture {
	out := domain.Fixture{
		ID:       strconv.FormatInt(f.Fixture.ID, 10),
		League:   strconv.Itoa(f.League.ID),
		HomeTeam: f.Teams.Home.Name,
		AwayTeam: f.Teams.Away.Name,
		Status:   f.Fixture.Status.Short,
		SeenAt:   seen,
	}
	if f.Goals.Home != nil {
		out.HomeScore = *f.Goals.Home
	}
	if f.Goals.Away != nil {
		out.AwayScore = *f.Goals.Away
	}
	if f.Fixture.Status.Elapsed != nil {
		out.Minute = *f.Fixture.Status.Elapsed
	}
	for _, ev := range f.Events {
		if ev.Type == "Card" && ev.Detail == "Red Card" {
			out.RedCards++
		}
	}
	return out
}

// LiveFixtures returns the fixtures currently in play in a league.
func (c *Client) LiveFixtures(ctx context.Context, league string) ([]domain.Fixture, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("football: rate limiter: %w", err)
		}
	}

	params := url.Values{}
	params.Set("live", league)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/fixtures?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("football: create request: %w", err)
	}
	req.Header.Set("x-apisports-key", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("football: fixtures: %w: %w", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if v := resp.Header.Get("x-ratelimit-requests-remaining"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.remaining.Store(n)
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("football: read response: %w: %w", domain.ErrTransient, err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("football: fixtures: %w", domain.ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("football: fixtures: %w", domain.ErrUnauthorized)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("football: fixtures: HTTP %d: %w", resp.StatusCode, domain.ErrTransient)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("football: fixtures: HTTP %d: %s", resp.StatusCode, body)
	}

	var ar apiResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, fmt.Errorf("football: decode fixtures: %w", err)
	}
	if err := apiError(ar.Errors); err != nil {
		return nil, fmt.Errorf("football: fixtures: %w", err)
	}

	now := time.Now().UTC()
	out := make([]domain.Fixture, 0, len(ar.Response))
	for i := range ar.Response {
		out = append(out, ar.Response[i].toDomain(now))
	}
	c.logger.Debug("football: fixtures polled",
		slog.String("league", league),
		slog.Int("fixtures", len(out)),
		slog.Int64("calls_remaining", c.remaining.Load()),
	)
	return out, nil
}

// Remaining is the last reported daily request allowance, or -1 before the
// first response.
func (c *Client) Remaining() int64 { return c.remaining.Load() }

// apiError interprets the "errors" field, which API-Football sends as an
// empty array on success and as an object on failure, even with status 200.
func apiError(raw json.RawMessage) error {
	if len(raw) == 0 || raw[0] == '[' {
		return nil
	}
	var errs map[string]string
	if err := json.Unmarshal(raw, &errs); err != nil || len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for k, v := range errs {
		msgs = append(msgs, k+": "+v)
	}
	msg := strings.Join(msgs, "; ")
	if _, ok := errs["rateLimit"]; ok {
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	}
	if _, ok := errs["token"]; ok {
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	}
	return fmt.Errorf("api error: %s", msg)
}

var _ domain.FixtureFeed = (*Client)(nil)
