package football

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

const liveBody = `{"errors":[],"results":1,"response":[{
  "fixture":{"id":1035001,"status":{"short":"2H","elapsed":63}},
  "league":{"id":39},
  "teams":{"home":{"name":"Arsenal"},"away":{"name":"Chelsea"}},
  "goals":{"home":2,"away":null},
  "events":[
    {"type":"Goal","detail":"Normal Goal"},
    {"type":"Card","detail":"Yellow Card"},
    {"type":"Card","detail":"Red Card"}
  ]}]}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, APIKey: "secret"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLiveFixtures(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fixtures", r.URL.Path)
		assert.Equal(t, "39", r.URL.Query().Get("live"))
		assert.Equal(t, "secret", r.Header.Get("x-apisports-key"))
		w.Header().Set("x-ratelimit-requests-remaining", "87")
		_, _ = w.Write([]byte(liveBody))
	})
	assert.Equal(t, int64(-1), c.Remaining())

	fixtures, err := c.LiveFixtures(context.Background(), "39")
	require.NoError(t, err)
	require.Len(t, fixtures, 1)

	f := fixtures[0]
	assert.Equal(t, "1035001", f.ID)
	assert.Equal(t, "39", f.League)
	assert.Equal(t, "Arsenal", f.HomeTeam)
	assert.Equal(t, 2, f.HomeScore)
	assert.Equal(t, 0, f.AwayScore)
	assert.Equal(t, 63, f.Minute)
	assert.Equal(t, 1, f.RedCards)
	assert.Equal(t, "2H", f.Status)
	assert.Equal(t, int64(87), c.Remaining())
}

func TestLiveFixturesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"http 429", http.StatusTooManyRequests, ``, domain.ErrRateLimited},
		{"rate limit in body", http.StatusOK, `{"errors":{"rateLimit":"Too many requests"},"response":[]}`, domain.ErrRateLimited},
		{"bad key", http.StatusOK, `{"errors":{"token":"Error/Missing application key"},"response":[]}`, domain.ErrUnauthorized},
		{"server error", http.StatusServiceUnavailable, ``, domain.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.LiveFixtures(context.Background(), "39")
			require.ErrorIs(t, err, tt.want)
		})
	}
}
