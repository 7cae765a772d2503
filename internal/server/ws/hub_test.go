package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/eventbus"
)

type frame struct {
	Seq      uint64          `json:"seq"`
	Type     string          `json:"type"`
	Strategy string          `json:"strategy"`
	Payload  json.RawMessage `json:"payload"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestHubReplaysHistoryThenStreams(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := eventbus.New(eventbus.Config{}, logger)
	bus.RegisterSnapshot("mirror", func() domain.StrategySnapshot {
		return domain.StrategySnapshot{PortfolioSnapshot: domain.PortfolioSnapshot{Overview: domain.Overview{Strategy: "mirror"}}}
	})
	hub := NewHub(bus, Config{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	require.NoError(t, bus.Publish("mirror", domain.EventOverview, domain.Overview{Strategy: "mirror"}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readFrame(t, conn)
	assert.Equal(t, "snapshot", hello.Type)
	assert.Contains(t, string(hello.Payload), `"strategy":"mirror"`)

	replayed := readFrame(t, conn)
	assert.Equal(t, "overview", replayed.Type)
	assert.Equal(t, uint64(1), replayed.Seq)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Publish("mirror", domain.EventQueue, []domain.QueueEntry{}))

	live := readFrame(t, conn)
	assert.Equal(t, "queue", live.Type)
	assert.Equal(t, uint64(2), live.Seq)
	assert.Equal(t, "mirror", live.Strategy)
}

func TestHubDisconnectsOnShutdown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := eventbus.New(eventbus.Config{}, logger)
	hub := NewHub(bus, Config{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	readFrame(t, conn) // snapshot

	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	require.Eventually(t, func() bool { return bus.Subscribers() == 0 && hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestOriginAllowed(t *testing.T) {
	assert.True(t, originAllowed(nil, "https://a"))
	assert.True(t, originAllowed([]string{"https://a"}, ""))
	assert.True(t, originAllowed([]string{"*"}, "https://b"))
	assert.False(t, originAllowed([]string{"https://a"}, "https://b"))
}
