// Package ws streams engine events to dashboard clients over websockets.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/eventbus"
	"github.com/alanyoungcy/paperbot/internal/metrics"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the event bus buffer per client.
	sendBufferSize = 512
)

// Config controls which browser origins may connect.
type Config struct {
	AllowedOrigins []string
}

// envelope is the first frame a client receives.
type envelope struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"ts"`
	Payload   domain.Snapshot `json:"payload"`
}

// Hub attaches each websocket client to the event bus as its own subscriber.
// A client first receives a snapshot, then the retained history, then live
// events. A client that falls behind is detached by the bus and disconnected.
type Hub struct {
	bus      *eventbus.Bus
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	sub  *eventbus.Subscription
	once sync.Once
}

// NewHub creates a Hub reading from bus.
func NewHub(bus *eventbus.Bus, cfg Config, logger *slog.Logger) *Hub {
	h := &Hub{
		bus:     bus,
		logger:  logger.With(slog.String("component", "ws_hub")),
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(cfg.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
	return h
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	h.logger.Info("ws: hub stopped", slog.Int("disconnected", len(clients)))
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleWS upgrades the request and starts streaming.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	sub, history := h.bus.SubscribeWithHistory("ws:"+r.RemoteAddr, sendBufferSize)
	c := &client{hub: h, conn: conn, sub: sub}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.Close()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSClients.Inc()
	h.logger.Info("ws: client connected",
		slog.String("remote_addr", r.RemoteAddr),
		slog.Int("replay", len(history)),
		slog.Int("total_clients", total),
	)

	go c.writePump(history)
	go c.readPump()
}

func (c *client) close() {
	c.once.Do(func() {
		c.sub.Close()
		c.conn.Close()

		c.hub.mu.Lock()
		delete(c.hub.clients, c)
		c.hub.mu.Unlock()
		metrics.WSClients.Dec()
	})
}

// readPump discards inbound frames; it exists to process pongs and notice
// the peer going away.
func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (c *client) writePump(history []domain.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	hello := envelope{Type: "snapshot", Timestamp: time.Now().UTC(), Payload: c.hub.bus.Snapshot()}
	if !c.writeJSON(hello) {
		return
	}
	for _, ev := range history {
		if !c.writeJSON(ev) {
			return
		}
	}

	for {
		select {
		case ev, ok := <-c.sub.Events():
			if !ok {
				// detached by the bus for lagging
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "client too slow"))
				return
			}
			if !c.writeJSON(ev) {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) writeJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.Error("ws: encode", slog.String("error", err.Error()))
		return true
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data) == nil
}
