package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/eventbus"
	"github.com/alanyoungcy/paperbot/internal/metrics"
)

// StreamKey is the stream every relayed event is appended to.
const StreamKey = "paperbot:events"

const (
	relayBuffer  = 1024
	writeTimeout = 2 * time.Second
)

// Sink is where the Relay writes. *Publisher is the production Sink.
type Sink interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// Channel returns the Pub/Sub channel for one strategy's events of type t.
func Channel(strategy string, t domain.EventType) string {
	return "paperbot:" + strategy + ":" + string(t)
}

// Relay is an EventBus subscriber that republishes every event to Redis.
// Redis failures are logged and counted; they never reach the engine.
type Relay struct {
	bus    *eventbus.Bus
	sink   Sink
	logger *slog.Logger
}

// NewRelay creates a Relay from bus to sink.
func NewRelay(bus *eventbus.Bus, sink Sink, logger *slog.Logger) *Relay {
	return &Relay{
		bus:    bus,
		sink:   sink,
		logger: logger.With(slog.String("component", "redis_relay")),
	}
}

// Run relays events until ctx is cancelled. If the bus detaches the relay for
// falling behind, it resubscribes and carries on from live events.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("redis relay: started", slog.String("stream", StreamKey))
	for {
		sub := r.bus.Subscribe("redis-relay", relayBuffer)
		detached := r.drain(ctx, sub)
		sub.Close()
		if !detached {
			r.logger.Info("redis relay: stopped")
			return ctx.Err()
		}
		r.logger.Warn("redis relay: detached by event bus, resubscribing",
			slog.Uint64("dropped", sub.Dropped()),
		)
	}
}

// drain forwards events from sub. It reports true when the feed closed while
// ctx was still live.
func (r *Relay) drain(ctx context.Context, sub *eventbus.Subscription) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-sub.Events():
			if !ok {
				return ctx.Err() == nil
			}
			r.forward(ctx, ev)
		}
	}
}

func (r *Relay) forward(ctx context.Context, ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("redis relay: encode event",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
		return
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := r.sink.Publish(wctx, Channel(ev.Strategy, ev.Type), data); err != nil {
		metrics.RelayErrors.WithLabelValues("publish").Inc()
		r.logger.Warn("redis relay: publish failed",
			slog.Uint64("seq", ev.Seq),
			slog.String("error", err.Error()),
		)
	}
	if err := r.sink.StreamAppend(wctx, StreamKey, data); err != nil {
		metrics.RelayErrors.WithLabelValues("stream").Inc()
		r.logger.Warn("redis relay: stream append failed",
			slog.Uint64("seq", ev.Seq),
			slog.String("error", err.Error()),
		)
	}
}
