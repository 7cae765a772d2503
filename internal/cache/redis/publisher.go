// Package redis mirrors engine events into Redis so that out-of-process
// consumers can follow a run.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultStreamMaxLen int64 = 10000

// Options configures the connection used by a Publisher.
type Options struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	// StreamMaxLen caps the event stream (XADD MAXLEN ~). 0 means 10,000.
	StreamMaxLen int64
}

// Publisher writes encoded events to Redis Pub/Sub for live listeners and to
// a capped stream for consumers that attach late.
type Publisher struct {
	rdb    *redis.Client
	maxLen int64
}

// Dial connects to Redis and verifies the connection with PING.
func Dial(ctx context.Context, o Options) (*Publisher, error) {
	opts := &redis.Options{
		Addr:       o.Addr,
		Password:   o.Password,
		DB:         o.DB,
		PoolSize:   o.PoolSize,
		MaxRetries: o.MaxRetries,
	}
	if o.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", o.Addr, err)
	}
	return newPublisher(rdb, o.StreamMaxLen), nil
}

func newPublisher(rdb *redis.Client, maxLen int64) *Publisher {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &Publisher{rdb: rdb, maxLen: maxLen}
}

// Publish sends a raw payload to a Pub/Sub channel.
func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// StreamAppend appends payload to stream under the "payload" field.
func (p *Publisher) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}
	if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}

var _ Sink = (*Publisher)(nil)
