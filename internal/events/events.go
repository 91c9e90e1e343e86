// Package events publishes completed capture cycles to downstream consumers.
//
// Delivery is best effort. A cycle that cannot be published is logged by the
// caller and dropped; nothing is persisted.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis pub/sub channel used when none is configured.
const DefaultChannel = "visionvoice:cycles"

// Cycle is one finished press/release/transcribe round trip.
type Cycle struct {
	RequestID  uint64    `json:"request_id"`
	Transcript string    `json:"transcript"`
	Command    string    `json:"command"`
	At         time.Time `json:"at"`
}

// Publisher delivers cycles. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, c Cycle) error
}

// Nop discards every cycle.
type Nop struct{}

// Publish implements [Publisher].
func (Nop) Publish(context.Context, Cycle) error { return nil }

// RedisOptions configures a [Redis] publisher.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Redis publishes cycles as JSON messages on a Redis pub/sub channel.
type Redis struct {
	client  *redis.Client
	channel string
}

var _ Publisher = (*Redis)(nil)

// NewRedis creates a publisher for opts. It does not dial; use [Redis.Ping]
// to verify connectivity.
func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.Addr == "" {
		return nil, errors.New("events: redis address is required")
	}
	ch := opts.Channel
	if ch == "" {
		ch = DefaultChannel
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Redis{client: client, channel: ch}, nil
}

// Channel returns the pub/sub channel cycles are published on.
func (r *Redis) Channel() string { return r.channel }

// Publish implements [Publisher].
func (r *Redis) Publish(ctx context.Context, c Cycle) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("events: encode cycle %d: %w", c.RequestID, err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("events: publish %s: %w", r.channel, err)
	}
	return nil
}

// Ping checks that the Redis server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("events: ping: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
