package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the cache client.
type RedisOptions struct {
	URL string
	// Timeout applies to reads and writes. Idempotency and rate-limit checks
	// sit on the request path and must not stall it.
	Timeout         time.Duration
	ConnectAttempts int
}

// NewRedisClient builds a client and waits until Redis answers a ping.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	if opts.URL == "" {
		return nil, errors.New("redis url is required")
	}

	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.Timeout > 0 {
		ro.ReadTimeout = opts.Timeout
		ro.WriteTimeout = opts.Timeout
	}

	client := redis.NewClient(ro)
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := retryConnect(ctx, opts.ConnectAttempts, 250*time.Millisecond, ping); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
