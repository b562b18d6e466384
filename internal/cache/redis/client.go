// Package redis backs the pipeline's shared runtime state with go-redis/v9:
// last-tick prices, per-instrument locks, the score channel and the event
// stream. All keys live under the "pipeline:" prefix.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Options holds connection parameters.
type Options struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLS        bool
}

// Client owns the shared driver handle. The lock manager, price cache and
// signal bus all borrow it; Close tears the connection pool down once.
type Client struct {
	rdb *redis.Client
}

// Connect dials Redis and verifies the connection with a ping.
func Connect(ctx context.Context, o Options) (*Client, error) {
	opts := &redis.Options{
		Addr:       o.Addr,
		Password:   o.Password,
		DB:         o.DB,
		PoolSize:   o.PoolSize,
		MaxRetries: o.MaxRetries,
	}
	if o.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", o.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Close shuts the connection pool down.
func (c *Client) Close() error {
	return c.rdb.Close()
}
