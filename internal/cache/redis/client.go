// Package redis backs the run lock and the series settlement cache with
// go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client. The bot is
// a short-lived batch process, so retries matter more than pool tuning;
// connection pooling is left at the driver default.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	MaxRetries int
	TLSEnabled bool
}

// Client wraps a go-redis Client shared by the lock manager and the series
// cache.
type Client struct {
	rdb *redis.Client
}

// New connects to Redis and verifies the connection with a ping. A run that
// cannot reach Redis must fail before it considers trading, because the run
// lock lives here.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: cfg.MaxRetries,
	}

	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	rdb := redis.NewClient(opts)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw *redis.Client for sub-packages that need direct
// access to the driver.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
