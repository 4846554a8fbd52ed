// Package redis opens the shared go-redis client used by the registration,
// partner and rate-limit stores.
package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"voltgrid/internal/platform/config"
)

// Client carries the key namespace alongside the connection so that every
// store on one Redis stays under the same prefix.
type Client struct {
	*redis.Client
	prefix string
}

// New returns (nil, nil) when REDIS_URL is unset; callers fall back to
// in-memory stores.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.ClientName = "voltgrid-ocpi"

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{Client: client, prefix: strings.TrimRight(cfg.KeyPrefix, ":")}, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

func (c *Client) Prefix() string {
	return c.prefix
}
