// Package redis provides a cache.Cache backed by Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbaliyan/forum/cache"
	goredis "github.com/redis/go-redis/v9"
)

// Ensure Cache implements cache.Cache.
var _ cache.Cache = (*Cache)(nil)

// Default configuration values.
const (
	DefaultTimeout = 2 * time.Second
)

type options struct {
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures the Redis cache.
type Option func(*options)

// WithPrefix prepends prefix to every key.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithTimeout sets the per-command timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Cache stores entries in Redis with native key expiry.
type Cache struct {
	client goredis.UniversalClient
	opts   *options
}

// New creates a Redis cache using an existing client.
// The caller owns the client and is responsible for closing it.
func New(client goredis.UniversalClient, opts ...Option) (*Cache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis cache: client is required")
	}
	o := &options{
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Cache{client: client, opts: o}, nil
}

func (c *Cache) key(k string) string {
	return c.opts.prefix + k
}

// Get returns the cached value or cache.ErrMiss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.timeout)
	defer cancel()

	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Set stores value under key with the given TTL (0 = no expiry).
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.timeout)
	defer cancel()

	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the keys in a single DEL command.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.timeout)
	defer cancel()

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	c.opts.logger.Debug("cache keys deleted", "count", len(full))
	return nil
}
