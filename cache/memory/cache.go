// Package memory provides an in-process cache.Cache with TTL expiry.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbaliyan/forum/cache"
)

// Ensure Cache implements cache.Cache.
var _ cache.Cache = (*Cache)(nil)

type entry struct {
	value   []byte
	expires time.Time // zero means no expiry
}

// Cache is an in-process TTL cache.
type Cache struct {
	maxEntries int
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.RWMutex
	entries map[string]entry

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a memory cache. Call Close to stop the cleanup loop.
func New(opts ...Option) *Cache {
	o := &options{
		maxEntries:      DefaultMaxEntries,
		cleanupInterval: DefaultCleanupInterval,
		now:             time.Now,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	c := &Cache{
		maxEntries: o.maxEntries,
		now:        o.now,
		logger:     o.logger,
		entries:    make(map[string]entry),
		stop:       make(chan struct{}),
	}

	if o.cleanupInterval > 0 {
		go c.cleanupLoop(o.cleanupInterval)
	}
	return c
}

// Get returns the cached value or cache.ErrMiss.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, cache.ErrMiss
	}
	if c.expired(e) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, ok := c.entries[key]; ok && c.expired(cur) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, cache.ErrMiss
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a copy of value under key.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.logger.Debug("cache full, not caching", "key", key, "entries", len(c.entries))
		return nil
	}
	c.entries[key] = e
	return nil
}

// Delete removes the keys.
func (c *Cache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	c.logger.Info("cache cleared")
}

// Close stops the background cleanup loop.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *Cache) expired(e entry) bool {
	return !e.expires.IsZero() && !c.now().Before(e.expires)
}

// cleanupLoop periodically removes expired entries.
func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanupExpired()
		case <-c.stop:
			return
		}
	}
}

// cleanupExpired removes expired entries.
func (c *Cache) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("cache cleanup completed", "removed", removed)
	}
}
