package memory

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultMaxEntries      = 10000
	DefaultCleanupInterval = time.Minute
)

// options holds memory cache configuration.
type options struct {
	maxEntries      int
	cleanupInterval time.Duration
	now             func() time.Time
	logger          *slog.Logger
}

// Option configures the memory cache.
type Option func(*options)

// WithMaxEntries sets the maximum number of entries.
// Default is 10000. When the cache is full, new keys are not cached
// until old entries expire or are deleted.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEntries = n
		}
	}
}

// WithCleanupInterval sets how often expired entries are purged.
// Default is one minute. Set to 0 to disable the background loop;
// expired entries are then only dropped when read.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.cleanupInterval = d
		}
	}
}

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
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
