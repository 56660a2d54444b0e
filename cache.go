package forum

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rbaliyan/forum/cache"
	"golang.org/x/sync/singleflight"
)

// cacheFillTimeout bounds a shared cache fill.
const cacheFillTimeout = 10 * time.Second

// cacheLayer makes a cache.Cache best-effort: failures are logged and read
// as misses, and concurrent fills of one key share a single load.
type cacheLayer struct {
	backend cache.Cache
	logger  *slog.Logger
	otel    *otelInstrumentation
	group   singleflight.Group
}

func newCacheLayer(c cache.Cache, logger *slog.Logger, otel *otelInstrumentation) *cacheLayer {
	if c == nil {
		return nil
	}
	return &cacheLayer{backend: c, logger: logger, otel: otel}
}

// get decodes the cached value into dst and reports whether it was found.
func (l *cacheLayer) get(ctx context.Context, key string, dst any) bool {
	data, err := l.backend.Get(ctx, key)
	if err != nil {
		if !cache.IsMiss(err) {
			l.logger.Warn("cache get failed", "error", err, "key", key)
		}
		l.otel.recordCache(ctx, false)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		l.logger.Warn("undecodable cache entry ignored", "error", err, "key", key)
		l.otel.recordCache(ctx, false)
		return false
	}
	l.otel.recordCache(ctx, true)
	return true
}

func (l *cacheLayer) set(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		l.logger.Warn("cache value not encodable", "error", err, "key", key)
		return
	}
	if err := l.backend.Set(ctx, key, data, ttl); err != nil {
		l.logger.Warn("cache set failed", "error", err, "key", key)
	}
}

// delete drops keys. A nil layer is a no-op.
func (l *cacheLayer) delete(ctx context.Context, keys ...string) {
	if l == nil || len(keys) == 0 {
		return
	}
	if err := l.backend.Delete(ctx, keys...); err != nil {
		l.logger.Warn("cache delete failed", "error", err, "keys", len(keys))
	}
}

// cached returns the value under key, loading and storing it on a miss.
// An empty key or a nil layer bypasses the cache.
func cached[T any](ctx context.Context, l *cacheLayer, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if l == nil || key == "" {
		return load(ctx)
	}

	var out T
	if l.get(ctx, key, &out) {
		return out, nil
	}

	// The fill is shared by every waiter, so it must outlive the caller
	// that started it.
	ch := l.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheFillTimeout)
		defer cancel()
		val, err := load(fctx)
		if err != nil {
			return nil, err
		}
		l.set(fctx, key, val, ttl)
		return val, nil
	})
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
