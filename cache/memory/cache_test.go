package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rbaliyan/forum/cache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(t *testing.T, opts ...Option) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now), WithCleanupInterval(0)}, opts...)
	c := New(opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	if _, err := c.Get(ctx, "k"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("expected v, got %q", got)
	}

	if err := c.Delete(ctx, "k", "missing"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !cache.IsMiss(err) {
		t.Errorf("expected miss after delete, got %v", err)
	}
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t)

	_ = c.Set(ctx, "short", []byte("1"), time.Minute)
	_ = c.Set(ctx, "forever", []byte("2"), 0)

	clock.Advance(2 * time.Minute)

	if _, err := c.Get(ctx, "short"); !cache.IsMiss(err) {
		t.Errorf("expected expired entry to miss, got %v", err)
	}
	if _, err := c.Get(ctx, "forever"); err != nil {
		t.Errorf("expected entry without ttl to survive, got %v", err)
	}
}

func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t)

	_ = c.Set(ctx, "a", []byte("1"), time.Second)
	_ = c.Set(ctx, "b", []byte("2"), time.Hour)
	clock.Advance(time.Minute)

	c.cleanupExpired()
	if c.Len() != 1 {
		t.Errorf("expected 1 entry after cleanup, got %d", c.Len())
	}
}

func TestMaxEntries(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, WithMaxEntries(1))

	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)
	if _, err := c.Get(ctx, "b"); !cache.IsMiss(err) {
		t.Errorf("expected full cache to skip new key, got %v", err)
	}

	// Existing keys can still be refreshed.
	_ = c.Set(ctx, "a", []byte("3"), 0)
	got, _ := c.Get(ctx, "a")
	if string(got) != "3" {
		t.Errorf("expected refreshed value, got %q", got)
	}
}

func TestValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	v := []byte("abc")
	_ = c.Set(ctx, "k", v, 0)
	v[0] = 'x'

	got, _ := c.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("expected stored copy, got %q", got)
	}
	got[0] = 'y'
	again, _ := c.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("expected returned copy, got %q", again)
	}
}
