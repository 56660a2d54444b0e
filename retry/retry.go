// Package retry re-runs forum write transactions that failed to commit
// because of a serialization failure or deadlock.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rbaliyan/forum/store"
)

// Defaults used by DefaultConfig and to fill zero fields.
const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 20 * time.Millisecond
	DefaultMaxBackoff     = time.Second
	DefaultMultiplier     = 2.0
	DefaultJitter         = 0.1
)

// ErrExhausted is matched by the error Do returns when every attempt failed
// with a retryable error.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Config is a retry policy for store transactions.
type Config struct {
	// MaxRetries is the number of extra attempts after the first one.
	// Zero runs the transaction once.
	MaxRetries int

	// InitialBackoff is the wait before the first retry. Each later wait is
	// Multiplier times the previous one, capped at MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	// Jitter spreads each wait by +/- the given fraction (0 to 1).
	Jitter float64

	// Retryable reports whether a failed attempt may be repeated.
	// Defaults to IsTransactionFailure.
	Retryable func(error) bool

	// OnRetry, when set, is called before each wait with the attempt that
	// just failed (starting at 1).
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultConfig returns the policy used for forum writes.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		Multiplier:     DefaultMultiplier,
		Jitter:         DefaultJitter,
		Retryable:      IsTransactionFailure,
	}
}

// IsTransactionFailure reports whether err is a commit failure the store
// expects to succeed on a fresh attempt.
func IsTransactionFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, store.ErrTransactionFailed)
}

// ExhaustedError is returned when the last allowed attempt still failed.
type ExhaustedError struct {
	Attempts int
	Err      error // last failure
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.Err}
}

// Do runs fn until it succeeds, fails with a non-retryable error or the
// policy runs out of attempts. Non-retryable errors are returned unchanged.
// If ctx ends while waiting, the last failure is returned.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	cfg = normalize(cfg)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil || !cfg.Retryable(err) {
			return err
		}
		if attempt > cfg.MaxRetries {
			return &ExhaustedError{Attempts: attempt, Err: err}
		}

		wait := cfg.backoff(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// backoff returns the wait after the given failed attempt.
func (cfg Config) backoff(attempt int) time.Duration {
	d := float64(cfg.InitialBackoff)
	for i := 1; i < attempt && d < float64(cfg.MaxBackoff); i++ {
		d *= cfg.Multiplier
	}
	d = min(d, float64(cfg.MaxBackoff))
	if cfg.Jitter > 0 {
		spread := d * cfg.Jitter
		d += (rand.Float64()*2 - 1) * spread
	}
	return time.Duration(d)
}

func normalize(cfg Config) Config {
	cfg.MaxRetries = max(cfg.MaxRetries, 0)
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = DefaultMultiplier
	}
	cfg.Jitter = min(max(cfg.Jitter, 0), 1)
	if cfg.Retryable == nil {
		cfg.Retryable = IsTransactionFailure
	}
	return cfg
}
