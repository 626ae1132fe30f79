// Package retry provides exponential backoff with jitter for fallible
// operations against external resources.
//
// Failures are classified by a caller-supplied predicate: retryable
// failures are retried up to a bound, non-retryable failures are wrapped
// in FatalError and propagated immediately so the enclosing loop can
// abort the run instead of iterating further.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Default retry parameters.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// FatalError wraps a non-retryable failure. Callers must treat it as
// "stop the run, do not continue iterating".
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err in a FatalError. Wrapping a nil error returns nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err is (or wraps) a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Config configures Do.
type Config struct {
	// MaxAttempts bounds the total number of attempts (including the first).
	MaxAttempts int

	// BaseDelay is the backoff unit: attempt n waits
	// min(BaseDelay*2^(n-1) + jitter, MaxDelay) with jitter uniform in
	// [0, BaseDelay).
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration

	// Retryable classifies errors. A nil predicate treats every error as
	// retryable. Returning false makes Do propagate the error immediately
	// as a FatalError.
	Retryable func(error) bool

	// OnRetry, when set, is called before each backoff sleep.
	OnRetry func(attempt int, delay time.Duration)
}

// applyDefaults fills zero fields with the package defaults.
func (c Config) applyDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	return c
}

// Backoff returns the delay before retrying after the given 1-based
// attempt, including uniform jitter in [0, BaseDelay).
func (c Config) Backoff(attempt int) time.Duration {
	c = c.applyDefaults()
	delay := c.BaseDelay << uint(attempt-1)
	if delay <= 0 || delay > c.MaxDelay {
		// Shift overflow or past the cap.
		delay = c.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(c.BaseDelay)))
	if delay+jitter > c.MaxDelay {
		return c.MaxDelay
	}
	return delay + jitter
}

// Do runs fn, retrying retryable failures with exponential backoff.
//
// A failure the Retryable predicate rejects is returned immediately
// wrapped in FatalError. Exhausting MaxAttempts returns the last failure
// unwrapped; the two signals are distinct on purpose. An error that is
// already a FatalError is never retried.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg = cfg.applyDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		if IsFatal(err) {
			return err
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return Fatal(err)
		}

		lastErr = err
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.Backoff(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}
