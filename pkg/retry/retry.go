// Package retry runs operations with exponential backoff and jitter.
// It is used around storage calls that can fail transiently, such as
// serialization failures on balance updates.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// PermanentError stops the retry loop immediately, even when the wrapped
// error would otherwise be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so it is returned without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// ExhaustedError is returned when every attempt failed with a retryable error.
// It unwraps to the last error so callers can still match its kind.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Config holds retry configuration.
type Config struct {
	// MaxAttempts includes the first attempt. Default: 3
	MaxAttempts int

	// InitialDelay before the first retry, doubled after each one and capped
	// at MaxDelay. Defaults: 20ms, 500ms
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// Jitter in [0,1] randomises each delay by ±Jitter. Default: 0.2
	Jitter float64

	// RetryIf decides which errors are retried. Nil retries nothing.
	RetryIf func(error) bool

	// OnRetry is called before each sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Option configures a Retrier.
type Option func(*Config)

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

// WithBackoff sets the first delay and the cap.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(c *Config) {
		if initial >= 0 && maxDelay >= initial {
			c.InitialDelay, c.MaxDelay = initial, maxDelay
		}
	}
}

// WithRetryIf sets the predicate deciding which errors are retried.
func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) { c.RetryIf = fn }
}

// WithOnRetry sets a callback invoked before each retry.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) { c.OnRetry = fn }
}

// Retrier runs operations with retries. It is safe for concurrent use.
type Retrier struct {
	config Config
}

// New creates a Retrier with the given options.
func New(opts ...Option) *Retrier {
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Jitter:       0.2,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Retrier{config: cfg}
}

// Storage returns a Retrier for short database transactions that retries
// the errors retryIf accepts.
func Storage(maxAttempts int, retryIf func(error) bool) *Retrier {
	return New(WithMaxAttempts(maxAttempts), WithRetryIf(retryIf))
}

// Do executes operation until it succeeds, returns an error RetryIf rejects,
// the context is done, or MaxAttempts is reached.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		if r.config.RetryIf == nil || !r.config.RetryIf(err) {
			return err
		}
		if attempt == r.config.MaxAttempts {
			return &ExhaustedError{Attempts: attempt, Err: err}
		}

		delay := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

// delay returns InitialDelay * 2^(attempt-1), capped and jittered.
func (r *Retrier) delay(attempt int) time.Duration {
	base := float64(r.config.InitialDelay) * math.Pow(2, float64(attempt-1))
	base = math.Min(base, float64(r.config.MaxDelay))
	if r.config.Jitter > 0 {
		base += base * r.config.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(math.Max(base, 0))
}

// DoValue runs an operation that returns a value through r.
func DoValue[T any](ctx context.Context, r *Retrier, operation func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = operation(ctx)
		return opErr
	})
	return result, err
}
