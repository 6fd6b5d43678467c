package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errConflict = errors.New("serialization failure")
	errFatal    = errors.New("no such table")
)

func isConflict(err error) bool { return errors.Is(err, errConflict) }

func fast(opts ...Option) *Retrier {
	return New(append([]Option{WithBackoff(0, 0), WithRetryIf(isConflict)}, opts...)...)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	var retries []int
	calls := 0
	r := fast(WithMaxAttempts(5), WithOnRetry(func(attempt int, _ error, _ time.Duration) {
		retries = append(retries, attempt)
	}))

	got, err := DoValue(context.Background(), r, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errConflict
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDo_GivesUp(t *testing.T) {
	calls := 0
	err := fast(WithMaxAttempts(3)).Do(context.Background(), func(context.Context) error {
		calls++
		return errConflict
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, errConflict)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryableAndPermanent(t *testing.T) {
	calls := 0
	err := fast().Do(context.Background(), func(context.Context) error {
		calls++
		return errFatal
	})
	assert.ErrorIs(t, err, errFatal)
	assert.Equal(t, 1, calls)

	calls = 0
	err = fast().Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errConflict)
	})
	assert.Equal(t, errConflict, err)
	assert.Equal(t, 1, calls)
}

func TestDo_NilRetryIfRetriesNothing(t *testing.T) {
	calls := 0
	err := New(WithBackoff(0, 0)).Do(context.Background(), func(context.Context) error {
		calls++
		return errConflict
	})
	assert.ErrorIs(t, err, errConflict)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fast().Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDelay_IsCapped(t *testing.T) {
	r := New(WithBackoff(10*time.Millisecond, 30*time.Millisecond))
	r.config.Jitter = 0

	assert.Equal(t, 10*time.Millisecond, r.delay(1))
	assert.Equal(t, 20*time.Millisecond, r.delay(2))
	assert.Equal(t, 30*time.Millisecond, r.delay(3))
	assert.Equal(t, 30*time.Millisecond, r.delay(10))
}
