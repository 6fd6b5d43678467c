package redis

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaidahub/rewards-core/internal/domain/progress"
	"github.com/qaidahub/rewards-core/pkg/circuitbreaker"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is not set")
	}

	cfg := DefaultConfig()
	cfg.Host, cfg.Port = splitAddr(t, addr)
	cache, err := NewCache(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestCache_RejectsBadInput(t *testing.T) {
	c := &Cache{}
	ctx := context.Background()

	assert.ErrorIs(t, c.Set(ctx, "", 1, time.Second), ErrEmptyKey)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, time.Second), ErrNilValue)
	assert.ErrorIs(t, c.Set(ctx, "k", 1, -time.Second), ErrNegativeTTL)
	assert.ErrorIs(t, c.Get(ctx, "", new(int)), ErrEmptyKey)
}

func TestSummaryKey(t *testing.T) {
	assert.Equal(t, "summary:u1", SummaryKey("u1"))
}

func TestSummaryCache_RoundTripAndInvalidate(t *testing.T) {
	cache := openTestCache(t)
	ctx := context.Background()
	sc := NewSummaryCache(cache, time.Minute, nil)
	userID := "summary-" + uuid.NewString()

	_, ok, err := sc.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok)

	summary := &progress.Summary{
		UserID:           userID,
		TotalLessons:     15,
		CompletedLessons: 10,
		Accuracy:         90,
		ByModule:         map[string]progress.ModuleStats{"Qaida": {TotalLessons: 15, CompletedLessons: 10}},
	}
	require.NoError(t, sc.Set(ctx, userID, summary))

	got, ok, err := sc.Get(ctx, userID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10, got.CompletedLessons)
	assert.Equal(t, 10, got.ByModule["Qaida"].CompletedLessons)

	ttl, err := cache.TTL(ctx, SummaryKey(userID))
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, sc.Invalidate(ctx, userID))
	_, ok, err = sc.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok)
}

type downStore struct{ calls int }

func (d *downStore) Get(context.Context, string, any) error {
	d.calls++
	return errors.New("dial tcp 127.0.0.1:6379: connection refused")
}

func (d *downStore) Set(context.Context, string, any, time.Duration) error {
	d.calls++
	return errors.New("dial tcp 127.0.0.1:6379: connection refused")
}

func (d *downStore) Delete(context.Context, ...string) error {
	d.calls++
	return nil
}

func TestSummaryCache_BreakerStopsCallingDeadRedis(t *testing.T) {
	store := &downStore{}
	breaker := circuitbreaker.New("test", circuitbreaker.WithFailureThreshold(2), circuitbreaker.WithIsFailure(isConnectionFailure))
	sc := newSummaryCache(store, time.Minute, breaker)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _, err := sc.Get(ctx, "u1")
		require.Error(t, err)
	}
	assert.Equal(t, 2, store.calls)

	_, _, err := sc.Get(ctx, "u1")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.ErrorIs(t, sc.Set(ctx, "u1", &progress.Summary{}), circuitbreaker.ErrOpen)
	assert.Equal(t, 2, store.calls)

	// Invalidation always reaches Redis.
	require.NoError(t, sc.Invalidate(ctx, "u1"))
	assert.Equal(t, 3, store.calls)
}

func TestIsConnectionFailure(t *testing.T) {
	assert.False(t, isConnectionFailure(ErrMiss))
	assert.False(t, isConnectionFailure(context.Canceled))
	assert.True(t, isConnectionFailure(ErrUnavailable))
	assert.True(t, isConnectionFailure(context.DeadlineExceeded))
}
