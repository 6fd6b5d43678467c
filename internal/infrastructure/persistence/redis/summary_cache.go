package redis

import (
	"context"
	"errors"
	"time"

	"github.com/qaidahub/rewards-core/internal/domain/progress"
	"github.com/qaidahub/rewards-core/pkg/circuitbreaker"
)

// jsonStore is the part of Cache the summary cache needs.
type jsonStore interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// SummaryCache stores progress summaries as JSON under summary:<user>.
// Reads and writes go through a circuit breaker; while it is open they fail
// fast with circuitbreaker.ErrOpen and the caller computes from storage.
type SummaryCache struct {
	store   jsonStore
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// NewSummaryCache creates a summary cache. A non-positive ttl uses
// TTLSummaryCache; a nil breaker gets a default one.
func NewSummaryCache(cache *Cache, ttl time.Duration, breaker *circuitbreaker.CircuitBreaker) *SummaryCache {
	return newSummaryCache(cache, ttl, breaker)
}

func newSummaryCache(store jsonStore, ttl time.Duration, breaker *circuitbreaker.CircuitBreaker) *SummaryCache {
	if ttl <= 0 {
		ttl = TTLSummaryCache
	}
	if breaker == nil {
		breaker = circuitbreaker.New("redis-summary", circuitbreaker.WithIsFailure(isConnectionFailure))
	}
	return &SummaryCache{store: store, ttl: ttl, breaker: breaker}
}

// Get returns the cached summary. A miss is (nil, false, nil).
func (s *SummaryCache) Get(ctx context.Context, userID string) (*progress.Summary, bool, error) {
	var out progress.Summary
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.store.Get(ctx, SummaryKey(userID), &out)
	})
	if errors.Is(err, ErrMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &out, true, nil
}

// Set caches a summary for the configured TTL.
func (s *SummaryCache) Set(ctx context.Context, userID string, summary *progress.Summary) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.store.Set(ctx, SummaryKey(userID), summary, s.ttl)
	})
}

// Invalidate drops the cached summary of a user. It bypasses the breaker:
// a skipped delete would leave a stale entry behind once Redis is back.
func (s *SummaryCache) Invalidate(ctx context.Context, userID string) error {
	return s.store.Delete(ctx, SummaryKey(userID))
}

// isConnectionFailure ignores misses, bad input and cancellation.
func isConnectionFailure(err error) bool {
	switch {
	case errors.Is(err, ErrMiss),
		errors.Is(err, ErrEncoding),
		errors.Is(err, ErrEmptyKey),
		errors.Is(err, ErrNilValue),
		errors.Is(err, ErrNegativeTTL),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}
