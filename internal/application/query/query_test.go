package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaidahub/rewards-core/config"
	"github.com/qaidahub/rewards-core/internal/domain/coins"
	"github.com/qaidahub/rewards-core/internal/domain/progress"
	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/internal/domain/user"
	"github.com/qaidahub/rewards-core/internal/infrastructure/persistence/memory"
)

// ═══════════════════════════════════════════════════════════════════════════
// TEST HELPERS
// ═══════════════════════════════════════════════════════════════════════════

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T, userIDs ...string) *memory.Store {
	t.Helper()
	store := memory.NewStore(memory.WithClock(func() time.Time { return testNow }))
	for _, id := range userIDs {
		u, err := user.NewUser(user.NewUserParams{ID: id, CurrentLevel: "2"}, testNow)
		require.NoError(t, err)
		require.NoError(t, store.Users().Create(context.Background(), u))
	}
	return store
}

func apply(t *testing.T, store *memory.Store, userID string, typ coins.Type, amount int64) {
	t.Helper()
	_, err := store.Ledger().Apply(context.Background(), coins.Entry{UserID: userID, Type: typ, Amount: amount})
	require.NoError(t, err)
}

func complete(t *testing.T, store *memory.Store, userID, module, lessonID string, accuracy float64) {
	t.Helper()
	key := progress.Key{UserID: userID, Module: module, LevelID: "1", LessonID: lessonID}
	_, err := store.Progress().Track(context.Background(), key, func(p *progress.Progress) error {
		if p.Complete(accuracy, 60, testNow) {
			p.CoinsEarned += 10
		}
		return nil
	})
	require.NoError(t, err)
}

type fakeSummaryCache struct {
	mu          sync.Mutex
	entries     map[string]*progress.Summary
	gets        int
	sets        int
	invalidated []string
	getErr      error
}

func newFakeSummaryCache() *fakeSummaryCache {
	return &fakeSummaryCache{entries: make(map[string]*progress.Summary)}
}

func (c *fakeSummaryCache) Get(_ context.Context, userID string) (*progress.Summary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	s, ok := c.entries[userID]
	return s, ok, nil
}

func (c *fakeSummaryCache) Set(_ context.Context, userID string, s *progress.Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[userID] = s
	return nil
}

func (c *fakeSummaryCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, userID)
	delete(c.entries, userID)
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// COIN HISTORY
// ═══════════════════════════════════════════════════════════════════════════

func TestGetCoinHistory_Pagination(t *testing.T) {
	store := newStore(t, "u1")
	for i := 1; i <= 25; i++ {
		apply(t, store, "u1", coins.TypeLessonComplete, int64(i))
	}
	h := NewCoinHistoryHandler(store.Users(), store.Ledger(), store.Ledger())
	ctx := context.Background()

	res, err := h.GetCoinHistory(ctx, GetCoinHistoryQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, res.Transactions, 20)
	assert.Equal(t, coins.Pagination{Total: 25, Page: 1, Pages: 2, Limit: 20}, res.Pagination)
	assert.Equal(t, int64(25), res.Transactions[0].Amount, "newest first")

	res, err = h.GetCoinHistory(ctx, GetCoinHistoryQuery{UserID: "u1", Page: 2, Limit: 20})
	require.NoError(t, err)
	assert.Len(t, res.Transactions, 5)
	assert.Equal(t, int64(1), res.Transactions[4].Amount)

	res, err = h.GetCoinHistory(ctx, GetCoinHistoryQuery{UserID: "u1", Page: 9, Limit: 500})
	require.NoError(t, err)
	assert.Empty(t, res.Transactions)
	assert.Equal(t, coins.MaxPageLimit, res.Pagination.Limit)
}

func TestGetCoinHistory_Errors(t *testing.T) {
	store := newStore(t)
	h := NewCoinHistoryHandler(store.Users(), store.Ledger(), nil)

	_, err := h.GetCoinHistory(context.Background(), GetCoinHistoryQuery{UserID: "ghost"})
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))

	_, err = h.GetCoinHistory(context.Background(), GetCoinHistoryQuery{})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestGetCoinStats(t *testing.T) {
	store := newStore(t, "u1")
	apply(t, store, "u1", coins.TypeLessonComplete, 10)
	apply(t, store, "u1", coins.TypeQuizComplete, 120)
	apply(t, store, "u1", coins.TypeAchievement, 100)
	apply(t, store, "u1", coins.TypePurchase, -30)
	h := NewCoinHistoryHandler(store.Users(), store.Ledger(), nil)

	stats, err := h.GetCoinStats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(230), stats.TotalEarned)
	assert.Equal(t, int64(30), stats.TotalSpent)
	assert.Equal(t, 4, stats.TransactionCount)
	assert.Equal(t, coins.TypeTotal{Count: 1, Amount: -30}, stats.ByType[coins.TypePurchase])
}

func TestAudit(t *testing.T) {
	store := newStore(t, "u1")
	apply(t, store, "u1", coins.TypeLessonComplete, 10)
	apply(t, store, "u1", coins.TypePurchase, -4)

	h := NewCoinHistoryHandler(store.Users(), store.Ledger(), store.Ledger())
	res, err := h.Audit(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, res.Consistent)
	assert.Equal(t, int64(6), res.Balance)
	assert.Equal(t, int64(6), res.LedgerSum)
	assert.Equal(t, 2, res.TransactionCount)
	assert.Empty(t, res.Problem)

	broken := NewCoinHistoryHandler(store.Users(), store.Ledger(), staticAuditor{
		balance: 99,
		txs:     []*coins.Transaction{{Seq: 1, Amount: 10, Balance: 10}},
	})
	res, err = broken.Audit(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, res.Consistent)
	assert.Contains(t, res.Problem, "cached balance 99")

	unavailable := NewCoinHistoryHandler(store.Users(), store.Ledger(), nil)
	_, err = unavailable.Audit(context.Background(), "u1")
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

type staticAuditor struct {
	balance int64
	txs     []*coins.Transaction
}

func (a staticAuditor) All(context.Context, string) ([]*coins.Transaction, int64, error) {
	return a.txs, a.balance, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// PROGRESS SUMMARY
// ═══════════════════════════════════════════════════════════════════════════

func newSummaryHandler(store *memory.Store, cache SummaryCache, flags *config.FeatureFlags) *ProgressSummaryHandler {
	return NewProgressSummaryHandler(store.Users(), store.Progress(), cache, flags, nil, ProgressSummaryConfig{
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	})
}

func TestGetProgressSummary_Computes(t *testing.T) {
	store := newStore(t, "u1")
	complete(t, store, "u1", progress.ModuleQaida, "alif", 80)
	complete(t, store, "u1", progress.ModuleQaida, "ba", 100)
	apply(t, store, "u1", coins.TypeLessonComplete, 20)

	h := newSummaryHandler(store, nil, nil)
	s, err := h.GetProgressSummary(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, 2, s.CompletedLessons)
	assert.Equal(t, int64(20), s.TotalCoins)
	assert.Equal(t, int64(20), s.Coins)
	assert.Equal(t, "2", s.CurrentLevel)
	assert.Len(t, s.WeeklyProgress, progress.WeekDays)
	assert.Equal(t, progress.TypeCount{Completed: 2, Total: 2}, s.LessonsByType[progress.ModuleQaida])
}

func TestGetProgressSummary_UsesCache(t *testing.T) {
	store := newStore(t, "u1")
	complete(t, store, "u1", progress.ModuleQaida, "alif", 90)
	cache := newFakeSummaryCache()
	h := newSummaryHandler(store, cache, nil)
	ctx := context.Background()

	first, err := h.GetProgressSummary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	// A later lesson is not visible until the entry is invalidated.
	complete(t, store, "u1", progress.ModuleQaida, "ba", 90)
	cached, err := h.GetProgressSummary(ctx, "u1")
	require.NoError(t, err)
	assert.Same(t, first, cached)

	require.NoError(t, h.Invalidate(ctx, "u1"))
	fresh, err := h.GetProgressSummary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.CompletedLessons)
	assert.Equal(t, []string{"u1"}, cache.invalidated)
}

func TestGetProgressSummary_CacheReadFailureFallsBack(t *testing.T) {
	store := newStore(t, "u1")
	cache := newFakeSummaryCache()
	cache.getErr = errors.New("redis down")
	h := newSummaryHandler(store, cache, nil)

	s, err := h.GetProgressSummary(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)
}

func TestGetProgressSummary_CacheFlagOff(t *testing.T) {
	flags := config.NewFeatureFlags()
	require.NoError(t, flags.DisableFeature(config.FeatureProgressSummaryCache))

	store := newStore(t, "u1")
	cache := newFakeSummaryCache()
	h := newSummaryHandler(store, cache, flags)

	_, err := h.GetProgressSummary(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, cache.gets)
	assert.Zero(t, cache.sets)
}

func TestGetProgressSummary_Errors(t *testing.T) {
	store := newStore(t)
	h := newSummaryHandler(store, nil, nil)

	_, err := h.GetProgressSummary(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))

	_, err = h.GetProgressSummary(context.Background(), "")
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestGetProgressSummary_Concurrent(t *testing.T) {
	store := newStore(t, "u1")
	for i := 0; i < 5; i++ {
		complete(t, store, "u1", progress.ModuleDua, fmt.Sprintf("dua-%d", i), 75)
	}
	h := newSummaryHandler(store, nil, nil)

	var wg sync.WaitGroup
	results := make([]*progress.Summary, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := h.GetProgressSummary(context.Background(), "u1")
			if assert.NoError(t, err) {
				results[i] = s
			}
		}(i)
	}
	wg.Wait()

	for _, s := range results {
		require.NotNil(t, s)
		assert.Equal(t, 5, s.CompletedLessons)
		assert.Equal(t, progress.TypeCount{Completed: 5, Total: 5}, s.LessonsByType[progress.ModuleDua])
	}
}

// gatedUsers blocks GetByID until release is closed.
type gatedUsers struct {
	user.Repository
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedUsers(repo user.Repository) *gatedUsers {
	return &gatedUsers{Repository: repo, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedUsers) GetByID(ctx context.Context, id string) (*user.User, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Repository.GetByID(ctx, id)
}

func newGatedSummaryHandler(store *memory.Store, users *gatedUsers, cache SummaryCache) *ProgressSummaryHandler {
	return NewProgressSummaryHandler(users, store.Progress(), cache, nil, nil, ProgressSummaryConfig{
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	})
}

func TestGetProgressSummary_CancelledCallerDoesNotFailOthers(t *testing.T) {
	store := newStore(t, "u1")
	complete(t, store, "u1", progress.ModuleQaida, "alif", 90)
	users := newGatedUsers(store.Users())
	h := newGatedSummaryHandler(store, users, nil)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := h.GetProgressSummary(ctx, "u1")
		firstErr <- err
	}()
	<-users.entered

	type result struct {
		s   *progress.Summary
		err error
	}
	second := make(chan result, 1)
	go func() {
		s, err := h.GetProgressSummary(context.Background(), "u1")
		second <- result{s, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(users.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.s.CompletedLessons)
}

func TestGetProgressSummary_InvalidatedWhileComputingIsNotCached(t *testing.T) {
	store := newStore(t, "u1")
	complete(t, store, "u1", progress.ModuleQaida, "alif", 90)
	users := newGatedUsers(store.Users())
	cache := newFakeSummaryCache()
	h := newGatedSummaryHandler(store, users, cache)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := h.GetProgressSummary(ctx, "u1")
		done <- err
	}()
	<-users.entered

	// A write lands and its event invalidates while the read is in flight.
	complete(t, store, "u1", progress.ModuleQaida, "ba", 90)
	require.NoError(t, h.Invalidate(ctx, "u1"))

	close(users.release)
	require.NoError(t, <-done)
	assert.Zero(t, cache.sets)

	fresh, err := h.GetProgressSummary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.CompletedLessons)
	assert.Equal(t, 1, cache.sets)
}
