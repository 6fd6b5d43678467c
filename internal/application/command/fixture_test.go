package command_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qaidahub/rewards-core/config"
	"github.com/qaidahub/rewards-core/internal/application/command"
	"github.com/qaidahub/rewards-core/internal/application/saga"
	"github.com/qaidahub/rewards-core/internal/domain/achievement"
	"github.com/qaidahub/rewards-core/internal/domain/coins"
	"github.com/qaidahub/rewards-core/internal/domain/progress"
	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/internal/infrastructure/persistence/memory"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEST DOUBLES
// ══════════════════════════════════════════════════════════════════════════════

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *eventRecorder) Publish(events ...shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *eventRecorder) Count(t shared.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType() == t {
			n++
		}
	}
	return n
}

// fakeCatalog keys levels as "<module>/<level>".
type fakeCatalog struct {
	levels  map[string]int
	modules map[string]int
}

func (c fakeCatalog) LessonsInLevel(module, levelID string) int {
	return c.levels[module+"/"+levelID]
}

func (c fakeCatalog) LessonsInModule(module string) int {
	return c.modules[module]
}

// failingLedger rejects every write.
type failingLedger struct {
	coins.Ledger
	err error
}

func (l failingLedger) Apply(context.Context, coins.Entry) (*coins.Transaction, error) {
	return nil, l.err
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

type fixture struct {
	store  *memory.Store
	clock  *testClock
	events *eventRecorder

	ledger   *command.CoinLedgerHandler
	flow     *saga.AchievementFlowSaga
	users    *command.UserHandler
	lessons  *command.LessonHandler
	quizzes  *command.QuizHandler
	mistakes *command.MistakeHandler
	logins   *command.LoginHandler
}

type fixtureOptions struct {
	ledger coins.Ledger
	flags  *config.FeatureFlags
}

func newFixture(t *testing.T, opts ...func(*fixtureOptions)) *fixture {
	t.Helper()

	var o fixtureOptions
	for _, opt := range opts {
		opt(&o)
	}

	clock := newTestClock()
	store := memory.NewStore(memory.WithClock(clock.Now))
	events := &eventRecorder{}

	ledger := o.ledger
	if ledger == nil {
		ledger = store.Ledger()
	}

	cfg := command.Config{
		Rewards:    progress.DefaultRewards(),
		Location:   time.UTC,
		MaxRetries: 3,
		Now:        clock.Now,
	}
	catalog := fakeCatalog{
		levels:  map[string]int{"Qaida/2": 2},
		modules: map[string]int{"Qaida": 3},
	}

	ledgerHandler := command.NewCoinLedgerHandler(ledger, events, nil)
	flow := saga.NewAchievementFlowSaga(store.Achievements(), ledgerHandler, events, o.flags, nil,
		saga.AchievementFlowConfig{Now: clock.Now})
	rewarder := command.NewRewarder(ledgerHandler, flow, nil)

	return &fixture{
		store:    store,
		clock:    clock,
		events:   events,
		ledger:   ledgerHandler,
		flow:     flow,
		users:    command.NewUserHandler(store.Users(), nil, cfg),
		lessons:  command.NewLessonHandler(store.Users(), store.Progress(), catalog, rewarder, events, nil, cfg),
		quizzes:  command.NewQuizHandler(store.Users(), store.Quizzes(), rewarder, events, nil, cfg),
		mistakes: command.NewMistakeHandler(store.Mistakes(), rewarder, events, nil, cfg),
		logins:   command.NewLoginHandler(store.Users(), rewarder, events, o.flags, nil, cfg),
	}
}

func withLedger(l coins.Ledger) func(*fixtureOptions) {
	return func(o *fixtureOptions) { o.ledger = l }
}

func withFlags(ff *config.FeatureFlags) func(*fixtureOptions) {
	return func(o *fixtureOptions) { o.flags = ff }
}

func (f *fixture) register(t *testing.T, id string) {
	t.Helper()
	_, err := f.users.RegisterUser(context.Background(), command.RegisterUserCommand{UserID: id, DisplayName: "Learner"})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, id string) int64 {
	t.Helper()
	u, err := f.store.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	return u.Coins
}

// requireConsistentLedger checks the running balances and the cached balance.
func (f *fixture) requireConsistentLedger(t *testing.T, id string) []*coins.Transaction {
	t.Helper()
	txs, balance, err := f.store.Ledger().All(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, coins.Audit(balance, txs))
	return txs
}

func (f *fixture) badges(t *testing.T, id string) []achievement.BadgeType {
	t.Helper()
	list, err := f.store.Achievements().ListByUser(context.Background(), id)
	require.NoError(t, err)
	out := make([]achievement.BadgeType, 0, len(list))
	for _, a := range list {
		out = append(out, a.BadgeType)
	}
	return out
}

func badgeTypes(list []*achievement.Achievement) []achievement.BadgeType {
	out := make([]achievement.BadgeType, 0, len(list))
	for _, a := range list {
		out = append(out, a.BadgeType)
	}
	return out
}

func lesson(userID, level, id string, accuracy float64) command.RecordLessonCompletionCommand {
	return command.RecordLessonCompletionCommand{
		UserID:    userID,
		Module:    progress.ModuleQaida,
		LevelID:   level,
		LessonID:  id,
		Accuracy:  accuracy,
		TimeSpent: 120,
	}
}
