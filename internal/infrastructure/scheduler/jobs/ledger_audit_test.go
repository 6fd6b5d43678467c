package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaidahub/rewards-core/internal/application/query"
	"github.com/qaidahub/rewards-core/internal/domain/coins"
	"github.com/qaidahub/rewards-core/internal/domain/user"
	"github.com/qaidahub/rewards-core/internal/infrastructure/persistence/memory"
)

func newStore(t *testing.T, ids ...string) *memory.Store {
	t.Helper()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s := memory.NewStore(memory.WithClock(func() time.Time { return now }))
	for _, id := range ids {
		u, err := user.NewUser(user.NewUserParams{ID: id}, now)
		require.NoError(t, err)
		require.NoError(t, s.Users().Create(context.Background(), u))
	}
	return s
}

func TestLedgerAuditJob_SweepsEveryUser(t *testing.T) {
	s := newStore(t, "u1", "u2", "u3", "u4", "u5")
	ctx := context.Background()
	for _, id := range []string{"u1", "u3", "u5"} {
		_, err := s.Ledger().Apply(ctx, coins.Entry{UserID: id, Type: coins.TypeAdjustment, Amount: 25})
		require.NoError(t, err)
	}

	history := query.NewCoinHistoryHandler(s.Users(), s.Ledger(), s.Ledger())
	job := NewLedgerAuditJob(s.Users(), history, nil, LedgerAuditConfig{BatchSize: 2})

	assert.Nil(t, job.LastRunStats())
	require.NoError(t, job.Run(ctx))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 5, stats.Checked)
	assert.Empty(t, stats.Inconsistent)
	assert.Zero(t, stats.Failed)
}

type fakeAuditor map[string]*query.AuditResult

func (f fakeAuditor) Audit(_ context.Context, userID string) (*query.AuditResult, error) {
	if res, ok := f[userID]; ok {
		return res, nil
	}
	return nil, errors.New("connection refused")
}

func TestLedgerAuditJob_ReportsProblems(t *testing.T) {
	s := newStore(t, "a", "b", "c")
	auditor := fakeAuditor{
		"a": {UserID: "a", Consistent: true},
		"b": {UserID: "b", Balance: 10, LedgerSum: 5, Problem: "balance 10 does not match ledger sum 5"},
	}

	job := NewLedgerAuditJob(s.Users(), auditor, nil, DefaultLedgerAuditConfig())
	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 inconsistent and 1 unreadable of 3 ledgers")

	stats := job.LastRunStats()
	assert.Equal(t, []string{"b"}, stats.Inconsistent)
	assert.Equal(t, 1, stats.Failed)
}

func TestLedgerAuditJob_StopsOnCancel(t *testing.T) {
	s := newStore(t, "a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := NewLedgerAuditJob(s.Users(), fakeAuditor{}, nil, DefaultLedgerAuditConfig())
	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
	assert.Zero(t, job.LastRunStats().Checked)
}
