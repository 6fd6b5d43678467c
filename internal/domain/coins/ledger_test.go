package coins

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaidahub/rewards-core/internal/domain/shared"
)

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name                string
		page, limit         int
		wantPage, wantLimit int
		wantOffset          int
	}{
		{"defaults", 0, 0, 1, DefaultPageLimit, 0},
		{"second page", 2, 10, 2, 10, 10},
		{"limit clamped", 1, 500, 1, MaxPageLimit, 0},
		{"negative page", -3, 5, 1, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, limit, offset := NormalizePage(tt.page, tt.limit)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, Pagination{Total: 45, Page: 2, Pages: 3, Limit: 20}, NewPagination(45, 2, 20))
	assert.Equal(t, Pagination{Total: 0, Page: 1, Pages: 0, Limit: 20}, NewPagination(0, 1, 20))
}

func TestEntryNext_BuildsRunningBalance(t *testing.T) {
	now := time.Now()
	var (
		balance int64
		seq     int64
		txs     []*Transaction
	)

	for _, amount := range []int64{10, 50, -30, 120} {
		tx, err := Entry{UserID: "u1", Type: TypeAdjustment, Amount: amount}.Next("id", balance, seq, now)
		require.NoError(t, err)
		balance, seq = tx.Balance, tx.Seq
		txs = append(txs, tx)
	}

	assert.Equal(t, int64(150), balance)
	assert.NoError(t, Audit(balance, txs))
}

func TestEntryNext_InsufficientFunds(t *testing.T) {
	_, err := Entry{UserID: "u1", Type: TypePurchase, Amount: -40}.Next("id", 30, 2, time.Now())

	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInsufficientFunds))
}

func TestAudit_DetectsDrift(t *testing.T) {
	txs := []*Transaction{
		{Seq: 1, Amount: 10, Balance: 10},
		{Seq: 2, Amount: 5, Balance: 16},
	}
	assert.Error(t, Audit(16, txs))

	txs[1].Balance = 15
	assert.Error(t, Audit(20, txs), "cached balance must match the ledger sum")
	assert.NoError(t, Audit(15, txs))
}

func TestEntryValidate(t *testing.T) {
	tests := []struct {
		name    string
		entry   Entry
		wantErr bool
	}{
		{"valid", Entry{UserID: "u1", Type: TypeLessonComplete, Amount: 10, Metadata: LessonMetadata("l1", 90)}, false},
		{"missing user", Entry{Type: TypeLessonComplete, Amount: 10}, true},
		{"zero amount", Entry{UserID: "u1", Type: TypeAdjustment}, true},
		{"unknown type", Entry{UserID: "u1", Type: "bonus", Amount: 1}, true},
		{"bad reference", Entry{UserID: "u1", Type: TypeAdjustment, Amount: 1, Reference: &Reference{Model: RefProgress}}, true},
		{"bad metadata", Entry{UserID: "u1", Type: TypeAchievement, Amount: 1, Metadata: &Metadata{Kind: TypeAchievement}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, shared.IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestComputeStats(t *testing.T) {
	txs := []*Transaction{
		{Type: TypeLessonComplete, Amount: 10},
		{Type: TypeLessonComplete, Amount: 20},
		{Type: TypeAchievement, Amount: 50},
		{Type: TypePurchase, Amount: -25},
	}

	s := ComputeStats(txs)

	assert.Equal(t, int64(80), s.TotalEarned)
	assert.Equal(t, int64(25), s.TotalSpent)
	assert.Equal(t, 4, s.TransactionCount)
	assert.Equal(t, TypeTotal{Count: 2, Amount: 30}, s.ByType[TypeLessonComplete])
	assert.Equal(t, TypeTotal{Count: 1, Amount: -25}, s.ByType[TypePurchase])
}

func TestSortNewestFirst_TieBreaksOnSeq(t *testing.T) {
	ts := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	txs := []*Transaction{
		{Seq: 1, CreatedAt: ts},
		{Seq: 3, CreatedAt: ts},
		{Seq: 2, CreatedAt: ts},
		{Seq: 4, CreatedAt: ts.Add(time.Second)},
	}

	SortNewestFirst(txs)

	var seqs []int64
	for _, tx := range txs {
		seqs = append(seqs, tx.Seq)
	}
	assert.Equal(t, []int64{4, 3, 2, 1}, seqs)
}
