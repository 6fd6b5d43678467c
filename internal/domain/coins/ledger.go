package coins

import (
	"context"
	"fmt"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER STORAGE CONTRACT
// ══════════════════════════════════════════════════════════════════════════════

// Ledger stores transactions and the cached balance they produce.
type Ledger interface {
	// Apply adjusts the user's balance by entry.Amount and appends the
	// transaction stamped with the new balance, as one atomic operation.
	// Returns ErrInsufficientFunds when the balance would go negative,
	// ErrUserNotFound for an unknown user, and ErrConcurrencyConflict when
	// storage contention prevented the write.
	Apply(ctx context.Context, entry Entry) (*Transaction, error)

	// History returns a page of transactions, newest first, and the total count.
	History(ctx context.Context, userID string, offset, limit int) ([]*Transaction, int, error)

	// Stats aggregates the user's whole ledger.
	Stats(ctx context.Context, userID string) (*Stats, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// PAGINATION
// ══════════════════════════════════════════════════════════════════════════════

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Pagination describes one page of history.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Limit int `json:"limit"`
}

// NormalizePage applies defaults and bounds and returns the row offset.
func NormalizePage(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit, (page - 1) * limit
}

// NewPagination builds pagination for a normalised page and limit.
func NewPagination(total, page, limit int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Total: total, Page: page, Pages: pages, Limit: limit}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

// TypeTotal aggregates one transaction type.
type TypeTotal struct {
	Count  int   `json:"count"`
	Amount int64 `json:"amount"`
}

// Stats summarises a user's ledger.
type Stats struct {
	TotalEarned      int64              `json:"total_earned"`
	TotalSpent       int64              `json:"total_spent"`
	TransactionCount int                `json:"transaction_count"`
	ByType           map[Type]TypeTotal `json:"by_type"`
}

// NewStats returns empty stats.
func NewStats() *Stats {
	return &Stats{ByType: make(map[Type]TypeTotal)}
}

// Add folds one transaction into the stats.
func (s *Stats) Add(t *Transaction) {
	s.TransactionCount++
	if t.Amount > 0 {
		s.TotalEarned += t.Amount
	} else {
		s.TotalSpent += -t.Amount
	}
	tt := s.ByType[t.Type]
	tt.Count++
	tt.Amount += t.Amount
	s.ByType[t.Type] = tt
}

// ComputeStats aggregates a set of transactions.
func ComputeStats(txs []*Transaction) *Stats {
	s := NewStats()
	for _, t := range txs {
		s.Add(t)
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// ORDERING & AUDIT
// ══════════════════════════════════════════════════════════════════════════════

// SortNewestFirst orders transactions by (CreatedAt, Seq) descending.
func SortNewestFirst(txs []*Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.After(txs[j].CreatedAt)
		}
		return txs[i].Seq > txs[j].Seq
	})
}

// Audit checks a user's full ledger, oldest first, against the cached balance.
// Each Balance must equal the previous Balance plus its Amount, starting at 0,
// and the last Balance must equal balance.
func Audit(balance int64, txs []*Transaction) error {
	var running int64
	for i, t := range txs {
		running += t.Amount
		if t.Balance != running {
			return fmt.Errorf("transaction %d (seq %d): balance %d, expected %d", i, t.Seq, t.Balance, running)
		}
		if i > 0 && t.Seq <= txs[i-1].Seq {
			return fmt.Errorf("transaction %d: seq %d not after %d", i, t.Seq, txs[i-1].Seq)
		}
	}
	if running != balance {
		return fmt.Errorf("cached balance %d, ledger sum %d", balance, running)
	}
	return nil
}
