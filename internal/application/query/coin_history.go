// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"

	"github.com/qaidahub/rewards-core/internal/domain/coins"
	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// COIN LEDGER QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// GetCoinHistoryQuery asks for one page of a user's ledger.
type GetCoinHistoryQuery struct {
	UserID string
	Page   int // 1-based, defaults to 1
	Limit  int // defaults to 20, at most 100
}

// CoinHistoryResult is one page of transactions, newest first.
type CoinHistoryResult struct {
	Transactions []*coins.Transaction
	Pagination   coins.Pagination
}

// LedgerAuditor reads a whole ledger with its cached balance from one snapshot.
type LedgerAuditor interface {
	All(ctx context.Context, userID string) ([]*coins.Transaction, int64, error)
}

// AuditResult reports whether a ledger is consistent with the cached balance.
type AuditResult struct {
	UserID           string `json:"user_id"`
	Balance          int64  `json:"balance"`
	LedgerSum        int64  `json:"ledger_sum"`
	TransactionCount int    `json:"transaction_count"`
	Consistent       bool   `json:"consistent"`
	Problem          string `json:"problem,omitempty"`
}

// CoinHistoryHandler serves ledger reads.
type CoinHistoryHandler struct {
	users   user.Repository
	ledger  coins.Ledger
	auditor LedgerAuditor
}

// NewCoinHistoryHandler creates a new CoinHistoryHandler. A nil auditor
// disables Audit.
func NewCoinHistoryHandler(users user.Repository, ledger coins.Ledger, auditor LedgerAuditor) *CoinHistoryHandler {
	return &CoinHistoryHandler{users: users, ledger: ledger, auditor: auditor}
}

// GetCoinHistory returns a page of the user's transactions ordered by
// (CreatedAt, Seq) descending.
func (h *CoinHistoryHandler) GetCoinHistory(ctx context.Context, q GetCoinHistoryQuery) (*CoinHistoryResult, error) {
	if err := h.ensureUser(ctx, q.UserID); err != nil {
		return nil, err
	}

	page, limit, offset := coins.NormalizePage(q.Page, q.Limit)
	txs, total, err := h.ledger.History(ctx, q.UserID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("coin_history: %w", err)
	}

	return &CoinHistoryResult{
		Transactions: txs,
		Pagination:   coins.NewPagination(total, page, limit),
	}, nil
}

// GetCoinStats aggregates the user's whole ledger.
func (h *CoinHistoryHandler) GetCoinStats(ctx context.Context, userID string) (*coins.Stats, error) {
	if err := h.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	stats, err := h.ledger.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("coin_stats: %w", err)
	}
	return stats, nil
}

// Audit checks the running balance of every transaction and the cached
// balance against the ledger.
func (h *CoinHistoryHandler) Audit(ctx context.Context, userID string) (*AuditResult, error) {
	if h.auditor == nil {
		return nil, shared.NewDomainError("coins", "Audit", shared.ErrInvalidState, "ledger audit is not available")
	}

	txs, balance, err := h.auditor.All(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("coin_audit: %w", err)
	}

	var sum int64
	for _, t := range txs {
		sum += t.Amount
	}

	res := &AuditResult{
		UserID:           userID,
		Balance:          balance,
		LedgerSum:        sum,
		TransactionCount: len(txs),
		Consistent:       true,
	}
	if err := coins.Audit(balance, txs); err != nil {
		res.Consistent = false
		res.Problem = err.Error()
	}
	return res, nil
}

func (h *CoinHistoryHandler) ensureUser(ctx context.Context, userID string) error {
	if userID == "" {
		return shared.NewValidationError("coins", "History", "user id is required")
	}
	if _, err := h.users.GetByID(ctx, userID); err != nil {
		return err
	}
	return nil
}
