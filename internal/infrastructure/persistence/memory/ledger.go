package memory

import (
	"context"

	"github.com/qaidahub/rewards-core/internal/domain/coins"
)

// LedgerRepository implements coins.Ledger.
type LedgerRepository struct {
	s *Store
}

var _ coins.Ledger = (*LedgerRepository)(nil)

// Apply updates the cached balance and appends the transaction under the
// user's lock, so both writes are observed together.
func (r *LedgerRepository) Apply(_ context.Context, entry coins.Entry) (*coins.Transaction, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	var out *coins.Transaction
	err := r.s.withShard(entry.UserID, func(sh *shard) error {
		var seq int64
		if n := len(sh.txs); n > 0 {
			seq = sh.txs[n-1].Seq
		}

		tx, err := entry.Next(r.s.newID(), sh.user.Coins, seq, r.s.now())
		if err != nil {
			return err
		}

		sh.txs = append(sh.txs, tx)
		sh.user.Coins = tx.Balance
		sh.user.UpdatedAt = tx.CreatedAt

		c := *tx
		out = &c
		return nil
	})
	return out, err
}

// History returns a page of transactions, newest first.
func (r *LedgerRepository) History(_ context.Context, userID string, offset, limit int) ([]*coins.Transaction, int, error) {
	var (
		page  []*coins.Transaction
		total int
	)
	err := r.s.withShard(userID, func(sh *shard) error {
		all := make([]*coins.Transaction, len(sh.txs))
		for i, tx := range sh.txs {
			c := *tx
			all[i] = &c
		}
		coins.SortNewestFirst(all)

		total = len(all)
		if offset >= total {
			page = []*coins.Transaction{}
			return nil
		}
		end := min(offset+limit, total)
		page = all[offset:end]
		return nil
	})
	return page, total, err
}

// Stats aggregates the user's ledger.
func (r *LedgerRepository) Stats(_ context.Context, userID string) (*coins.Stats, error) {
	var out *coins.Stats
	err := r.s.withShard(userID, func(sh *shard) error {
		out = coins.ComputeStats(sh.txs)
		return nil
	})
	return out, err
}

// All returns the user's ledger oldest first, with the cached balance.
// It is used for audits.
func (r *LedgerRepository) All(_ context.Context, userID string) ([]*coins.Transaction, int64, error) {
	var (
		out     []*coins.Transaction
		balance int64
	)
	err := r.s.withShard(userID, func(sh *shard) error {
		out = make([]*coins.Transaction, len(sh.txs))
		for i, tx := range sh.txs {
			c := *tx
			out[i] = &c
		}
		balance = sh.user.Coins
		return nil
	})
	return out, balance, err
}
