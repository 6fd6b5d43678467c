package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/qaidahub/rewards-core/internal/domain/coins"
	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// COIN LEDGER IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements coins.Ledger for PostgreSQL.
type LedgerRepository struct {
	conn    *Connection
	retrier *retry.Retrier
}

var _ coins.Ledger = (*LedgerRepository)(nil)

// NewLedgerRepository creates a ledger that retries contention up to maxAttempts times.
func NewLedgerRepository(conn *Connection, maxAttempts int) *LedgerRepository {
	return &LedgerRepository{
		conn:    conn,
		retrier: retry.Storage(maxAttempts, shared.IsRetryable),
	}
}

// Apply increments the cached balance with a guarded UPDATE ... RETURNING and
// inserts the transaction in the same database transaction. The row lock
// taken by the UPDATE serialises concurrent entries of one user.
func (r *LedgerRepository) Apply(ctx context.Context, entry coins.Entry) (*coins.Transaction, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	meta, err := marshalJSON(entry.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	return retry.DoValue(ctx, r.retrier, func(ctx context.Context) (*coins.Transaction, error) {
		var out *coins.Transaction

		err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			// clock_timestamp() is read once the row lock is held, so
			// created_at follows ledger_seq.
			var balance, seq int64
			var now time.Time
			err := tx.QueryRow(ctx, `
				UPDATE users
				SET coins = coins + $2, ledger_seq = ledger_seq + 1, updated_at = clock_timestamp()
				WHERE id = $1 AND coins + $2 >= 0
				RETURNING coins, ledger_seq, updated_at
			`, entry.UserID, entry.Amount).Scan(&balance, &seq, &now)
			if IsNoRows(err) {
				return r.rejection(ctx, tx, entry)
			}
			if err != nil {
				return mapError("update balance", err)
			}

			t := &coins.Transaction{
				ID:          uuid.NewString(),
				UserID:      entry.UserID,
				Seq:         seq,
				Type:        entry.Type,
				Amount:      entry.Amount,
				Balance:     balance,
				Description: entry.Description,
				Reference:   entry.Reference,
				Metadata:    entry.Metadata,
				CreatedAt:   now.UTC(),
			}

			var refModel, refID *string
			if t.Reference != nil {
				m, id := string(t.Reference.Model), t.Reference.ID
				refModel, refID = &m, &id
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO coin_transactions (
					id, user_id, seq, type, amount, balance, description,
					ref_model, ref_id, metadata, created_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			`,
				t.ID, t.UserID, t.Seq, string(t.Type), t.Amount, t.Balance, t.Description,
				refModel, refID, meta, t.CreatedAt,
			)
			if err != nil {
				return mapError("insert transaction", err)
			}

			out = t
			return nil
		})
		return out, err
	})
}

// rejection explains why the guarded UPDATE matched no row.
func (r *LedgerRepository) rejection(ctx context.Context, tx pgx.Tx, entry coins.Entry) error {
	var balance int64
	err := tx.QueryRow(ctx, `SELECT coins FROM users WHERE id = $1`, entry.UserID).Scan(&balance)
	if IsNoRows(err) {
		return shared.ErrUserNotFound
	}
	if err != nil {
		return mapError("read balance", err)
	}
	return coins.NewInsufficientFundsError(balance, -entry.Amount)
}

// History returns a page of transactions ordered by (created_at, seq) desc.
func (r *LedgerRepository) History(ctx context.Context, userID string, offset, limit int) ([]*coins.Transaction, int, error) {
	var total int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM coin_transactions WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	rows, err := r.conn.Query(ctx, `
		SELECT id, user_id, seq, type, amount, balance, description,
		       ref_model, ref_id, metadata, created_at
		FROM coin_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txs := []*coins.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	return txs, total, nil
}

// Stats aggregates the ledger in the database.
func (r *LedgerRepository) Stats(ctx context.Context, userID string) (*coins.Stats, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT type,
		       COUNT(*),
		       COALESCE(SUM(amount), 0)::BIGINT,
		       COALESCE(SUM(amount) FILTER (WHERE amount > 0), 0)::BIGINT,
		       COALESCE(-SUM(amount) FILTER (WHERE amount < 0), 0)::BIGINT
		FROM coin_transactions
		WHERE user_id = $1
		GROUP BY type
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger stats: %w", err)
	}
	defer rows.Close()

	stats := coins.NewStats()
	for rows.Next() {
		var (
			txType                string
			count                 int
			amount, earned, spent int64
		)
		if err := rows.Scan(&txType, &count, &amount, &earned, &spent); err != nil {
			return nil, fmt.Errorf("failed to scan ledger stats: %w", err)
		}
		stats.ByType[coins.Type(txType)] = coins.TypeTotal{Count: count, Amount: amount}
		stats.TransactionCount += count
		stats.TotalEarned += earned
		stats.TotalSpent += spent
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return stats, nil
}

// All returns the whole ledger oldest first together with the cached balance,
// read from one snapshot. It is used for audits.
func (r *LedgerRepository) All(ctx context.Context, userID string) ([]*coins.Transaction, int64, error) {
	var (
		txs     []*coins.Transaction
		balance int64
	)

	err := r.conn.WithTx(ctx, SnapshotTxOptions(), func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT coins FROM users WHERE id = $1`, userID).Scan(&balance); err != nil {
			if IsNoRows(err) {
				return shared.ErrUserNotFound
			}
			return fmt.Errorf("failed to read balance: %w", err)
		}

		rows, err := tx.Query(ctx, `
			SELECT id, user_id, seq, type, amount, balance, description,
			       ref_model, ref_id, metadata, created_at
			FROM coin_transactions
			WHERE user_id = $1
			ORDER BY seq
		`, userID)
		if err != nil {
			return fmt.Errorf("failed to query transactions: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTransaction(rows)
			if err != nil {
				return err
			}
			txs = append(txs, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return txs, balance, nil
}

func scanTransaction(row scanner) (*coins.Transaction, error) {
	var (
		t               coins.Transaction
		txType          string
		refModel, refID *string
		meta            []byte
	)

	err := row.Scan(
		&t.ID, &t.UserID, &t.Seq, &txType, &t.Amount, &t.Balance, &t.Description,
		&refModel, &refID, &meta, &t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	t.Type = coins.Type(txType)
	if refModel != nil && refID != nil {
		t.Reference = &coins.Reference{Model: coins.RefModel(*refModel), ID: *refID}
	}
	if len(meta) > 0 {
		var m coins.Metadata
		if err := json.Unmarshal(meta, &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		t.Metadata = &m
	}
	return &t, nil
}

// marshalJSON returns nil for a nil value so the column stays NULL.
func marshalJSON[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
