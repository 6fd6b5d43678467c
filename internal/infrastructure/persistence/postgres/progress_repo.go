package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/qaidahub/rewards-core/internal/domain/progress"
	"github.com/qaidahub/rewards-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository for PostgreSQL.
type ProgressRepository struct {
	conn *Connection
}

var _ progress.Repository = (*ProgressRepository)(nil)

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

const progressColumns = `
	id, user_id, module, level_id, lesson_id, status, completion_percentage,
	time_spent, attempts, accuracy, coins_earned, started_at, completed_at,
	last_accessed_at, rewarded_at`

// Track upserts a not_started row for key, locks it and applies fn.
func (r *ProgressRepository) Track(ctx context.Context, key progress.Key, fn progress.MutateFunc) (*progress.Progress, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var out *progress.Progress
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO progress (id, user_id, module, level_id, lesson_id, status, last_accessed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (user_id, module, level_id, lesson_id) DO NOTHING
		`, uuid.NewString(), key.UserID, key.Module, key.LevelID, key.LessonID,
			string(progress.StatusNotStarted), time.Now().UTC())
		if err != nil {
			if IsForeignKeyViolation(err) {
				return shared.ErrUserNotFound
			}
			return mapError("upsert progress", err)
		}

		p, err := scanProgress(tx.QueryRow(ctx, `
			SELECT `+progressColumns+`
			FROM progress
			WHERE user_id = $1 AND module = $2 AND level_id = $3 AND lesson_id = $4
			FOR UPDATE
		`, key.UserID, key.Module, key.LevelID, key.LessonID))
		if err != nil {
			return err
		}

		if err := fn(p); err != nil {
			return err
		}
		if err := saveProgress(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Mutate locks an existing row of the user and applies fn.
func (r *ProgressRepository) Mutate(ctx context.Context, userID, id string, fn progress.MutateFunc) (*progress.Progress, error) {
	var out *progress.Progress
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		p, err := scanProgress(tx.QueryRow(ctx,
			`SELECT `+progressColumns+` FROM progress WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID))
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		if err := saveProgress(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID returns one record of the user.
func (r *ProgressRepository) GetByID(ctx context.Context, userID, id string) (*progress.Progress, error) {
	return scanProgress(r.conn.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM progress WHERE id = $1 AND user_id = $2`, id, userID))
}

// ListByUser returns every record of the user.
func (r *ProgressRepository) ListByUser(ctx context.Context, userID string) ([]*progress.Progress, error) {
	return r.list(ctx, `
		SELECT `+progressColumns+`
		FROM progress
		WHERE user_id = $1
		ORDER BY last_accessed_at, id
	`, userID)
}

// ListCompletedBetween returns records completed in [from, to).
func (r *ProgressRepository) ListCompletedBetween(ctx context.Context, userID string, from, to time.Time) ([]*progress.Progress, error) {
	return r.list(ctx, `
		SELECT `+progressColumns+`
		FROM progress
		WHERE user_id = $1 AND completed_at >= $2 AND completed_at < $3
		ORDER BY completed_at, id
	`, userID, from, to)
}

func (r *ProgressRepository) list(ctx context.Context, query string, args ...any) ([]*progress.Progress, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress: %w", err)
	}
	defer rows.Close()

	out := []*progress.Progress{}
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

func saveProgress(ctx context.Context, tx pgx.Tx, p *progress.Progress) error {
	_, err := tx.Exec(ctx, `
		UPDATE progress SET
			status = $1,
			completion_percentage = $2,
			time_spent = $3,
			attempts = $4,
			accuracy = $5,
			coins_earned = $6,
			started_at = $7,
			completed_at = $8,
			last_accessed_at = $9,
			rewarded_at = $10
		WHERE id = $11
	`,
		string(p.Status),
		p.CompletionPercentage,
		p.TimeSpent,
		p.Attempts,
		p.Accuracy,
		p.CoinsEarned,
		p.StartedAt,
		p.CompletedAt,
		p.LastAccessedAt,
		p.RewardedAt,
		p.ID,
	)
	return mapError("update progress", err)
}

func scanProgress(row scanner) (*progress.Progress, error) {
	var (
		p      progress.Progress
		status string
	)

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Module,
		&p.LevelID,
		&p.LessonID,
		&status,
		&p.CompletionPercentage,
		&p.TimeSpent,
		&p.Attempts,
		&p.Accuracy,
		&p.CoinsEarned,
		&p.StartedAt,
		&p.CompletedAt,
		&p.LastAccessedAt,
		&p.RewardedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan progress: %w", err)
	}

	p.Status = progress.Status(status)
	return &p, nil
}
