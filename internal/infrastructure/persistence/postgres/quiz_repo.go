package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/qaidahub/rewards-core/internal/domain/progress"
	"github.com/qaidahub/rewards-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUIZ RESULT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// QuizRepository implements progress.QuizRepository for PostgreSQL.
type QuizRepository struct {
	conn *Connection
}

var _ progress.QuizRepository = (*QuizRepository)(nil)

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(conn *Connection) *QuizRepository {
	return &QuizRepository{conn: conn}
}

// Append locks the user row so that racing submissions of one user are
// numbered one after another, then inserts attempt MAX(attempts)+1.
func (r *QuizRepository) Append(ctx context.Context, userID, quizID string, build progress.BuildQuizFunc) (*progress.QuizResult, error) {
	var out *progress.QuizResult

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked)
		if IsNoRows(err) {
			return shared.ErrUserNotFound
		}
		if err != nil {
			return mapError("lock user", err)
		}

		var last int
		err = tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(attempts), 0) FROM quiz_results WHERE user_id = $1 AND quiz_id = $2
		`, userID, quizID).Scan(&last)
		if err != nil {
			return mapError("read attempts", err)
		}

		res, err := build(last + 1)
		if err != nil {
			return err
		}
		res.ID = uuid.NewString()
		res.Attempts = last + 1

		_, err = tx.Exec(ctx, `
			INSERT INTO quiz_results (
				id, user_id, quiz_id, module, level_id, score, total_questions,
				percentage, passed, attempts, coins_earned, time_spent, completed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`,
			res.ID, userID, quizID, res.Module, res.LevelID, res.Score, res.TotalQuestions,
			res.Percentage, res.Passed, res.Attempts, res.CoinsEarned, res.TimeSpent, res.CompletedAt,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.WrapError("postgres", "insert quiz result", shared.ErrConcurrencyConflict, "attempt number taken", err)
			}
			return mapError("insert quiz result", err)
		}

		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByUser returns the user's attempts, newest first.
func (r *QuizRepository) ListByUser(ctx context.Context, userID string) ([]*progress.QuizResult, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, user_id, quiz_id, module, level_id, score, total_questions,
		       percentage, passed, attempts, coins_earned, time_spent, completed_at
		FROM quiz_results
		WHERE user_id = $1
		ORDER BY completed_at DESC, attempts DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query quiz results: %w", err)
	}
	defer rows.Close()

	out := []*progress.QuizResult{}
	for rows.Next() {
		var q progress.QuizResult
		err := rows.Scan(
			&q.ID, &q.UserID, &q.QuizID, &q.Module, &q.LevelID, &q.Score, &q.TotalQuestions,
			&q.Percentage, &q.Passed, &q.Attempts, &q.CoinsEarned, &q.TimeSpent, &q.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quiz result: %w", err)
		}
		out = append(out, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}
