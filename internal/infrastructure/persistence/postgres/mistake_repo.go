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
// MISTAKE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// MistakeRepository implements progress.MistakeRepository for PostgreSQL.
type MistakeRepository struct {
	conn *Connection
}

var _ progress.MistakeRepository = (*MistakeRepository)(nil)

// NewMistakeRepository creates a new MistakeRepository.
func NewMistakeRepository(conn *Connection) *MistakeRepository {
	return &MistakeRepository{conn: conn}
}

const mistakeColumns = `id, user_id, module, lesson_id, question_id, created_at, resolved_at, coins_earned`

// Create stores a new mistake.
func (r *MistakeRepository) Create(ctx context.Context, m *progress.Mistake) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	_, err := r.conn.Exec(ctx, `
		INSERT INTO mistakes (`+mistakeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.UserID, m.Module, m.LessonID, m.QuestionID, m.CreatedAt, m.ResolvedAt, m.CoinsEarned)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("progress", "RecordMistake", shared.ErrAlreadyExists, "mistake already exists")
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrUserNotFound
		}
		return mapError("insert mistake", err)
	}
	return nil
}

// Mutate locks a mistake of the user and applies fn.
func (r *MistakeRepository) Mutate(ctx context.Context, userID, id string, fn progress.MistakeMutateFunc) (*progress.Mistake, error) {
	var out *progress.Mistake

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		m, err := scanMistake(tx.QueryRow(ctx,
			`SELECT `+mistakeColumns+` FROM mistakes WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID))
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE mistakes SET resolved_at = $1, coins_earned = $2 WHERE id = $3
		`, m.ResolvedAt, m.CoinsEarned, m.ID)
		if err != nil {
			return mapError("update mistake", err)
		}

		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListUnresolved returns the user's open mistakes, oldest first.
func (r *MistakeRepository) ListUnresolved(ctx context.Context, userID string) ([]*progress.Mistake, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+mistakeColumns+`
		FROM mistakes
		WHERE user_id = $1 AND resolved_at IS NULL
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mistakes: %w", err)
	}
	defer rows.Close()

	out := []*progress.Mistake{}
	for rows.Next() {
		m, err := scanMistake(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

func scanMistake(row scanner) (*progress.Mistake, error) {
	var m progress.Mistake
	err := row.Scan(&m.ID, &m.UserID, &m.Module, &m.LessonID, &m.QuestionID, &m.CreatedAt, &m.ResolvedAt, &m.CoinsEarned)
	if IsNoRows(err) {
		return nil, shared.ErrMistakeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan mistake: %w", err)
	}
	return &m, nil
}
