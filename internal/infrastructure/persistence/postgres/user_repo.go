package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements user.Repository for PostgreSQL.
type UserRepository struct {
	conn *Connection
}

var _ user.Repository = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

// scanner is satisfied by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const userColumns = `
	id, display_name, coins, streak_days, best_streak, last_active_date,
	total_lessons_completed, total_quizzes_completed, accuracy,
	current_level, proficiency_level, created_at, updated_at`

// Create creates a new user with a zero balance.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	query := `
		INSERT INTO users (
			id, display_name, streak_days, best_streak, last_active_date,
			total_lessons_completed, total_quizzes_completed, accuracy,
			current_level, proficiency_level, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.conn.Exec(ctx, query,
		u.ID,
		u.DisplayName,
		u.StreakDays,
		u.BestStreak,
		u.LastActiveDate,
		u.TotalLessonsCompleted,
		u.TotalQuizzesCompleted,
		u.Accuracy,
		u.CurrentLevel,
		string(u.ProficiencyLevel),
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID returns a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// Mutate locks the user row, applies fn and writes back every column except
// coins, which only the ledger updates.
func (r *UserRepository) Mutate(ctx context.Context, id string, fn user.MutateFunc) (*user.User, error) {
	var out *user.User

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		if err := fn(u); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE users SET
				display_name = $1,
				streak_days = $2,
				best_streak = $3,
				last_active_date = $4,
				total_lessons_completed = $5,
				total_quizzes_completed = $6,
				accuracy = $7,
				current_level = $8,
				proficiency_level = $9,
				updated_at = $10
			WHERE id = $11
		`,
			u.DisplayName,
			u.StreakDays,
			u.BestStreak,
			u.LastActiveDate,
			u.TotalLessonsCompleted,
			u.TotalQuizzesCompleted,
			u.Accuracy,
			u.CurrentLevel,
			string(u.ProficiencyLevel),
			u.UpdatedAt,
			u.ID,
		)
		if err != nil {
			return mapError("update user", err)
		}

		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListIDs returns up to limit user IDs greater than afterID, ascending.
func (r *UserRepository) ListIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	rows, err := r.conn.Query(ctx, `SELECT id FROM users WHERE id > $1 ORDER BY id LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan user ids: %w", err)
	}
	return ids, nil
}

func scanUser(row scanner) (*user.User, error) {
	var (
		u           user.User
		proficiency string
	)

	err := row.Scan(
		&u.ID,
		&u.DisplayName,
		&u.Coins,
		&u.StreakDays,
		&u.BestStreak,
		&u.LastActiveDate,
		&u.TotalLessonsCompleted,
		&u.TotalQuizzesCompleted,
		&u.Accuracy,
		&u.CurrentLevel,
		&proficiency,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.ProficiencyLevel = user.ProficiencyLevel(proficiency)
	return &u, nil
}
