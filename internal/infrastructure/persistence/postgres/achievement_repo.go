package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/qaidahub/rewards-core/internal/domain/achievement"
	"github.com/qaidahub/rewards-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements achievement.Repository for PostgreSQL.
type AchievementRepository struct {
	conn *Connection
}

var _ achievement.Repository = (*AchievementRepository)(nil)

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

// Insert stores a new achievement. The (user_id, badge_type) unique index
// turns a second award of the same badge into ErrDuplicateAchievement.
func (r *AchievementRepository) Insert(ctx context.Context, a *achievement.Achievement) error {
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO achievements (
			id, user_id, badge_type, title, description, coins_rewarded, metadata, earned_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		a.ID,
		a.UserID,
		string(a.BadgeType),
		a.Title,
		a.Description,
		a.CoinsRewarded,
		meta,
		a.EarnedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return achievement.NewDuplicateError(a.UserID, a.BadgeType)
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrUserNotFound
		}
		return mapError("insert achievement", err)
	}
	return nil
}

// ListByUser returns the user's achievements, oldest first.
func (r *AchievementRepository) ListByUser(ctx context.Context, userID string) ([]*achievement.Achievement, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, user_id, badge_type, title, description, coins_rewarded, metadata, earned_at
		FROM achievements
		WHERE user_id = $1
		ORDER BY earned_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query achievements: %w", err)
	}
	defer rows.Close()

	out := []*achievement.Achievement{}
	for rows.Next() {
		var (
			a     achievement.Achievement
			badge string
			meta  []byte
		)
		if err := rows.Scan(&a.ID, &a.UserID, &badge, &a.Title, &a.Description, &a.CoinsRewarded, &meta, &a.EarnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		a.BadgeType = achievement.BadgeType(badge)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &a.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}
