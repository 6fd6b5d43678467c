package memory

import (
	"context"

	"github.com/qaidahub/rewards-core/internal/domain/achievement"
)

// AchievementRepository implements achievement.Repository.
type AchievementRepository struct {
	s *Store
}

var _ achievement.Repository = (*AchievementRepository)(nil)

// Insert stores the achievement unless the user already holds the badge.
func (r *AchievementRepository) Insert(_ context.Context, a *achievement.Achievement) error {
	return r.s.withShard(a.UserID, func(sh *shard) error {
		if _, ok := sh.badges[a.BadgeType]; ok {
			return achievement.NewDuplicateError(a.UserID, a.BadgeType)
		}
		c := *a
		sh.badges[a.BadgeType] = &c
		sh.achievements = append(sh.achievements, &c)
		return nil
	})
}

// ListByUser returns the user's achievements, oldest first.
func (r *AchievementRepository) ListByUser(_ context.Context, userID string) ([]*achievement.Achievement, error) {
	var out []*achievement.Achievement
	err := r.s.withShard(userID, func(sh *shard) error {
		out = make([]*achievement.Achievement, len(sh.achievements))
		for i, a := range sh.achievements {
			c := *a
			out[i] = &c
		}
		return nil
	})
	return out, err
}
