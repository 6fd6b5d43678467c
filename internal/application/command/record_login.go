package command

import (
	"context"
	"fmt"

	"github.com/qaidahub/rewards-core/config"
	"github.com/qaidahub/rewards-core/internal/domain/achievement"
	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/internal/domain/user"
	"github.com/qaidahub/rewards-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD LOGIN COMMAND
// Daily streak: consecutive local calendar days with at least one login.
// ══════════════════════════════════════════════════════════════════════════════

// RecordLoginCommand records that a user logged in.
type RecordLoginCommand struct {
	UserID string `validate:"required,notblank"`
}

// RecordLoginResult contains the result of a login.
type RecordLoginResult struct {
	User         *user.User
	Streak       user.StreakChange
	Achievements []*achievement.Achievement

	RewardPending bool
}

// LoginHandler handles RecordLoginCommand.
type LoginHandler struct {
	users    user.Repository
	rewarder *Rewarder
	events   shared.EventPublisher
	flags    *config.FeatureFlags
	config   Config
	log      *logger.Logger
}

// NewLoginHandler creates a new LoginHandler. Nil flags enable streaks.
func NewLoginHandler(
	users user.Repository,
	rewarder *Rewarder,
	events shared.EventPublisher,
	flags *config.FeatureFlags,
	log *logger.Logger,
	cfg Config,
) *LoginHandler {
	return &LoginHandler{
		users:    users,
		rewarder: rewarder,
		events:   orNopPublisher(events),
		flags:    flags,
		config:   cfg.withDefaults(),
		log:      orNop(log).With(logger.Component("streaks")),
	}
}

// RecordLogin updates the user's streak under the user's lock and runs the
// streak trigger. With streaks switched off it returns the user unchanged.
func (h *LoginHandler) RecordLogin(ctx context.Context, cmd RecordLoginCommand) (*RecordLoginResult, error) {
	if err := validate("RecordLogin", cmd); err != nil {
		return nil, err
	}

	result := &RecordLoginResult{Achievements: []*achievement.Achievement{}}

	if !h.flags.IsEnabled(config.FeatureGamificationStreaks, config.ForUser(cmd.UserID)) {
		u, err := h.users.GetByID(ctx, cmd.UserID)
		if err != nil {
			return nil, fmt.Errorf("record_login: %w", err)
		}
		result.User = u
		result.Streak = user.StreakChange{Previous: u.StreakDays, Current: u.StreakDays, Best: u.BestStreak, DayDiff: -1}
		return result, nil
	}

	now := h.config.Now()

	var change user.StreakChange
	u, err := h.users.Mutate(ctx, cmd.UserID, func(u *user.User) error {
		change = u.RecordLogin(now, h.config.Location)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record_login: %w", err)
	}
	result.User = u
	result.Streak = change

	if change.Changed() {
		h.log.Info("streak updated",
			logger.UserID(cmd.UserID),
			logger.Int("previous", change.Previous),
			logger.Int("current", change.Current),
			logger.Bool("broken", change.Broken),
		)
		publish(h.log, h.events, shared.StreakUpdatedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventStreakUpdated, cmd.UserID, now),
			Previous:  change.Previous,
			Current:   change.Current,
			Best:      change.Best,
			Broken:    change.Broken,
		})
	}

	// Same-day logins re-run the check so a failed award gets another chance.
	result.Achievements, result.RewardPending = h.rewarder.Check(ctx, cmd.UserID, achievement.StreakTrigger(change.Current))
	return result, nil
}
