// Package command contains write operations (CQRS - Commands).
//
// Every learning command commits its primary record first. Coin credits and
// achievement checks run afterwards; a failure there is logged for
// reconciliation and reported through RewardPending instead of failing the
// command.
package command

import (
	"context"
	"time"

	"github.com/qaidahub/rewards-core/internal/domain/achievement"
	"github.com/qaidahub/rewards-core/internal/domain/progress"
	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/pkg/logger"
	"github.com/qaidahub/rewards-core/pkg/validator"
)

// ══════════════════════════════════════════════════════════════════════════════
// SHARED CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains the settings shared by the command handlers.
type Config struct {
	// Rewards is the coin table for lessons, quizzes and mistakes.
	Rewards progress.Rewards

	// Location decides calendar days for streaks.
	Location *time.Location

	// MaxRetries bounds retries of quiz attempt numbering under contention.
	MaxRetries int

	// Now is the time source. Defaults to time.Now in UTC.
	Now func() time.Time
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Rewards:    progress.DefaultRewards(),
		Location:   time.UTC,
		MaxRetries: 3,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Rewards == (progress.Rewards{}) {
		c.Rewards = d.Rewards
	}
	if c.Location == nil {
		c.Location = d.Location
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = d.MaxRetries
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT ENGINE CONTRACT
// ══════════════════════════════════════════════════════════════════════════════

// AchievementOutcome is the result of one achievement check.
type AchievementOutcome struct {
	// Achievements are the badges newly awarded by this check.
	Achievements []*achievement.Achievement

	// RewardPending is set when a badge was stored but its coin bonus
	// could not be credited.
	RewardPending bool
}

// AchievementChecker runs the achievement engine for one trigger.
// It is implemented by saga.AchievementFlowSaga.
type AchievementChecker interface {
	CheckAchievements(ctx context.Context, userID string, tr achievement.Trigger) (*AchievementOutcome, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// validate checks the validate tags of a command.
func validate(op string, cmd any) error {
	if err := validator.ValidateStruct(cmd); err != nil {
		return shared.WrapError("command", op, shared.ErrValidation, "invalid command", err)
	}
	return nil
}

// publish sends events after a committed write. Delivery failures are logged,
// not returned.
func publish(log *logger.Logger, events shared.EventPublisher, evs ...shared.Event) {
	if events == nil || len(evs) == 0 {
		return
	}
	if err := events.Publish(evs...); err != nil {
		log.Warn("failed to publish events", logger.Int("count", len(evs)), logger.Err(err))
	}
}

// orNop returns l, or a no-op logger when l is nil.
func orNop(l *logger.Logger) *logger.Logger {
	if l == nil {
		return logger.Nop()
	}
	return l
}

// orNopPublisher returns p, or a publisher that drops events when p is nil.
func orNopPublisher(p shared.EventPublisher) shared.EventPublisher {
	if p == nil {
		return shared.NopPublisher{}
	}
	return p
}
