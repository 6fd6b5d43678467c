package command

import (
	"context"
	"fmt"

	"github.com/qaidahub/rewards-core/internal/domain/achievement"
	"github.com/qaidahub/rewards-core/internal/domain/coins"
	"github.com/qaidahub/rewards-core/internal/domain/progress"
	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/internal/domain/user"
	"github.com/qaidahub/rewards-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LESSON COMMANDS
// A lesson moves not_started -> in_progress -> completed and may be reset back.
// Only the first completion ever pays coins.
// ══════════════════════════════════════════════════════════════════════════════

// RecordLessonCompletionCommand marks a lesson completed.
type RecordLessonCompletionCommand struct {
	UserID    string  `validate:"required,notblank"`
	Module    string  `validate:"required,notblank"`
	LevelID   string  `validate:"required,notblank"`
	LessonID  string  `validate:"required,notblank"`
	Accuracy  float64 `validate:"gte=0,lte=100"`
	TimeSpent int     `validate:"gte=0"`
}

// RecordLessonCompletionResult contains the result of a lesson completion.
type RecordLessonCompletionResult struct {
	Progress *progress.Progress

	// FirstCompletion is true when this call earned the lesson reward.
	FirstCompletion bool

	CoinsEarned  int64
	Achievements []*achievement.Achievement

	// RewardPending is set when a credit or badge check failed after the
	// progress record was saved.
	RewardPending bool
}

// TrackLessonProgressCommand records a visit that does not complete the lesson.
type TrackLessonProgressCommand struct {
	UserID               string  `validate:"required,notblank"`
	Module               string  `validate:"required,notblank"`
	LevelID              string  `validate:"required,notblank"`
	LessonID             string  `validate:"required,notblank"`
	CompletionPercentage float64 `validate:"gte=0,lte=100"`
	TimeSpent            int     `validate:"gte=0"`
}

// ResetLessonProgressCommand returns a lesson to not_started.
type ResetLessonProgressCommand struct {
	UserID     string `validate:"required,notblank"`
	ProgressID string `validate:"required,notblank"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// LessonHandler handles the lesson commands.
type LessonHandler struct {
	users    user.Repository
	progress progress.Repository
	catalog  progress.Catalog
	rewarder *Rewarder
	events   shared.EventPublisher
	config   Config
	log      *logger.Logger
}

// NewLessonHandler creates a new LessonHandler. A nil catalog disables
// level and module badges.
func NewLessonHandler(
	users user.Repository,
	progressRepo progress.Repository,
	catalog progress.Catalog,
	rewarder *Rewarder,
	events shared.EventPublisher,
	log *logger.Logger,
	config Config,
) *LessonHandler {
	return &LessonHandler{
		users:    users,
		progress: progressRepo,
		catalog:  catalog,
		rewarder: rewarder,
		events:   orNopPublisher(events),
		config:   config.withDefaults(),
		log:      orNop(log).With(logger.Component("lessons")),
	}
}

// RecordLessonCompletion completes a lesson. The first completion credits the
// lesson reward, bumps the user's counters and runs the lesson, level, module
// and coins triggers. Repeats only update attempts, time and accuracy.
func (h *LessonHandler) RecordLessonCompletion(ctx context.Context, cmd RecordLessonCompletionCommand) (*RecordLessonCompletionResult, error) {
	if err := validate("RecordLessonCompletion", cmd); err != nil {
		return nil, err
	}

	now := h.config.Now()
	key := progress.Key{UserID: cmd.UserID, Module: cmd.Module, LevelID: cmd.LevelID, LessonID: cmd.LessonID}

	var (
		first       bool
		transition  bool
		coinsEarned int64
	)
	p, err := h.progress.Track(ctx, key, func(p *progress.Progress) error {
		transition = !p.IsCompleted()
		first = p.Complete(cmd.Accuracy, cmd.TimeSpent, now)
		if first {
			coinsEarned = h.config.Rewards.Lesson(p.Accuracy)
			p.CoinsEarned += coinsEarned
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record_lesson: failed to save progress: %w", err)
	}

	result := &RecordLessonCompletionResult{
		Progress:        p,
		FirstCompletion: first,
		Achievements:    []*achievement.Achievement{},
	}

	log := h.log.With(logger.UserID(cmd.UserID), logger.Module(p.Module), logger.LessonID(p.LessonID))

	if !first {
		// A re-completion after a reset can still finish a level.
		if transition {
			result.Achievements, result.RewardPending = h.rewarder.Check(ctx, cmd.UserID, h.completionTriggers(ctx, p)...)
		}
		publish(log, h.events, shared.ProgressTrackedEvent{
			BaseEvent:  shared.NewBaseEvent(shared.EventProgressTracked, cmd.UserID, now),
			ProgressID: p.ID,
			Status:     string(p.Status),
		})
		return result, nil
	}

	u, err := h.users.Mutate(ctx, cmd.UserID, func(u *user.User) error {
		u.RecordLessonCompleted(p.Accuracy, now)
		return nil
	})
	if err != nil {
		log.Error("failed to update lesson counters", logger.Err(err), logger.Reconcile())
		result.RewardPending = true
	}

	credit, pending := h.rewarder.Credit(ctx, AddCoinsCommand{
		UserID:      cmd.UserID,
		Type:        coins.TypeLessonComplete,
		Amount:      coinsEarned,
		Description: fmt.Sprintf("Completed lesson %s", p.LessonID),
		Reference:   &coins.Reference{Model: coins.RefProgress, ID: p.ID},
		Metadata:    coins.LessonMetadata(p.LessonID, p.Accuracy),
	})
	result.RewardPending = result.RewardPending || pending
	if credit != nil {
		result.CoinsEarned = coinsEarned
	}

	var triggers []achievement.Trigger
	if u != nil {
		triggers = append(triggers, achievement.LessonTrigger(u.TotalLessonsCompleted))
	}
	triggers = append(triggers, h.completionTriggers(ctx, p)...)
	if credit != nil {
		triggers = append(triggers, achievement.CoinsTrigger(credit.NewBalance))
	}

	earned, pending := h.rewarder.Check(ctx, cmd.UserID, triggers...)
	result.Achievements = earned
	result.RewardPending = result.RewardPending || pending

	log.Info("lesson completed",
		logger.Float64("accuracy", p.Accuracy),
		logger.Coins(result.CoinsEarned),
		logger.Int("achievements", len(earned)),
	)

	publish(log, h.events, shared.LessonCompletedEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventLessonCompleted, cmd.UserID, now),
		ProgressID:  p.ID,
		Module:      p.Module,
		LevelID:     p.LevelID,
		LessonID:    p.LessonID,
		Accuracy:    p.Accuracy,
		CoinsEarned: result.CoinsEarned,
	})

	return result, nil
}

// completionTriggers returns level_complete and module_complete triggers when
// the user's completed lessons reach the catalog counts.
func (h *LessonHandler) completionTriggers(ctx context.Context, p *progress.Progress) []achievement.Trigger {
	if h.catalog == nil {
		return nil
	}

	levelTotal := h.catalog.LessonsInLevel(p.Module, p.LevelID)
	moduleTotal := h.catalog.LessonsInModule(p.Module)
	if levelTotal <= 0 && moduleTotal <= 0 {
		return nil
	}

	rows, err := h.progress.ListByUser(ctx, p.UserID)
	if err != nil {
		h.log.Warn("failed to count completed lessons",
			logger.UserID(p.UserID),
			logger.Module(p.Module),
			logger.Err(err),
		)
		return nil
	}

	var out []achievement.Trigger
	if levelTotal > 0 && progress.CountCompleted(rows, p.Module, p.LevelID) >= levelTotal {
		out = append(out, achievement.LevelTrigger(p.Module, p.LevelID))
	}
	if moduleTotal > 0 && progress.CountCompleted(rows, p.Module, "") >= moduleTotal {
		out = append(out, achievement.ModuleTrigger(p.Module))
	}
	return out
}

// TrackLessonProgress records that a lesson was opened or partly done.
// It never pays coins.
func (h *LessonHandler) TrackLessonProgress(ctx context.Context, cmd TrackLessonProgressCommand) (*progress.Progress, error) {
	if err := validate("TrackLessonProgress", cmd); err != nil {
		return nil, err
	}

	now := h.config.Now()
	key := progress.Key{UserID: cmd.UserID, Module: cmd.Module, LevelID: cmd.LevelID, LessonID: cmd.LessonID}

	p, err := h.progress.Track(ctx, key, func(p *progress.Progress) error {
		p.Track(cmd.CompletionPercentage, cmd.TimeSpent, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("track_lesson: failed to save progress: %w", err)
	}

	publish(h.log, h.events, shared.ProgressTrackedEvent{
		BaseEvent:  shared.NewBaseEvent(shared.EventProgressTracked, cmd.UserID, now),
		ProgressID: p.ID,
		Status:     string(p.Status),
	})
	return p, nil
}

// ResetLessonProgress returns a lesson to not_started. Coins and badges
// already earned are kept, and the lesson will not pay again.
func (h *LessonHandler) ResetLessonProgress(ctx context.Context, cmd ResetLessonProgressCommand) (*progress.Progress, error) {
	if err := validate("ResetLessonProgress", cmd); err != nil {
		return nil, err
	}

	now := h.config.Now()
	p, err := h.progress.Mutate(ctx, cmd.UserID, cmd.ProgressID, func(p *progress.Progress) error {
		p.Reset(now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reset_lesson: %w", err)
	}

	publish(h.log, h.events, shared.ProgressResetEvent{
		BaseEvent:  shared.NewBaseEvent(shared.EventProgressReset, cmd.UserID, now),
		ProgressID: p.ID,
		LessonID:   p.LessonID,
	})
	return p, nil
}
