package command

import (
	"context"
	"fmt"

	"github.com/qaidahub/rewards-core/internal/domain/achievement"
	"github.com/qaidahub/rewards-core/internal/domain/coins"
	"github.com/qaidahub/rewards-core/internal/domain/progress"
	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MISTAKE REVIEW COMMANDS
// Wrong answers are queued for review. Resolving one pays once.
// ══════════════════════════════════════════════════════════════════════════════

// RecordMistakeCommand queues a wrong answer for review.
type RecordMistakeCommand struct {
	UserID     string `validate:"required,notblank"`
	Module     string
	LessonID   string
	QuestionID string `validate:"required,notblank"`
}

// ResolveMistakeCommand marks a mistake as reviewed.
type ResolveMistakeCommand struct {
	UserID    string `validate:"required,notblank"`
	MistakeID string `validate:"required,notblank"`
}

// ResolveMistakeResult contains the result of resolving a mistake.
type ResolveMistakeResult struct {
	Mistake *progress.Mistake

	// CoinsEarned is zero when the mistake was already resolved.
	CoinsEarned  int64
	Achievements []*achievement.Achievement

	RewardPending bool
}

// MistakeHandler handles the mistake commands.
type MistakeHandler struct {
	mistakes progress.MistakeRepository
	rewarder *Rewarder
	events   shared.EventPublisher
	config   Config
	log      *logger.Logger
}

// NewMistakeHandler creates a new MistakeHandler.
func NewMistakeHandler(
	mistakes progress.MistakeRepository,
	rewarder *Rewarder,
	events shared.EventPublisher,
	log *logger.Logger,
	config Config,
) *MistakeHandler {
	return &MistakeHandler{
		mistakes: mistakes,
		rewarder: rewarder,
		events:   orNopPublisher(events),
		config:   config.withDefaults(),
		log:      orNop(log).With(logger.Component("mistakes")),
	}
}

// RecordMistake stores a new unresolved mistake.
func (h *MistakeHandler) RecordMistake(ctx context.Context, cmd RecordMistakeCommand) (*progress.Mistake, error) {
	if err := validate("RecordMistake", cmd); err != nil {
		return nil, err
	}

	now := h.config.Now()
	m, err := progress.NewMistake("", cmd.UserID, cmd.Module, cmd.LessonID, cmd.QuestionID, now)
	if err != nil {
		return nil, err
	}
	if err := h.mistakes.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("record_mistake: %w", err)
	}

	publish(h.log, h.events, shared.MistakeRecordedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventMistakeRecorded, cmd.UserID, now),
		MistakeID: m.ID,
		Module:    m.Module,
	})
	return m, nil
}

// ResolveMistake resolves a mistake and credits the review reward. Resolving
// an already resolved mistake is a no-op that earns nothing.
func (h *MistakeHandler) ResolveMistake(ctx context.Context, cmd ResolveMistakeCommand) (*ResolveMistakeResult, error) {
	if err := validate("ResolveMistake", cmd); err != nil {
		return nil, err
	}

	now := h.config.Now()
	reward := h.config.Rewards.Mistake()

	var resolved bool
	m, err := h.mistakes.Mutate(ctx, cmd.UserID, cmd.MistakeID, func(m *progress.Mistake) error {
		resolved = m.Resolve(reward, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve_mistake: %w", err)
	}

	result := &ResolveMistakeResult{
		Mistake:      m,
		Achievements: []*achievement.Achievement{},
	}
	if !resolved {
		return result, nil
	}

	credit, pending := h.rewarder.Credit(ctx, AddCoinsCommand{
		UserID:      cmd.UserID,
		Type:        coins.TypeMistakeResolved,
		Amount:      reward,
		Description: "Reviewed a mistake",
		Reference:   &coins.Reference{Model: coins.RefMistake, ID: m.ID},
		Metadata:    coins.MistakeMetadata(m.ID),
	})
	result.RewardPending = pending
	if credit != nil {
		result.CoinsEarned = reward
		earned, pending := h.rewarder.Check(ctx, cmd.UserID, achievement.CoinsTrigger(credit.NewBalance))
		result.Achievements = earned
		result.RewardPending = result.RewardPending || pending
	}

	publish(h.log, h.events, shared.MistakeResolvedEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventMistakeResolved, cmd.UserID, now),
		MistakeID:   m.ID,
		CoinsEarned: result.CoinsEarned,
	})
	return result, nil
}
