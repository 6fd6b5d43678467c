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
	"github.com/qaidahub/rewards-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD QUIZ RESULT COMMAND
// Every submission is stored as a new attempt. Passing attempts pay coins,
// with a bonus for a perfect score and for passing on the first attempt.
// ══════════════════════════════════════════════════════════════════════════════

// RecordQuizResultCommand submits one quiz attempt.
type RecordQuizResultCommand struct {
	UserID         string `validate:"required,notblank"`
	QuizID         string `validate:"required,notblank"`
	Module         string
	LevelID        string
	Score          int `validate:"gte=0,ltefield=TotalQuestions"`
	TotalQuestions int `validate:"gt=0"`
	TimeSpent      int `validate:"gte=0"`
}

// RecordQuizResultResult contains the result of a quiz submission.
type RecordQuizResultResult struct {
	QuizResult   *progress.QuizResult
	Passed       bool
	Percentage   float64
	CoinsEarned  int64
	Achievements []*achievement.Achievement

	// RewardPending is set when a credit or badge check failed after the
	// attempt was saved.
	RewardPending bool
}

// QuizHandler handles quiz submissions.
type QuizHandler struct {
	users    user.Repository
	quizzes  progress.QuizRepository
	rewarder *Rewarder
	events   shared.EventPublisher
	retrier  *retry.Retrier
	config   Config
	log      *logger.Logger
}

// NewQuizHandler creates a new QuizHandler.
func NewQuizHandler(
	users user.Repository,
	quizzes progress.QuizRepository,
	rewarder *Rewarder,
	events shared.EventPublisher,
	log *logger.Logger,
	config Config,
) *QuizHandler {
	config = config.withDefaults()
	return &QuizHandler{
		users:    users,
		quizzes:  quizzes,
		rewarder: rewarder,
		events:   orNopPublisher(events),
		retrier:  retry.Storage(config.MaxRetries, shared.IsRetryable),
		config:   config,
		log:      orNop(log).With(logger.Component("quizzes")),
	}
}

// RecordQuizResult stores the attempt, updates the user's quiz counters and
// running accuracy, credits the reward and runs the quiz and coins triggers.
func (h *QuizHandler) RecordQuizResult(ctx context.Context, cmd RecordQuizResultCommand) (*RecordQuizResultResult, error) {
	if err := validate("RecordQuizResult", cmd); err != nil {
		return nil, err
	}

	sub := progress.QuizSubmission{
		UserID:         cmd.UserID,
		QuizID:         cmd.QuizID,
		Module:         cmd.Module,
		LevelID:        cmd.LevelID,
		Score:          cmd.Score,
		TotalQuestions: cmd.TotalQuestions,
		TimeSpent:      cmd.TimeSpent,
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	now := h.config.Now()

	// Racing submissions can collide on the attempt number; retry renumbers.
	res, err := retry.DoValue(ctx, h.retrier, func(ctx context.Context) (*progress.QuizResult, error) {
		return h.quizzes.Append(ctx, cmd.UserID, cmd.QuizID, func(attempt int) (*progress.QuizResult, error) {
			return progress.NewQuizResult("", sub, attempt, h.config.Rewards, now), nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("record_quiz: failed to save attempt: %w", err)
	}

	result := &RecordQuizResultResult{
		QuizResult:   res,
		Passed:       res.Passed,
		Percentage:   res.Percentage,
		Achievements: []*achievement.Achievement{},
	}

	log := h.log.With(logger.UserID(cmd.UserID), logger.QuizID(cmd.QuizID))

	if _, err := h.users.Mutate(ctx, cmd.UserID, func(u *user.User) error {
		u.RecordQuizSubmitted(res.Percentage, now)
		return nil
	}); err != nil {
		log.Error("failed to update quiz counters", logger.Err(err), logger.Reconcile())
		result.RewardPending = true
	}

	credit, pending := h.rewarder.Credit(ctx, AddCoinsCommand{
		UserID:      cmd.UserID,
		Type:        coins.TypeQuizComplete,
		Amount:      res.CoinsEarned,
		Description: fmt.Sprintf("Passed quiz %s (attempt %d)", res.QuizID, res.Attempts),
		Reference:   &coins.Reference{Model: coins.RefQuizResult, ID: res.ID},
		Metadata:    coins.QuizMetadata(res.QuizID, res.Percentage, res.Attempts),
	})
	result.RewardPending = result.RewardPending || pending
	if credit != nil {
		result.CoinsEarned = res.CoinsEarned
	}

	triggers := []achievement.Trigger{achievement.QuizTrigger(res.Percentage)}
	if credit != nil {
		triggers = append(triggers, achievement.CoinsTrigger(credit.NewBalance))
	}
	earned, pending := h.rewarder.Check(ctx, cmd.UserID, triggers...)
	result.Achievements = earned
	result.RewardPending = result.RewardPending || pending

	log.Info("quiz submitted",
		logger.Float64("percentage", res.Percentage),
		logger.Bool("passed", res.Passed),
		logger.Int("attempt", res.Attempts),
		logger.Coins(result.CoinsEarned),
	)

	publish(log, h.events, shared.QuizSubmittedEvent{
		BaseEvent:    shared.NewBaseEvent(shared.EventQuizSubmitted, cmd.UserID, now),
		QuizResultID: res.ID,
		QuizID:       res.QuizID,
		Module:       res.Module,
		Percentage:   res.Percentage,
		Passed:       res.Passed,
		Attempt:      res.Attempts,
		CoinsEarned:  result.CoinsEarned,
	})

	return result, nil
}
