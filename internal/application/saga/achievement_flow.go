// Package saga contains business processes that orchestrate several domain
// operations in a coordinated manner.
package saga

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qaidahub/rewards-core/config"
	"github.com/qaidahub/rewards-core/internal/application/command"
	"github.com/qaidahub/rewards-core/internal/domain/achievement"
	"github.com/qaidahub/rewards-core/internal/domain/coins"
	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT FLOW SAGA
// Flow: Evaluate Trigger → Insert Badge (storage rejects duplicates) →
//
//	Credit Badge Bonus → Publish Event → Re-check Coins Trigger Once
//
// A badge is stored before its bonus is credited. A failed credit leaves the
// badge in place and is logged for reconciliation.
// ══════════════════════════════════════════════════════════════════════════════

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	// GenerateID generates a new unique ID.
	GenerateID() string
}

// UUIDGenerator generates random UUIDs.
type UUIDGenerator struct{}

// GenerateID implements IDGenerator.
func (UUIDGenerator) GenerateID() string { return uuid.NewString() }

// CoinCrediter credits badge bonuses. It is implemented by
// command.CoinLedgerHandler.
type CoinCrediter interface {
	AddCoins(ctx context.Context, cmd command.AddCoinsCommand) (*command.LedgerResult, error)
}

// AchievementFlowStep names a step of the flow.
type AchievementFlowStep string

const (
	StepEvaluate     AchievementFlowStep = "evaluate"
	StepInsertBadge  AchievementFlowStep = "insert_badge"
	StepCreditBonus  AchievementFlowStep = "credit_bonus"
	StepPublishEvent AchievementFlowStep = "publish_event"
	StepRecheckCoins AchievementFlowStep = "recheck_coins"
)

// achievementFlowState tracks one run of the flow.
type achievementFlowState struct {
	userID  string
	trigger achievement.Trigger
	outcome *command.AchievementOutcome

	// balance is the latest balance seen after a bonus credit, or -1.
	balance int64
}

// AchievementFlowConfig contains configuration for the achievement flow saga.
type AchievementFlowConfig struct {
	IDGenerator IDGenerator
	Now         func() time.Time
}

// DefaultAchievementFlowConfig returns default configuration.
func DefaultAchievementFlowConfig() AchievementFlowConfig {
	return AchievementFlowConfig{
		IDGenerator: UUIDGenerator{},
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// AchievementFlowSaga is the achievement engine: it decides which badges a
// trigger earns, awards them once and credits their bonus.
type AchievementFlowSaga struct {
	achievements achievement.Repository
	coins        CoinCrediter
	events       shared.EventPublisher
	flags        *config.FeatureFlags
	idGenerator  IDGenerator
	now          func() time.Time
	log          *logger.Logger
}

var _ command.AchievementChecker = (*AchievementFlowSaga)(nil)

// NewAchievementFlowSaga creates a new achievement flow saga. Nil flags
// enable achievements for everyone.
func NewAchievementFlowSaga(
	achievements achievement.Repository,
	crediter CoinCrediter,
	events shared.EventPublisher,
	flags *config.FeatureFlags,
	log *logger.Logger,
	cfg AchievementFlowConfig,
) *AchievementFlowSaga {
	def := DefaultAchievementFlowConfig()
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = def.IDGenerator
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	if events == nil {
		events = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}

	return &AchievementFlowSaga{
		achievements: achievements,
		coins:        crediter,
		events:       events,
		flags:        flags,
		idGenerator:  cfg.IDGenerator,
		now:          cfg.Now,
		log:          log.With(logger.Component("achievement_flow")),
	}
}

// CheckAchievements evaluates tr for the user and awards every badge whose
// condition holds and that the user does not hold yet. It returns the newly
// awarded badges, never nil. Badges already held are skipped silently.
func (s *AchievementFlowSaga) CheckAchievements(ctx context.Context, userID string, tr achievement.Trigger) (*command.AchievementOutcome, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, shared.NewValidationError("achievement", "CheckAchievements", "user id is required")
	}
	if !tr.Type.IsValid() {
		return nil, shared.NewValidationError("achievement", "CheckAchievements",
			fmt.Sprintf("unknown trigger type %q", tr.Type))
	}

	state := &achievementFlowState{
		userID:  userID,
		trigger: tr,
		outcome: &command.AchievementOutcome{Achievements: []*achievement.Achievement{}},
		balance: -1,
	}

	if !s.flags.IsEnabled(config.FeatureGamificationAchievements, config.ForUser(userID)) {
		return state.outcome, nil
	}

	// Step 1: Evaluate and award
	for _, c := range achievement.Evaluate(tr) {
		if err := s.award(ctx, state, c); err != nil {
			return state.outcome, err
		}
	}

	// Step 2: A bonus can push the balance over the coin_collector threshold.
	// This re-check does not recurse.
	if tr.Type != achievement.TriggerCoins && state.balance >= 0 {
		for _, c := range achievement.Evaluate(achievement.CoinsTrigger(state.balance)) {
			if err := s.award(ctx, state, c); err != nil {
				s.log.Warn("coins re-check failed", logger.UserID(userID), logger.Operation(string(StepRecheckCoins)))
				return state.outcome, err
			}
		}
	}

	return state.outcome, nil
}

// award stores one candidate badge, credits its bonus and publishes the event.
// A badge the user already holds is a no-op.
func (s *AchievementFlowSaga) award(ctx context.Context, state *achievementFlowState, c achievement.Candidate) error {
	def, err := achievement.Lookup(c.Badge)
	if err != nil {
		return s.wrapError(StepEvaluate, state.userID, err)
	}

	a, err := achievement.New(s.idGenerator.GenerateID(), state.userID, def, c.Metadata, s.now())
	if err != nil {
		return s.wrapError(StepEvaluate, state.userID, err)
	}

	// Step: Insert badge
	if err := s.achievements.Insert(ctx, a); err != nil {
		if shared.IsDuplicateAchievement(err) {
			return nil
		}
		return s.wrapError(StepInsertBadge, state.userID, err)
	}

	log := s.log.With(
		logger.UserID(state.userID),
		logger.Badge(string(a.BadgeType)),
		logger.String("trigger", string(state.trigger.Type)),
	)
	state.outcome.Achievements = append(state.outcome.Achievements, a)

	// Step: Credit bonus
	if a.CoinsRewarded > 0 {
		res, err := s.coins.AddCoins(ctx, command.AddCoinsCommand{
			UserID:      state.userID,
			Type:        coins.TypeAchievement,
			Amount:      a.CoinsRewarded,
			Description: fmt.Sprintf("Achievement unlocked: %s", a.Title),
			Reference:   &coins.Reference{Model: coins.RefAchievement, ID: a.ID},
			Metadata:    coins.AchievementMetadata(string(a.BadgeType)),
		})
		if err != nil {
			log.Error("failed to credit badge bonus",
				logger.Operation(string(StepCreditBonus)),
				logger.Coins(a.CoinsRewarded),
				logger.String("achievement_id", a.ID),
				logger.Err(err),
				logger.Reconcile(),
			)
			state.outcome.RewardPending = true
		} else {
			state.balance = res.NewBalance
		}
	}

	log.Info("achievement earned", logger.Coins(a.CoinsRewarded))

	// Step: Publish event
	if err := s.events.Publish(shared.AchievementEarnedEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventAchievementEarned, state.userID, a.EarnedAt),
		AchievementID: a.ID,
		BadgeType:     string(a.BadgeType),
		Title:         a.Title,
		CoinsRewarded: a.CoinsRewarded,
	}); err != nil {
		log.Warn("failed to publish achievement event",
			logger.Operation(string(StepPublishEvent)),
			logger.Err(err),
		)
	}

	return nil
}

// wrapError wraps an error with saga context.
func (s *AchievementFlowSaga) wrapError(step AchievementFlowStep, userID string, err error) error {
	return &AchievementFlowError{
		Step:    step,
		UserID:  userID,
		Cause:   err,
		Message: fmt.Sprintf("achievement flow failed at step '%s': %v", step, err),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// AchievementFlowError represents an error during the achievement flow.
type AchievementFlowError struct {
	Step    AchievementFlowStep
	UserID  string
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *AchievementFlowError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AchievementFlowError) Unwrap() error {
	return e.Cause
}
