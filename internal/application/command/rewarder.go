package command

import (
	"context"

	"github.com/qaidahub/rewards-core/internal/domain/achievement"
	"github.com/qaidahub/rewards-core/pkg/logger"
)

// Rewarder runs the reward half of a learning command: the coin credit and
// the achievement checks that follow it.
type Rewarder struct {
	ledger  *CoinLedgerHandler
	checker AchievementChecker
	log     *logger.Logger
}

// NewRewarder creates a Rewarder. A nil checker disables achievements.
func NewRewarder(ledger *CoinLedgerHandler, checker AchievementChecker, log *logger.Logger) *Rewarder {
	return &Rewarder{
		ledger:  ledger,
		checker: checker,
		log:     orNop(log).With(logger.Component("rewarder")),
	}
}

// Credit adds a reward. It returns the ledger result, or nil and pending=true
// when the credit failed. Zero amounts are skipped.
func (r *Rewarder) Credit(ctx context.Context, cmd AddCoinsCommand) (res *LedgerResult, pending bool) {
	if cmd.Amount <= 0 {
		return nil, false
	}

	res, err := r.ledger.AddCoins(ctx, cmd)
	if err != nil {
		r.log.Error("reward credit failed",
			logger.UserID(cmd.UserID),
			logger.String("tx_type", string(cmd.Type)),
			logger.Coins(cmd.Amount),
			logger.Err(err),
			logger.Reconcile(),
		)
		return nil, true
	}
	return res, false
}

// Check runs the achievement engine for each trigger in order.
// The returned slice is never nil.
func (r *Rewarder) Check(ctx context.Context, userID string, triggers ...achievement.Trigger) ([]*achievement.Achievement, bool) {
	earned := []*achievement.Achievement{}
	if r.checker == nil {
		return earned, false
	}

	pending := false
	for _, tr := range triggers {
		out, err := r.checker.CheckAchievements(ctx, userID, tr)
		if err != nil {
			r.log.Error("achievement check failed",
				logger.UserID(userID),
				logger.String("trigger", string(tr.Type)),
				logger.Err(err),
				logger.Reconcile(),
			)
			pending = true
			continue
		}
		earned = append(earned, out.Achievements...)
		pending = pending || out.RewardPending
	}
	return earned, pending
}
