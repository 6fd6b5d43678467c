// Package jobs contains the scheduled jobs of the rewards service.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/qaidahub/rewards-core/internal/application/query"
	"github.com/qaidahub/rewards-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER AUDIT JOB
// ══════════════════════════════════════════════════════════════════════════════

// UserLister pages through user IDs in ascending order.
type UserLister interface {
	// ListIDs returns up to limit IDs greater than afterID.
	ListIDs(ctx context.Context, afterID string, limit int) ([]string, error)
}

// Auditor checks one user's ledger.
type Auditor interface {
	Audit(ctx context.Context, userID string) (*query.AuditResult, error)
}

// LedgerAuditConfig contains configuration for the ledger audit job.
type LedgerAuditConfig struct {
	// BatchSize is how many user IDs are read per page. Default: 500
	BatchSize int

	// Timeout bounds one full sweep. Default: 10m
	Timeout time.Duration
}

// DefaultLedgerAuditConfig returns the defaults.
func DefaultLedgerAuditConfig() LedgerAuditConfig {
	return LedgerAuditConfig{
		BatchSize: 500,
		Timeout:   10 * time.Minute,
	}
}

// LedgerAuditStats describes one sweep.
type LedgerAuditStats struct {
	StartedAt    time.Time
	Duration     time.Duration
	Checked      int
	Inconsistent []string
	Failed       int
}

// LedgerAuditJob walks every user and checks that the cached balance and each
// transaction's running balance match the ledger. Problems are logged with
// the reconcile marker for an operator; the job never rewrites a ledger.
type LedgerAuditJob struct {
	users   UserLister
	auditor Auditor
	log     *logger.Logger
	config  LedgerAuditConfig

	lastRunStats atomic.Pointer[LedgerAuditStats]
}

// NewLedgerAuditJob creates a new LedgerAuditJob.
func NewLedgerAuditJob(users UserLister, auditor Auditor, log *logger.Logger, cfg LedgerAuditConfig) *LedgerAuditJob {
	def := DefaultLedgerAuditConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LedgerAuditJob{
		users:   users,
		auditor: auditor,
		log:     log.With(logger.Component("ledger_audit")),
		config:  cfg,
	}
}

// Name returns the job name.
func (j *LedgerAuditJob) Name() string { return "ledger_audit" }

// Description returns a human-readable description.
func (j *LedgerAuditJob) Description() string {
	return "Checks every user's coin ledger against the cached balance"
}

// Run performs one sweep. It returns an error when any ledger was
// inconsistent or could not be read; the sweep itself continues past both.
func (j *LedgerAuditJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	stats := &LedgerAuditStats{StartedAt: time.Now()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastRunStats.Store(stats)
	}()

	after := ""
	for {
		ids, err := j.users.ListIDs(ctx, after, j.config.BatchSize)
		if err != nil {
			return fmt.Errorf("ledger_audit: list users after %q: %w", after, err)
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("ledger_audit: interrupted after %d users: %w", stats.Checked, err)
			}
			j.auditOne(ctx, id, stats)
		}

		if len(ids) < j.config.BatchSize {
			break
		}
		after = ids[len(ids)-1]
	}

	j.log.Info("ledger audit finished",
		logger.Int("checked", stats.Checked),
		logger.Int("inconsistent", len(stats.Inconsistent)),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", time.Since(stats.StartedAt)),
	)

	if len(stats.Inconsistent) > 0 || stats.Failed > 0 {
		return fmt.Errorf("ledger_audit: %d inconsistent and %d unreadable of %d ledgers",
			len(stats.Inconsistent), stats.Failed, stats.Checked)
	}
	return nil
}

func (j *LedgerAuditJob) auditOne(ctx context.Context, userID string, stats *LedgerAuditStats) {
	stats.Checked++

	res, err := j.auditor.Audit(ctx, userID)
	if err != nil {
		stats.Failed++
		j.log.Warn("ledger audit failed", logger.UserID(userID), logger.Err(err))
		return
	}
	if !res.Consistent {
		stats.Inconsistent = append(stats.Inconsistent, userID)
		j.log.Error("ledger is inconsistent",
			logger.UserID(userID),
			logger.Int64("balance", res.Balance),
			logger.Int64("ledger_sum", res.LedgerSum),
			logger.String("problem", res.Problem),
			logger.Reconcile(),
		)
	}
}

// LastRunStats returns the stats of the latest sweep, or nil before the first.
func (j *LedgerAuditJob) LastRunStats() *LedgerAuditStats {
	return j.lastRunStats.Load()
}
