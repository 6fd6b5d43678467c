package query

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/qaidahub/rewards-core/config"
	"github.com/qaidahub/rewards-core/internal/domain/progress"
	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/internal/domain/user"
	"github.com/qaidahub/rewards-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS SUMMARY QUERY
// Totals, per-module breakdown and the rolling 7-day activity of one learner.
// ══════════════════════════════════════════════════════════════════════════════

// SummaryCache stores computed summaries. It is implemented by
// redis.SummaryCache.
type SummaryCache interface {
	Get(ctx context.Context, userID string) (*progress.Summary, bool, error)
	Set(ctx context.Context, userID string, summary *progress.Summary) error
	Invalidate(ctx context.Context, userID string) error
}

// ProgressSummaryHandler serves progress summaries.
type ProgressSummaryHandler struct {
	users    user.Repository
	progress progress.Repository
	cache    SummaryCache
	flags    *config.FeatureFlags
	loc      *time.Location
	now      func() time.Time
	log      *logger.Logger

	group singleflight.Group
	gens  sync.Map // user id -> *atomic.Uint64, bumped by Invalidate
}

// computed is one shared computation and the cache generation it started at.
type computed struct {
	summary *progress.Summary
	gen     uint64
}

// ProgressSummaryConfig contains configuration for the handler.
type ProgressSummaryConfig struct {
	// Location decides the calendar days of the weekly breakdown.
	Location *time.Location
	Now      func() time.Time
}

// NewProgressSummaryHandler creates a new ProgressSummaryHandler.
// A nil cache always computes from storage.
func NewProgressSummaryHandler(
	users user.Repository,
	progressRepo progress.Repository,
	cache SummaryCache,
	flags *config.FeatureFlags,
	log *logger.Logger,
	cfg ProgressSummaryConfig,
) *ProgressSummaryHandler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if log == nil {
		log = logger.Nop()
	}

	return &ProgressSummaryHandler{
		users:    users,
		progress: progressRepo,
		cache:    cache,
		flags:    flags,
		loc:      cfg.Location,
		now:      cfg.Now,
		log:      log.With(logger.Component("progress_summary")),
	}
}

// GetProgressSummary returns the user's summary. Concurrent calls for one
// user share a single computation.
func (h *ProgressSummaryHandler) GetProgressSummary(ctx context.Context, userID string) (*progress.Summary, error) {
	if userID == "" {
		return nil, shared.NewValidationError("progress", "Summary", "user id is required")
	}

	useCache := h.cache != nil && h.flags.IsEnabled(config.FeatureProgressSummaryCache, config.ForUser(userID))
	if useCache {
		cached, ok, err := h.cache.Get(ctx, userID)
		if err != nil {
			h.log.Warn("summary cache read failed", logger.UserID(userID), logger.Err(err))
		} else if ok {
			return cached, nil
		}
	}

	gen := h.generation(userID)
	ch := h.group.DoChan(userID, func() (any, error) {
		started := gen.Load()
		// Joined callers must not inherit the first caller's cancellation.
		summary, err := h.compute(context.WithoutCancel(ctx), userID)
		if err != nil {
			return nil, err
		}
		return computed{summary: summary, gen: started}, nil
	})

	var res computed
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res = r.Val.(computed)
	}

	if useCache {
		h.store(ctx, userID, res, gen)
	}
	return res.summary, nil
}

// store caches res unless the user's data changed while it was computed.
// A change that lands between the check and the write is undone by the
// second check.
func (h *ProgressSummaryHandler) store(ctx context.Context, userID string, res computed, gen *atomic.Uint64) {
	if gen.Load() != res.gen {
		return
	}
	if err := h.cache.Set(ctx, userID, res.summary); err != nil {
		h.log.Warn("summary cache write failed", logger.UserID(userID), logger.Err(err))
		return
	}
	if gen.Load() != res.gen {
		if err := h.cache.Invalidate(ctx, userID); err != nil {
			h.log.Warn("summary cache invalidate failed", logger.UserID(userID), logger.Err(err))
		}
	}
}

func (h *ProgressSummaryHandler) generation(userID string) *atomic.Uint64 {
	v, _ := h.gens.LoadOrStore(userID, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

// compute reads the user and every progress row concurrently and summarises
// that one snapshot.
func (h *ProgressSummaryHandler) compute(ctx context.Context, userID string) (*progress.Summary, error) {
	var (
		u    *user.User
		rows []*progress.Progress
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		u, err = h.users.GetByID(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = h.progress.ListByUser(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("progress_summary: %w", err)
	}

	return progress.Summarize(u, rows, h.now(), h.loc), nil
}

// Invalidate drops the cached summary of a user. Computations already
// running for the user are not cached, and later calls start a new one.
func (h *ProgressSummaryHandler) Invalidate(ctx context.Context, userID string) error {
	h.generation(userID).Add(1)
	h.group.Forget(userID)
	if h.cache == nil {
		return nil
	}
	return h.cache.Invalidate(ctx, userID)
}
