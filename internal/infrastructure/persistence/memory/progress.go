package memory

import (
	"context"
	"sort"
	"time"

	"github.com/qaidahub/rewards-core/internal/domain/progress"
	"github.com/qaidahub/rewards-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository.
type ProgressRepository struct {
	s *Store
}

var _ progress.Repository = (*ProgressRepository)(nil)

// Track loads or creates the record for key and applies fn under the user's lock.
func (r *ProgressRepository) Track(_ context.Context, key progress.Key, fn progress.MutateFunc) (*progress.Progress, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var out *progress.Progress
	err := r.s.withShard(key.UserID, func(sh *shard) error {
		current, exists := sh.progressByKey[key]
		var p *progress.Progress
		if exists {
			p = current.Clone()
		} else {
			p = progress.New(r.s.newID(), key)
		}

		if err := fn(p); err != nil {
			return err
		}

		sh.progressByKey[key] = p
		sh.progressByID[p.ID] = p
		out = p.Clone()
		return nil
	})
	return out, err
}

// Mutate applies fn to an existing record under the user's lock.
func (r *ProgressRepository) Mutate(_ context.Context, userID, id string, fn progress.MutateFunc) (*progress.Progress, error) {
	var out *progress.Progress
	err := r.s.withShard(userID, func(sh *shard) error {
		current, ok := sh.progressByID[id]
		if !ok {
			return shared.ErrProgressNotFound
		}
		p := current.Clone()
		if err := fn(p); err != nil {
			return err
		}
		sh.progressByKey[p.Key()] = p
		sh.progressByID[p.ID] = p
		out = p.Clone()
		return nil
	})
	return out, err
}

// GetByID returns one record of the user.
func (r *ProgressRepository) GetByID(_ context.Context, userID, id string) (*progress.Progress, error) {
	var out *progress.Progress
	err := r.s.withShard(userID, func(sh *shard) error {
		p, ok := sh.progressByID[id]
		if !ok {
			return shared.ErrProgressNotFound
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

// ListByUser returns a snapshot of every record of the user.
func (r *ProgressRepository) ListByUser(_ context.Context, userID string) ([]*progress.Progress, error) {
	return r.list(userID, func(*progress.Progress) bool { return true })
}

// ListCompletedBetween returns records completed in [from, to).
func (r *ProgressRepository) ListCompletedBetween(_ context.Context, userID string, from, to time.Time) ([]*progress.Progress, error) {
	return r.list(userID, func(p *progress.Progress) bool {
		return p.CompletedAt != nil && !p.CompletedAt.Before(from) && p.CompletedAt.Before(to)
	})
}

func (r *ProgressRepository) list(userID string, keep func(*progress.Progress) bool) ([]*progress.Progress, error) {
	out := []*progress.Progress{}
	err := r.s.withShard(userID, func(sh *shard) error {
		for _, p := range sh.progressByID {
			if keep(p) {
				out = append(out, p.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastAccessedAt.Equal(out[j].LastAccessedAt) {
			return out[i].LastAccessedAt.Before(out[j].LastAccessedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

// ══════════════════════════════════════════════════════════════════════════════
// QUIZ RESULTS
// ══════════════════════════════════════════════════════════════════════════════

// QuizRepository implements progress.QuizRepository.
type QuizRepository struct {
	s *Store
}

var _ progress.QuizRepository = (*QuizRepository)(nil)

// Append numbers the attempt and stores the row under the user's lock.
func (r *QuizRepository) Append(_ context.Context, userID, quizID string, build progress.BuildQuizFunc) (*progress.QuizResult, error) {
	var out *progress.QuizResult
	err := r.s.withShard(userID, func(sh *shard) error {
		attempt := sh.quizAttempts[quizID] + 1
		res, err := build(attempt)
		if err != nil {
			return err
		}
		res.ID = r.s.newID()
		res.Attempts = attempt

		c := *res
		sh.quizzes = append(sh.quizzes, &c)
		sh.quizAttempts[quizID] = attempt
		out = res
		return nil
	})
	return out, err
}

// ListByUser returns the user's attempts, newest first.
func (r *QuizRepository) ListByUser(_ context.Context, userID string) ([]*progress.QuizResult, error) {
	var out []*progress.QuizResult
	err := r.s.withShard(userID, func(sh *shard) error {
		out = make([]*progress.QuizResult, 0, len(sh.quizzes))
		for i := len(sh.quizzes) - 1; i >= 0; i-- {
			c := *sh.quizzes[i]
			out = append(out, &c)
		}
		return nil
	})
	return out, err
}

// ══════════════════════════════════════════════════════════════════════════════
// MISTAKES
// ══════════════════════════════════════════════════════════════════════════════

// MistakeRepository implements progress.MistakeRepository.
type MistakeRepository struct {
	s *Store
}

var _ progress.MistakeRepository = (*MistakeRepository)(nil)

// Create stores a new mistake.
func (r *MistakeRepository) Create(_ context.Context, m *progress.Mistake) error {
	return r.s.withShard(m.UserID, func(sh *shard) error {
		if m.ID == "" {
			m.ID = r.s.newID()
		}
		if _, ok := sh.mistakes[m.ID]; ok {
			return shared.NewDomainError("progress", "RecordMistake", shared.ErrAlreadyExists, "mistake already exists")
		}
		sh.mistakes[m.ID] = m.Clone()
		sh.mistakeOrder = append(sh.mistakeOrder, m.ID)
		return nil
	})
}

// Mutate applies fn to an existing mistake under the user's lock.
func (r *MistakeRepository) Mutate(_ context.Context, userID, id string, fn progress.MistakeMutateFunc) (*progress.Mistake, error) {
	var out *progress.Mistake
	err := r.s.withShard(userID, func(sh *shard) error {
		current, ok := sh.mistakes[id]
		if !ok {
			return shared.ErrMistakeNotFound
		}
		m := current.Clone()
		if err := fn(m); err != nil {
			return err
		}
		sh.mistakes[id] = m
		out = m.Clone()
		return nil
	})
	return out, err
}

// ListUnresolved returns the user's open mistakes, oldest first.
func (r *MistakeRepository) ListUnresolved(_ context.Context, userID string) ([]*progress.Mistake, error) {
	out := []*progress.Mistake{}
	err := r.s.withShard(userID, func(sh *shard) error {
		for _, id := range sh.mistakeOrder {
			if m := sh.mistakes[id]; !m.IsResolved() {
				out = append(out, m.Clone())
			}
		}
		return nil
	})
	return out, err
}
