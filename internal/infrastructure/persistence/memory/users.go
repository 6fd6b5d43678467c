package memory

import (
	"context"
	"sort"

	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/internal/domain/user"
)

// UserRepository implements user.Repository.
type UserRepository struct {
	s *Store
}

var _ user.Repository = (*UserRepository)(nil)

// Create stores a new user.
func (r *UserRepository) Create(_ context.Context, u *user.User) error {
	if _, loaded := r.s.shards.LoadOrStore(u.ID, newShard(u.Clone())); loaded {
		return shared.ErrUserAlreadyExists
	}
	return nil
}

// GetByID returns a copy of the user.
func (r *UserRepository) GetByID(_ context.Context, id string) (*user.User, error) {
	var out *user.User
	err := r.s.withShard(id, func(sh *shard) error {
		out = sh.user.Clone()
		return nil
	})
	return out, err
}

// Mutate applies fn to a copy and stores it unless fn fails.
// The balance is owned by the ledger and cannot be changed here.
func (r *UserRepository) Mutate(_ context.Context, id string, fn user.MutateFunc) (*user.User, error) {
	var out *user.User
	err := r.s.withShard(id, func(sh *shard) error {
		u := sh.user.Clone()
		if err := fn(u); err != nil {
			return err
		}
		u.Coins = sh.user.Coins
		sh.user = u
		out = u.Clone()
		return nil
	})
	return out, err
}

// ListIDs returns up to limit user IDs greater than afterID, ascending.
func (r *UserRepository) ListIDs(_ context.Context, afterID string, limit int) ([]string, error) {
	var ids []string
	r.s.shards.Range(func(k, _ any) bool {
		if id := k.(string); id > afterID {
			ids = append(ids, id)
		}
		return true
	})
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
