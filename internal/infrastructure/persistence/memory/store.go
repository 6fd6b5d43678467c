// Package memory implements the repositories in process memory.
// State is sharded per user: every operation takes only its user's lock,
// so different users never contend. It backs tests and single-node dev runs.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qaidahub/rewards-core/internal/domain/achievement"
	"github.com/qaidahub/rewards-core/internal/domain/coins"
	"github.com/qaidahub/rewards-core/internal/domain/progress"
	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/internal/domain/user"
)

// shard holds all state of one user.
type shard struct {
	mu sync.Mutex

	user *user.User

	txs []*coins.Transaction

	badges       map[achievement.BadgeType]*achievement.Achievement
	achievements []*achievement.Achievement

	progressByKey map[progress.Key]*progress.Progress
	progressByID  map[string]*progress.Progress

	quizzes      []*progress.QuizResult
	quizAttempts map[string]int

	mistakes map[string]*progress.Mistake
	// mistakeOrder keeps insertion order for listing.
	mistakeOrder []string
}

func newShard(u *user.User) *shard {
	return &shard{
		user:          u,
		badges:        make(map[achievement.BadgeType]*achievement.Achievement),
		progressByKey: make(map[progress.Key]*progress.Progress),
		progressByID:  make(map[string]*progress.Progress),
		quizAttempts:  make(map[string]int),
		mistakes:      make(map[string]*progress.Mistake),
	}
}

// Store is the in-memory backing for every repository.
type Store struct {
	shards sync.Map // user id -> *shard
	now    func() time.Time
	newID  func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for stored timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// shard returns the user's shard or ErrUserNotFound.
func (s *Store) shard(userID string) (*shard, error) {
	v, ok := s.shards.Load(userID)
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return v.(*shard), nil
}

// withShard runs fn while holding the user's lock.
func (s *Store) withShard(userID string, fn func(sh *shard) error) error {
	sh, err := s.shard(userID)
	if err != nil {
		return err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return fn(sh)
}

// Users returns the user repository view.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Ledger returns the coin ledger view.
func (s *Store) Ledger() *LedgerRepository { return &LedgerRepository{s: s} }

// Achievements returns the achievement repository view.
func (s *Store) Achievements() *AchievementRepository { return &AchievementRepository{s: s} }

// Progress returns the progress repository view.
func (s *Store) Progress() *ProgressRepository { return &ProgressRepository{s: s} }

// Quizzes returns the quiz repository view.
func (s *Store) Quizzes() *QuizRepository { return &QuizRepository{s: s} }

// Mistakes returns the mistake repository view.
func (s *Store) Mistakes() *MistakeRepository { return &MistakeRepository{s: s} }
