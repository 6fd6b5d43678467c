package progress

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// MutateFunc changes a progress record while it is locked.
type MutateFunc func(p *Progress) error

// Repository stores lesson progress. (UserID, Module, LevelID, LessonID) is unique.
type Repository interface {
	// Track loads the record for key, creating a not_started one if missing,
	// applies fn while holding the record lock and saves the result.
	// Concurrent calls for the same key are serialised.
	Track(ctx context.Context, key Key, fn MutateFunc) (*Progress, error)

	// Mutate applies fn to an existing record under lock.
	// Returns ErrProgressNotFound if the user has no such record.
	Mutate(ctx context.Context, userID, id string, fn MutateFunc) (*Progress, error)

	// GetByID returns one record of the user.
	GetByID(ctx context.Context, userID, id string) (*Progress, error)

	// ListByUser returns every record of the user in one read.
	ListByUser(ctx context.Context, userID string) ([]*Progress, error)

	// ListCompletedBetween returns records completed in [from, to).
	ListCompletedBetween(ctx context.Context, userID string, from, to time.Time) ([]*Progress, error)
}

// BuildQuizFunc scores a submission once the attempt number is known.
type BuildQuizFunc func(attempt int) (*QuizResult, error)

// QuizRepository stores quiz attempts. (UserID, QuizID, Attempts) is unique.
type QuizRepository interface {
	// Append numbers the next attempt of the quiz for the user, builds the row
	// with build and inserts it. Racing submissions get distinct numbers.
	Append(ctx context.Context, userID, quizID string, build BuildQuizFunc) (*QuizResult, error)

	// ListByUser returns the user's attempts, newest first.
	ListByUser(ctx context.Context, userID string) ([]*QuizResult, error)
}

// MistakeMutateFunc changes a mistake while it is locked.
type MistakeMutateFunc func(m *Mistake) error

// MistakeRepository stores mistakes.
type MistakeRepository interface {
	// Create stores a new mistake.
	Create(ctx context.Context, m *Mistake) error

	// Mutate applies fn to an existing mistake under lock.
	// Returns ErrMistakeNotFound if the user has no such mistake.
	Mutate(ctx context.Context, userID, id string, fn MistakeMutateFunc) (*Mistake, error)

	// ListUnresolved returns the user's open mistakes, oldest first.
	ListUnresolved(ctx context.Context, userID string) ([]*Mistake, error)
}

// Catalog knows how many lessons a level or module has. It is owned by the
// content service; a nil Catalog disables level and module badges.
type Catalog interface {
	// LessonsInLevel returns the lesson count of a level, or 0 if unknown.
	LessonsInLevel(module, levelID string) int

	// LessonsInModule returns the lesson count of a module, or 0 if unknown.
	LessonsInModule(module string) int
}
