package progress

import (
	"strings"
	"time"

	"github.com/qaidahub/rewards-core/internal/domain/shared"
)

// Mistake is a wrong answer queued for review.
type Mistake struct {
	ID         string
	UserID     string
	Module     string
	LessonID   string
	QuestionID string
	CreatedAt  time.Time

	// ResolvedAt guards the resolution reward like CompletedAt guards lessons.
	ResolvedAt  *time.Time
	CoinsEarned int64
}

// NewMistake creates an unresolved mistake.
func NewMistake(id, userID, module, lessonID, questionID string, now time.Time) (*Mistake, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(questionID) == "" {
		return nil, shared.NewValidationError("progress", "RecordMistake", "user and question are required")
	}
	return &Mistake{
		ID:         id,
		UserID:     userID,
		Module:     module,
		LessonID:   lessonID,
		QuestionID: questionID,
		CreatedAt:  now,
	}, nil
}

// IsResolved reports whether the mistake was resolved.
func (m *Mistake) IsResolved() bool {
	return m.ResolvedAt != nil
}

// Resolve marks the mistake resolved and credits coins, once.
// It reports whether this call did the transition.
func (m *Mistake) Resolve(coins int64, now time.Time) bool {
	if m.IsResolved() {
		return false
	}
	resolved := now
	m.ResolvedAt = &resolved
	m.CoinsEarned = coins
	return true
}

// Clone returns a deep copy.
func (m *Mistake) Clone() *Mistake {
	c := *m
	c.ResolvedAt = cloneTime(m.ResolvedAt)
	return &c
}
