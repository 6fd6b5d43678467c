package achievement

import (
	"context"
	"strings"
	"time"

	"github.com/qaidahub/rewards-core/internal/domain/shared"
)

// Metadata records why a badge was earned. Kind selects which fields are set.
type Metadata struct {
	Kind        TriggerType `json:"kind"`
	LessonCount int         `json:"lesson_count,omitempty"`
	Percentage  float64     `json:"percentage,omitempty"`
	LevelID     string      `json:"level_id,omitempty"`
	Module      string      `json:"module,omitempty"`
	StreakDays  int         `json:"streak_days,omitempty"`
	Balance     int64       `json:"balance,omitempty"`
}

// Achievement is an earned badge. It is never revoked.
type Achievement struct {
	ID            string
	UserID        string
	BadgeType     BadgeType
	Title         string
	Description   string
	CoinsRewarded int64
	Metadata      Metadata
	EarnedAt      time.Time
}

// New creates an achievement from its badge definition.
func New(id, userID string, def Definition, meta Metadata, now time.Time) (*Achievement, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, shared.NewValidationError("achievement", "New", "user id is required")
	}
	if _, err := Lookup(def.Type); err != nil {
		return nil, err
	}
	return &Achievement{
		ID:            id,
		UserID:        userID,
		BadgeType:     def.Type,
		Title:         def.Title,
		Description:   def.Description,
		CoinsRewarded: def.Coins,
		Metadata:      meta,
		EarnedAt:      now,
	}, nil
}

// NewDuplicateError reports an award of a badge the user already holds.
func NewDuplicateError(userID string, badge BadgeType) *shared.DomainError {
	return shared.NewDomainError("achievement", "Insert", shared.ErrDuplicateAchievement,
		"user "+userID+" already holds "+string(badge))
}

// Repository stores achievements.
type Repository interface {
	// Insert stores a new achievement. It returns ErrDuplicateAchievement when
	// the user already holds the badge; this check is enforced by storage.
	Insert(ctx context.Context, a *Achievement) error

	// ListByUser returns the user's achievements, oldest first.
	ListByUser(ctx context.Context, userID string) ([]*Achievement, error)
}
