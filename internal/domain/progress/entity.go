// Package progress contains per-lesson progress records, quiz attempts,
// mistakes queued for review, the reward table and the summary aggregator.
// This is a pure domain layer with zero external dependencies.
package progress

import (
	"strings"
	"time"

	"github.com/qaidahub/rewards-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status is the lifecycle state of a lesson.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Learning modules reported in the per-type breakdown.
const (
	ModuleQuran = "Quran"
	ModuleDua   = "Dua"
	ModuleQaida = "Qaida"
)

// TrackedModules are always present in Summary.LessonsByType.
var TrackedModules = []string{ModuleQuran, ModuleDua, ModuleQaida}

// ══════════════════════════════════════════════════════════════════════════════
// KEY
// ══════════════════════════════════════════════════════════════════════════════

// Key identifies one lesson of one user.
type Key struct {
	UserID   string
	Module   string
	LevelID  string
	LessonID string
}

// Validate checks that every component is set.
func (k Key) Validate() error {
	if strings.TrimSpace(k.UserID) == "" || strings.TrimSpace(k.Module) == "" ||
		strings.TrimSpace(k.LevelID) == "" || strings.TrimSpace(k.LessonID) == "" {
		return shared.NewValidationError("progress", "Key", "user, module, level and lesson are required")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// Progress is the state of one lesson for one user.
type Progress struct {
	ID       string
	UserID   string
	Module   string
	LevelID  string
	LessonID string

	Status               Status
	CompletionPercentage float64

	// TimeSpent is cumulative, in seconds.
	TimeSpent int
	Attempts  int
	Accuracy  float64

	// CoinsEarned is the lesson reward granted so far. Resets keep it.
	CoinsEarned int64

	StartedAt      *time.Time
	CompletedAt    *time.Time
	LastAccessedAt time.Time

	// RewardedAt is set on the first completion and survives resets, so a
	// lesson pays out at most once.
	RewardedAt *time.Time
}

// New creates a not_started record for key.
func New(id string, key Key) *Progress {
	return &Progress{
		ID:       id,
		UserID:   key.UserID,
		Module:   key.Module,
		LevelID:  key.LevelID,
		LessonID: key.LessonID,
		Status:   StatusNotStarted,
	}
}

// Key returns the identity of the record.
func (p *Progress) Key() Key {
	return Key{UserID: p.UserID, Module: p.Module, LevelID: p.LevelID, LessonID: p.LessonID}
}

// IsCompleted reports whether the lesson is currently completed.
func (p *Progress) IsCompleted() bool {
	return p.CompletedAt != nil
}

// Track records a visit that does not complete the lesson.
// Completed lessons keep their status; only time and access are recorded.
func (p *Progress) Track(percentage float64, timeSpent int, now time.Time) {
	p.TimeSpent += max(timeSpent, 0)
	p.LastAccessedAt = now

	if p.IsCompleted() {
		return
	}
	if p.StartedAt == nil {
		started := now
		p.StartedAt = &started
	}
	p.Status = StatusInProgress
	p.CompletionPercentage = max(p.CompletionPercentage, clampPercentage(percentage))
}

// Complete marks the lesson completed and reports whether this is the first
// completion that should be rewarded. Later calls on a completed record only
// update attempts, time and accuracy.
func (p *Progress) Complete(accuracy float64, timeSpent int, now time.Time) bool {
	p.Attempts++
	p.TimeSpent += max(timeSpent, 0)
	p.Accuracy = clampPercentage(accuracy)
	p.LastAccessedAt = now

	if p.IsCompleted() {
		return false
	}

	if p.StartedAt == nil {
		started := now
		p.StartedAt = &started
	}
	completed := now
	p.CompletedAt = &completed
	p.Status = StatusCompleted
	p.CompletionPercentage = 100

	if p.RewardedAt != nil {
		return false
	}
	rewarded := now
	p.RewardedAt = &rewarded
	return true
}

// Reset returns the lesson to not_started. Accuracy, attempts and completion
// are cleared; CoinsEarned, TimeSpent and RewardedAt are kept.
func (p *Progress) Reset(now time.Time) {
	p.Status = StatusNotStarted
	p.CompletionPercentage = 0
	p.Accuracy = 0
	p.Attempts = 0
	p.StartedAt = nil
	p.CompletedAt = nil
	p.LastAccessedAt = now
}

// Clone returns a deep copy.
func (p *Progress) Clone() *Progress {
	c := *p
	c.StartedAt = cloneTime(p.StartedAt)
	c.CompletedAt = cloneTime(p.CompletedAt)
	c.RewardedAt = cloneTime(p.RewardedAt)
	return &c
}

// CountCompleted counts completed rows in module, and in levelID when set.
func CountCompleted(rows []*Progress, module, levelID string) int {
	n := 0
	for _, p := range rows {
		if p.Status != StatusCompleted || p.Module != module {
			continue
		}
		if levelID != "" && p.LevelID != levelID {
			continue
		}
		n++
	}
	return n
}

func clampPercentage(v float64) float64 {
	return min(max(v, 0), 100)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
