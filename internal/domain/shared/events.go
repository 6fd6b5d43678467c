package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Write commands publish one after their primary record
// commits; consumers (cache invalidation, notification fan-out) subscribe.
const (
	EventLessonCompleted   EventType = "lesson.completed"
	EventQuizSubmitted     EventType = "quiz.submitted"
	EventCoinsChanged      EventType = "coins.changed"
	EventAchievementEarned EventType = "achievement.earned"
	EventStreakUpdated     EventType = "streak.updated"
	EventProgressReset     EventType = "progress.reset"
	EventProgressTracked   EventType = "progress.tracked"
	EventMistakeRecorded   EventType = "mistake.recorded"
	EventMistakeResolved   EventType = "mistake.resolved"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the user the event belongs to.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a base event stamped at the given time.
func NewBaseEvent(eventType EventType, userID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: userID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// LessonCompletedEvent is emitted the first time a lesson reaches completed.
type LessonCompletedEvent struct {
	BaseEvent
	ProgressID  string  `json:"progress_id"`
	Module      string  `json:"module"`
	LevelID     string  `json:"level_id"`
	LessonID    string  `json:"lesson_id"`
	Accuracy    float64 `json:"accuracy"`
	CoinsEarned int64   `json:"coins_earned"`
}

// Payload implements Event interface.
func (e LessonCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"progress_id":  e.ProgressID,
		"module":       e.Module,
		"level_id":     e.LevelID,
		"lesson_id":    e.LessonID,
		"accuracy":     e.Accuracy,
		"coins_earned": e.CoinsEarned,
	}
}

// ProgressTrackedEvent is emitted when a lesson is opened or updated without completing.
type ProgressTrackedEvent struct {
	BaseEvent
	ProgressID string `json:"progress_id"`
	Status     string `json:"status"`
}

// Payload implements Event interface.
func (e ProgressTrackedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"progress_id": e.ProgressID,
		"status":      e.Status,
	}
}

// ProgressResetEvent is emitted when a learner resets a lesson.
type ProgressResetEvent struct {
	BaseEvent
	ProgressID string `json:"progress_id"`
	LessonID   string `json:"lesson_id"`
}

// Payload implements Event interface.
func (e ProgressResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"progress_id": e.ProgressID,
		"lesson_id":   e.LessonID,
	}
}

// QuizSubmittedEvent is emitted for every quiz attempt.
type QuizSubmittedEvent struct {
	BaseEvent
	QuizResultID string  `json:"quiz_result_id"`
	QuizID       string  `json:"quiz_id"`
	Module       string  `json:"module"`
	Percentage   float64 `json:"percentage"`
	Passed       bool    `json:"passed"`
	Attempt      int     `json:"attempt"`
	CoinsEarned  int64   `json:"coins_earned"`
}

// Payload implements Event interface.
func (e QuizSubmittedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"quiz_result_id": e.QuizResultID,
		"quiz_id":        e.QuizID,
		"module":         e.Module,
		"percentage":     e.Percentage,
		"passed":         e.Passed,
		"attempt":        e.Attempt,
		"coins_earned":   e.CoinsEarned,
	}
}

// MistakeRecordedEvent is emitted when a wrong answer is logged for review.
type MistakeRecordedEvent struct {
	BaseEvent
	MistakeID string `json:"mistake_id"`
	Module    string `json:"module"`
}

// Payload implements Event interface.
func (e MistakeRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"mistake_id": e.MistakeID,
		"module":     e.Module,
	}
}

// MistakeResolvedEvent is emitted the first time a mistake is resolved.
type MistakeResolvedEvent struct {
	BaseEvent
	MistakeID   string `json:"mistake_id"`
	CoinsEarned int64  `json:"coins_earned"`
}

// Payload implements Event interface.
func (e MistakeResolvedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"mistake_id":   e.MistakeID,
		"coins_earned": e.CoinsEarned,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Reward Events
// ═══════════════════════════════════════════════════════════════════════════

// CoinsChangedEvent is emitted after every ledger entry.
type CoinsChangedEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	TxType        string `json:"tx_type"`
	Amount        int64  `json:"amount"`
	Balance       int64  `json:"balance"`
}

// Payload implements Event interface.
func (e CoinsChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"transaction_id": e.TransactionID,
		"tx_type":        e.TxType,
		"amount":         e.Amount,
		"balance":        e.Balance,
	}
}

// AchievementEarnedEvent is emitted when a badge is newly awarded.
// Notification delivery consumes it downstream.
type AchievementEarnedEvent struct {
	BaseEvent
	AchievementID string `json:"achievement_id"`
	BadgeType     string `json:"badge_type"`
	Title         string `json:"title"`
	CoinsRewarded int64  `json:"coins_rewarded"`
}

// Payload implements Event interface.
func (e AchievementEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"achievement_id": e.AchievementID,
		"badge_type":     e.BadgeType,
		"title":          e.Title,
		"coins_rewarded": e.CoinsRewarded,
	}
}

// StreakUpdatedEvent is emitted on every login that changes streak state.
type StreakUpdatedEvent struct {
	BaseEvent
	Previous int  `json:"previous"`
	Current  int  `json:"current"`
	Best     int  `json:"best"`
	Broken   bool `json:"broken"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"previous": e.Previous,
		"current":  e.Current,
		"best":     e.Best,
		"broken":   e.Broken,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Handler Interface
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends events to all subscribers.
	Publish(events ...Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for specific event types.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(...Event) error { return nil }
