// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"time"

	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PROGRESS CHANGED HANDLER
// Сбрасывает кэш сводки прогресса, когда меняются данные, из которых она
// считается: уроки, баланс монет или серия входов.
// ═══════════════════════════════════════════════════════════════════════════

// SummaryInvalidator сбрасывает закэшированную сводку пользователя.
type SummaryInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// SummaryEvents - события, после которых сводка устарела.
var SummaryEvents = []shared.EventType{
	shared.EventLessonCompleted,
	shared.EventProgressTracked,
	shared.EventProgressReset,
	shared.EventCoinsChanged,
	shared.EventStreakUpdated,
}

// OnProgressChangedHandler обрабатывает события изменения прогресса.
type OnProgressChangedHandler struct {
	cache   SummaryInvalidator
	timeout time.Duration
	logger  *logger.Logger
}

// NewOnProgressChangedHandler создаёт новый обработчик.
func NewOnProgressChangedHandler(cache SummaryInvalidator, log *logger.Logger) *OnProgressChangedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnProgressChangedHandler{
		cache:   cache,
		timeout: 2 * time.Second,
		logger:  log.With(logger.Component("on_progress_changed")),
	}
}

// Register подписывает обработчик на все события из SummaryEvents.
func (h *OnProgressChangedHandler) Register(bus shared.EventSubscriber) error {
	for _, t := range SummaryEvents {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle обрабатывает событие.
// Реализует интерфейс shared.EventHandler.
func (h *OnProgressChangedHandler) Handle(event shared.Event) error {
	userID := event.AggregateID()
	if userID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.cache.Invalidate(ctx, userID); err != nil {
		// Запись истечёт по TTL.
		h.logger.Warn("failed to invalidate summary cache",
			logger.UserID(userID),
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
		return err
	}

	h.logger.Debug("summary cache invalidated",
		logger.UserID(userID),
		logger.String("event_type", string(event.EventType())),
	)
	return nil
}
