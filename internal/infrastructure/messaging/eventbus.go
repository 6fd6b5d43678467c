// Package messaging implements the event buses that carry domain events from
// write commands to their consumers. The in-memory bus serves one process;
// the Redis bus fans events out to every instance over Pub/Sub.
package messaging

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/pkg/logger"
)

var (
	// ErrEventBusClosed is returned by Publish and Subscribe after Close.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")

	errNilHandler = errors.New("handler cannot be nil")
	errNilEvent   = errors.New("event cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers on a bounded worker pool instead of inline.
	AsyncMode bool

	// WorkerPoolSize bounds concurrent handlers in async mode. Default: 10
	WorkerPoolSize int

	Logger *logger.Logger
}

// Stats counts bus traffic since start.
type Stats struct {
	Published       int64
	HandlerRuns     int64
	HandlerFailures int64
}

// InMemoryEventBus delivers events to handlers registered in this process.
// Handler errors and panics are logged and counted, never returned to the
// publisher: the command that published has already committed.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	wildcard []shared.EventHandler
	closed   bool

	async   bool
	slots   chan struct{}
	closeCh chan struct{}
	wg      sync.WaitGroup

	log *logger.Logger

	published   atomic.Int64
	handlerRuns atomic.Int64
	failures    atomic.Int64
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}
	return &InMemoryEventBus{
		byType:  make(map[shared.EventType][]shared.EventHandler),
		async:   config.AsyncMode,
		slots:   make(chan struct{}, config.WorkerPoolSize),
		closeCh: make(chan struct{}),
		log:     config.Logger.Named("eventbus"),
	}
}

// Subscribe registers a handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.subscribe(handler, func() {
		b.byType[eventType] = append(b.byType[eventType], handler)
	})
}

// SubscribeAll registers a handler for every event type.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.subscribe(handler, func() {
		b.wildcard = append(b.wildcard, handler)
	})
}

func (b *InMemoryEventBus) subscribe(handler shared.EventHandler, add func()) error {
	if handler == nil {
		return errNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	add()
	return nil
}

// Publish delivers events in order. In sync mode every handler has returned
// when Publish does.
func (b *InMemoryEventBus) Publish(events ...shared.Event) error {
	for _, event := range events {
		if event == nil {
			return errNilEvent
		}

		b.mu.RLock()
		if b.closed {
			b.mu.RUnlock()
			return ErrEventBusClosed
		}
		typed := b.byType[event.EventType()]
		handlers := make([]shared.EventHandler, 0, len(typed)+len(b.wildcard))
		handlers = append(handlers, typed...)
		handlers = append(handlers, b.wildcard...)
		if b.async {
			// Counted under the lock so Close cannot miss them.
			b.wg.Add(len(handlers))
		}
		b.mu.RUnlock()

		b.published.Add(1)
		for _, h := range handlers {
			if b.async {
				go b.runPooled(event, h)
			} else {
				b.run(event, h)
			}
		}
	}
	return nil
}

func (b *InMemoryEventBus) runPooled(event shared.Event, handler shared.EventHandler) {
	defer b.wg.Done()

	select {
	case b.slots <- struct{}{}:
		defer func() { <-b.slots }()
	case <-b.closeCh:
		return
	}
	b.run(event, handler)
}

// run executes one handler and logs its failure.
func (b *InMemoryEventBus) run(event shared.Event, handler shared.EventHandler) {
	b.handlerRuns.Add(1)
	if err := b.call(event, handler); err != nil {
		b.failures.Add(1)
		b.log.Error("event handler failed",
			logger.String("event_type", string(event.EventType())),
			logger.UserID(event.AggregateID()),
			logger.Err(err),
		)
	}
}

func (b *InMemoryEventBus) call(event shared.Event, handler shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
			b.log.Error("handler panic recovered",
				logger.String("event_type", string(event.EventType())),
				logger.String("stack", string(debug.Stack())),
			)
		}
	}()
	return handler(event)
}

// Wait blocks until every handler started so far has returned.
func (b *InMemoryEventBus) Wait() {
	b.wg.Wait()
}

// Close stops accepting events and waits for running handlers.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	close(b.closeCh)
	b.log.Info("event bus closed", logger.Int64("published", b.published.Load()))
	return nil
}

// Stats returns the traffic counters.
func (b *InMemoryEventBus) Stats() Stats {
	return Stats{
		Published:       b.published.Load(),
		HandlerRuns:     b.handlerRuns.Load(),
		HandlerFailures: b.failures.Load(),
	}
}
