package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/qaidahub/rewards-core/internal/domain/shared"
	"github.com/qaidahub/rewards-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	Client *goredis.Client

	// ChannelName is the Pub/Sub channel. Default: rewards:events
	ChannelName string

	// InstanceID identifies this process so it can skip its own messages.
	// Default: a random UUID
	InstanceID string

	LocalBusConfig InMemoryEventBusConfig
	Logger         *logger.Logger
}

// RedisEventBus delivers every event locally and publishes it to a Redis
// channel; events published by other instances are replayed on the local
// bus. Cross-instance delivery is at most once.
type RedisEventBus struct {
	client     *goredis.Client
	pubsub     *goredis.PubSub
	local      *InMemoryEventBus
	channel    string
	instanceID string
	log        *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

var _ shared.EventBus = (*RedisEventBus)(nil)

// NewRedisEventBus subscribes to the channel and starts the listener.
func NewRedisEventBus(ctx context.Context, config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.ChannelName == "" {
		config.ChannelName = "rewards:events"
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.LocalBusConfig.Logger == nil {
		config.LocalBusConfig.Logger = config.Logger
	}

	pubsub := config.Client.Subscribe(ctx, config.ChannelName)
	// The first reply confirms the subscription.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", config.ChannelName, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b := &RedisEventBus{
		client:     config.Client,
		pubsub:     pubsub,
		local:      NewInMemoryEventBus(config.LocalBusConfig),
		channel:    config.ChannelName,
		instanceID: config.InstanceID,
		log:        config.Logger.Named("redis_eventbus"),
		ctx:        runCtx,
		cancel:     cancel,
		closed:     make(chan struct{}),
	}

	b.wg.Add(1)
	go b.listen(pubsub.Channel())
	return b, nil
}

// Subscribe registers a handler for one event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.local.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for every event type.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.local.SubscribeAll(handler)
}

// Publish sends events to Redis and to local handlers. A Redis failure is
// logged and local delivery still happens.
func (b *RedisEventBus) Publish(events ...shared.Event) error {
	select {
	case <-b.closed:
		return ErrEventBusClosed
	default:
	}

	for _, event := range events {
		if event == nil {
			return errNilEvent
		}
		data, err := json.Marshal(newEnvelope(b.instanceID, event))
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if err := b.client.Publish(b.ctx, b.channel, data).Err(); err != nil {
			b.log.Error("failed to publish to redis",
				logger.String("event_type", string(event.EventType())),
				logger.Err(err),
			)
		}
	}
	return b.local.Publish(events...)
}

func (b *RedisEventBus) listen(messages <-chan *goredis.Message) {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			b.receive(msg.Payload)
		}
	}
}

func (b *RedisEventBus) receive(payload string) {
	var env eventEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.log.Error("failed to decode remote event", logger.Err(err))
		return
	}
	// Already delivered locally.
	if env.InstanceID == b.instanceID {
		return
	}
	if err := b.local.Publish(env.event()); err != nil {
		b.log.Error("failed to deliver remote event", logger.Err(err))
	}
}

// Close unsubscribes and waits for local handlers.
func (b *RedisEventBus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closed)
		b.cancel()
		if cerr := b.pubsub.Close(); cerr != nil {
			b.log.Warn("failed to close subscription", logger.Err(cerr))
		}
		b.wg.Wait()
		err = b.local.Close()
	})
	return err
}

// Stats returns the local bus counters, remote deliveries included.
func (b *RedisEventBus) Stats() Stats {
	return b.local.Stats()
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

// eventEnvelope is the JSON message on the channel.
type eventEnvelope struct {
	InstanceID  string           `json:"instance_id"`
	EventType   shared.EventType `json:"event_type"`
	AggregateID string           `json:"aggregate_id"`
	OccurredAt  time.Time        `json:"occurred_at"`
	Payload     map[string]any   `json:"payload"`
}

func newEnvelope(instanceID string, event shared.Event) eventEnvelope {
	return eventEnvelope{
		InstanceID:  instanceID,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	}
}

func (e eventEnvelope) event() shared.Event {
	return &remoteEvent{
		BaseEvent: shared.NewBaseEvent(e.EventType, e.AggregateID, e.OccurredAt),
		payload:   e.Payload,
	}
}

// remoteEvent is an event received from another instance. Numbers in its
// payload decode as float64.
type remoteEvent struct {
	shared.BaseEvent
	payload map[string]any
}

func (e *remoteEvent) Payload() map[string]any {
	return e.payload
}
