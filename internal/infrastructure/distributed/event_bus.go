package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"qosmon/internal/core/domain"
	"qosmon/internal/core/ports"
	"qosmon/pkg/circuitbreaker"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	eventsChannel  = "qos:events"
	publishTimeout = 500 * time.Millisecond
	relayQueueSize = 256
)

// Event represents a distributed event
type Event struct {
	Type       domain.EventType `json:"type"`
	InstanceID string           `json:"instance_id"`
	Timestamp  time.Time        `json:"timestamp"`
	SessionID  domain.SessionID `json:"session_id"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
}

// Metrics decodes the payload of an EventMetrics event.
func (e *Event) Metrics() (domain.MetricsEvent, error) {
	var ev domain.MetricsEvent
	if e.Type != domain.EventMetrics {
		return ev, fmt.Errorf("event type %q is not %q", e.Type, domain.EventMetrics)
	}
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return ev, fmt.Errorf("failed to unmarshal metrics payload: %w", err)
	}
	return ev, nil
}

// Alerts decodes the payload of an EventAlerts event.
func (e *Event) Alerts() (domain.AlertsEvent, error) {
	var ev domain.AlertsEvent
	if e.Type != domain.EventAlerts {
		return ev, fmt.Errorf("event type %q is not %q", e.Type, domain.EventAlerts)
	}
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return ev, fmt.Errorf("failed to unmarshal alerts payload: %w", err)
	}
	return ev, nil
}

// EventBus fans monitoring events out to the other qosmon instances over
// Redis pub/sub, so a feed client connected anywhere sees every session.
type EventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	breaker    *circuitbreaker.CircuitBreaker
	dropped    atomic.Uint64

	mu     sync.Mutex
	pubsub *redis.PubSub
}

// NewEventBus creates a new event bus. An empty instanceID gets a random one.
func NewEventBus(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *EventBus {
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	eb := &EventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
		breaker:    circuitbreaker.New(circuitbreaker.DefaultConfig()),
	}
	eb.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("event bus circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})
	return eb
}

func (eb *EventBus) InstanceID() string {
	return eb.instanceID
}

// Publish publishes an event to the event bus
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := eb.client.Publish(ctx, eventsChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"session_id", event.SessionID,
	)
	return nil
}

func (eb *EventBus) PublishMetrics(ctx context.Context, ev domain.MetricsEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics event: %w", err)
	}
	return eb.Publish(ctx, &Event{Type: domain.EventMetrics, SessionID: ev.SessionID, Payload: payload})
}

func (eb *EventBus) PublishAlerts(ctx context.Context, ev domain.AlertsEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal alerts event: %w", err)
	}
	return eb.Publish(ctx, &Event{Type: domain.EventAlerts, SessionID: ev.SessionID, Payload: payload})
}

// BreakerState reports the state of the breaker guarding relayed publishes.
func (eb *EventBus) BreakerState() circuitbreaker.State {
	return eb.breaker.GetState()
}

// Dropped returns how many relayed events were discarded on a full queue.
func (eb *EventBus) Dropped() uint64 {
	return eb.dropped.Load()
}

type relayItem struct {
	metrics *domain.MetricsEvent
	alerts  *domain.AlertsEvent
}

// Relay forwards every event of the local monitoring service to the bus.
// Handlers only enqueue; a single goroutine publishes behind a circuit
// breaker. A full queue drops the event, so a slow Redis never holds up a
// monitoring tick.
func (eb *EventBus) Relay(local ports.EventSubscriber) (stop func()) {
	queue := make(chan relayItem, relayQueueSize)
	quit := make(chan struct{})
	done := make(chan struct{})

	enqueue := func(item relayItem, sessionID domain.SessionID) {
		select {
		case queue <- item:
		default:
			eb.dropped.Add(1)
			eb.logger.Debugw("relay queue full, dropping event", "session_id", sessionID)
		}
	}

	unsubMetrics := local.SubscribeMetrics(func(ev domain.MetricsEvent) {
		enqueue(relayItem{metrics: &ev}, ev.SessionID)
	})
	unsubAlerts := local.SubscribeAlerts(func(ev domain.AlertsEvent) {
		enqueue(relayItem{alerts: &ev}, ev.SessionID)
	})

	go func() {
		defer close(done)
		for {
			select {
			case <-quit:
				return
			case item := <-queue:
				eb.relay(item)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubMetrics()
			unsubAlerts()
			close(quit)
			<-done
		})
	}
}

func (eb *EventBus) relay(item relayItem) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	var sessionID domain.SessionID
	err := eb.breaker.Execute(ctx, func() error {
		if item.metrics != nil {
			sessionID = item.metrics.SessionID
			return eb.PublishMetrics(ctx, *item.metrics)
		}
		sessionID = item.alerts.SessionID
		return eb.PublishAlerts(ctx, *item.alerts)
	})
	switch {
	case err == nil:
	case errors.Is(err, circuitbreaker.ErrOpen):
		eb.logger.Debugw("event bus unavailable, event not relayed", "error", err)
	default:
		eb.logger.Warnw("failed to relay event", "session_id", sessionID, "error", err)
	}
}

// Subscribe delivers events published by other instances until ctx is done.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	eb.mu.Lock()
	if eb.pubsub != nil {
		eb.mu.Unlock()
		return fmt.Errorf("already subscribed")
	}
	pubsub := eb.client.Subscribe(ctx, eventsChannel)
	eb.pubsub = pubsub
	eb.mu.Unlock()

	defer func() {
		eb.mu.Lock()
		eb.pubsub = nil
		eb.mu.Unlock()
		pubsub.Close()
	}()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", eventsChannel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			// Skip events from this instance
			if event.InstanceID == eb.instanceID {
				continue
			}

			if err := handler(&event); err != nil {
				eb.logger.Warnw("error handling event",
					"type", event.Type,
					"session_id", event.SessionID,
					"error", err,
				)
			}
		}
	}
}

// Close closes the event bus
func (eb *EventBus) Close() error {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}
