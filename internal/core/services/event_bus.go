package services

import (
	"sync"

	"qosmon/internal/core/domain"
	"qosmon/internal/core/ports"

	"go.uber.org/zap"
)

// EventBus fans out tick results to in-process subscribers. Handlers run
// synchronously on the publishing goroutine; a panicking handler is logged
// and does not prevent delivery to the others.
type EventBus struct {
	mu      sync.RWMutex
	nextID  uint64
	metrics map[uint64]ports.MetricsHandler
	alerts  map[uint64]ports.AlertsHandler
	logger  *zap.SugaredLogger
}

func NewEventBus(logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		metrics: make(map[uint64]ports.MetricsHandler),
		alerts:  make(map[uint64]ports.AlertsHandler),
		logger:  logger,
	}
}

func (b *EventBus) SubscribeMetrics(handler ports.MetricsHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.metrics[id] = handler

	return func() {
		b.mu.Lock()
		delete(b.metrics, id)
		b.mu.Unlock()
	}
}

func (b *EventBus) SubscribeAlerts(handler ports.AlertsHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.alerts[id] = handler

	return func() {
		b.mu.Lock()
		delete(b.alerts, id)
		b.mu.Unlock()
	}
}

func (b *EventBus) PublishMetrics(event domain.MetricsEvent) {
	b.mu.RLock()
	handlers := make([]ports.MetricsHandler, 0, len(b.metrics))
	for _, h := range b.metrics {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(domain.EventMetrics, event.SessionID, func() { h(event) })
	}
}

func (b *EventBus) PublishAlerts(event domain.AlertsEvent) {
	b.mu.RLock()
	handlers := make([]ports.AlertsHandler, 0, len(b.alerts))
	for _, h := range b.alerts {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(domain.EventAlerts, event.SessionID, func() { h(event) })
	}
}

// Reset drops every subscriber.
func (b *EventBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics = make(map[uint64]ports.MetricsHandler)
	b.alerts = make(map[uint64]ports.AlertsHandler)
}

func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.metrics) + len(b.alerts)
}

func (b *EventBus) deliver(eventType domain.EventType, sessionID domain.SessionID, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorw("event handler panicked",
				"event", eventType,
				"session_id", sessionID,
				"panic", r,
			)
		}
	}()
	fn()
}
