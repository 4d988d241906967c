// internal/handler/event_bus.go
package handler

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"makino-adapter/internal/model"
)

// AllEvents subscribes to every event type
const AllEvents = "*"

// EventBus manages event distribution
type EventBus struct {
	subscribers map[string][]chan model.AdapterEvent
	events      chan model.AdapterEvent
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan model.AdapterEvent),
		events:      make(chan model.AdapterEvent, 1000),
		logger:      logger,
	}
}

// Start distributes events until ctx is done
func (eb *EventBus) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eb.events:
			eb.distributeEvent(event)
		}
	}
}

// Publish publishes an event
func (eb *EventBus) Publish(event model.AdapterEvent) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
		)
	}
}

// PublishEvent publishes an event; it never blocks
func (eb *EventBus) PublishEvent(_ context.Context, event model.AdapterEvent) error {
	eb.Publish(event)
	return nil
}

// Subscribe subscribes to events of a specific type, or AllEvents
func (eb *EventBus) Subscribe(eventType string) <-chan model.AdapterEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan model.AdapterEvent, 100)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
	return subscriber
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event model.AdapterEvent) {
	eb.mutex.RLock()
	subscribers := append([]chan model.AdapterEvent(nil), eb.subscribers[string(event.EventType)]...)
	subscribers = append(subscribers, eb.subscribers[AllEvents]...)
	eb.mutex.RUnlock()

	for _, subscriber := range subscribers {
		select {
		case subscriber <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
