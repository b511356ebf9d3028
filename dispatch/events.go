package dispatch

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType identifies an outbound notification.
type EventType string

const (
	EventAgentRegistered         EventType = "agent.registered"
	EventAgentDecommissioned     EventType = "agent.decommissioned"
	EventAgentPerformanceUpdated EventType = "agent.performance_updated"
	EventSessionCreated          EventType = "session.created"
	EventSessionCompleted        EventType = "session.completed"
	EventSessionAbandoned        EventType = "session.abandoned"
	EventSessionHandoff          EventType = "session.handoff"
	EventServicePosted           EventType = "service.posted"
	EventServiceUpdated          EventType = "service.updated"
	EventServiceRemoved          EventType = "service.removed"
)

// Event is a fire-and-forget notification for external observers.
// Delivery is asynchronous and unordered; the dispatch core never
// waits on handlers.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	AgentID   string `json:"agent_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	ServiceID string `json:"service_id,omitempty"`

	// Reason carries the handoff reason for session.handoff events.
	Reason string `json:"reason,omitempty"`
}

// Handler receives published events.
type Handler func(*Event)

// EventBus fans events out to subscribed handlers. Handlers run on
// their own goroutines; a slow handler never blocks publication.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *zap.Logger
}

// NewEventBus creates an event bus.
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		handlers: make(map[string]Handler),
		logger:   logger.With(zap.String("component", "event_bus")),
	}
}

// Subscribe registers a handler and returns its subscription id.
func (b *EventBus) Subscribe(handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.handlers[id] = handler
	return id
}

// Unsubscribe removes a handler by subscription id.
func (b *EventBus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, subscriptionID)
}

// Publish delivers the event to all subscribers asynchronously,
// assigning id and timestamp when unset.
func (b *EventBus) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}
