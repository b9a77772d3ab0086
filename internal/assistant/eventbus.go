package assistant

import (
	"sync"
	"time"
)

// EventType names a step in handling one utterance.
type EventType string

const (
	EventInputReceived  EventType = "input_received"
	EventCommandMatched EventType = "command_matched"
	EventLLMRequest     EventType = "llm_request"
	EventLLMResponse    EventType = "llm_response"
	EventLLMFallback    EventType = "llm_fallback"
	EventTurnRecorded   EventType = "turn_recorded"
	EventResponseReady  EventType = "response_ready"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Data      map[string]any
}

// EventHandler runs synchronously on the publishing goroutine.
type EventHandler func(Event)

// EventBus fans events out to subscribers.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]EventHandler
	allHandlers []EventHandler
}

func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Subscribe registers a handler for one event type.
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (eb *EventBus) SubscribeAll(handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allHandlers = append(eb.allHandlers, handler)
}

func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	handlers := append([]EventHandler(nil), eb.handlers[event.Type]...)
	handlers = append(handlers, eb.allHandlers...)
	eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, handler := range handlers {
		handler(event)
	}
}

func (eb *EventBus) PublishWithData(eventType EventType, sessionID string, data map[string]any) {
	eb.Publish(Event{
		Type:      eventType,
		SessionID: sessionID,
		Data:      data,
	})
}
