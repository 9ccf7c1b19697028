package events

import (
	"sync"
	"time"
)

// Handler is a callback invoked for each delivered event.
type Handler func(event *Event)

// Bus is an in-process publish/subscribe event bus.
// Subscribers are invoked synchronously in subscription order; handlers
// that need to block should hand off to their own goroutine or channel.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      map[int]Handler
	nextID   int
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		all:      make(map[int]Handler),
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler for every event type and returns a
// function that removes the subscription. Long-lived stream consumers
// (SSE, websocket) must call it on disconnect.
func (b *Bus) SubscribeAll(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.all[id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.all, id)
	}
}

// Emit publishes an event to all matching subscribers
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Module:    module,
	}
	b.Publish(event)
}

// Publish delivers an already-constructed event
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	typed := make([]Handler, len(b.handlers[event.Type]))
	copy(typed, b.handlers[event.Type])
	all := make([]Handler, 0, len(b.all))
	for _, h := range b.all {
		all = append(all, h)
	}
	b.mu.RUnlock()

	for _, h := range typed {
		h(event)
	}
	for _, h := range all {
		h(event)
	}
}
