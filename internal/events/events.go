package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	SlotsRefreshed   = "slots.refreshed"
	BookingResolved  = "booking.resolved"
	BookingSubmitted = "booking.submitted"
)

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the JSON payload into out.
func (e Event) Decode(out any) error {
	return json.Unmarshal(e.Payload, out)
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	seq         atomic.Int64
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish encodes payload as JSON and notifies subscribers of evType.
// Handlers run synchronously; their errors are joined and returned.
func (b *EventBus) Publish(evType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", evType, err)
	}

	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[evType]...)
	b.mu.RUnlock()

	event := Event{
		ID:        b.seq.Add(1),
		Type:      evType,
		Payload:   data,
		CreatedAt: time.Now(),
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, fmt.Errorf("%s handler: %w", evType, err))
		}
	}
	return errors.Join(errs...)
}
