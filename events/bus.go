// Package events is a small synchronous observer bus. Handlers are invoked in
// subscription order on the publisher's goroutine.
package events

import (
	"slices"
	"sync"
	"time"

	"energylink/logger"

	"github.com/google/uuid"
)

type Type string

const (
	PricingStarted      Type = "pricing_started"
	PricingStopped      Type = "pricing_stopped"
	PriceUpdate         Type = "price_update"
	FetchError          Type = "fetch_error"
	AuditAppended       Type = "audit_appended"
	AuditCleared        Type = "audit_log_cleared"
	SubmissionCompleted Type = "submission_completed"
	SubmissionFailed    Type = "submission_failed"
	OrderRouted         Type = "order_routed"
)

// Event is one notification. Payload is owned by the publisher and must be
// treated as read-only by handlers.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

type Handler func(Event)

// HandlerID identifies a subscription; zero is never issued.
type HandlerID uint64

type Bus struct {
	mu       sync.RWMutex
	handlers map[HandlerID]Handler
	nextID   HandlerID
	log      *logger.Entry
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[HandlerID]Handler),
		log:      logger.GetLogger().WithComponent("events"),
	}
}

// Subscribe registers h for every event. A nil handler returns zero.
func (b *Bus) Subscribe(h Handler) HandlerID {
	if h == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[b.nextID] = h
	return b.nextID
}

// SubscribeTypes registers h only for the listed event types.
func (b *Bus) SubscribeTypes(h Handler, types ...Type) HandlerID {
	if h == nil {
		return 0
	}
	return b.Subscribe(func(e Event) {
		if slices.Contains(types, e.Type) {
			h(e)
		}
	})
}

func (b *Bus) Unsubscribe(id HandlerID) {
	if id == 0 {
		return
	}
	b.mu.Lock()
	delete(b.handlers, id)
	b.mu.Unlock()
}

// Reset detaches every handler.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.handlers = make(map[HandlerID]Handler)
	b.mu.Unlock()
}

// Len returns the number of attached handlers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// Publish builds an event and delivers it to every handler in subscription
// order. A panicking handler is logged and skipped.
func (b *Bus) Publish(t Type, source string, payload any) Event {
	event := Event{
		ID:        uuid.NewString(),
		Type:      t,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	b.mu.RLock()
	if len(b.handlers) == 0 {
		b.mu.RUnlock()
		return event
	}
	ids := make([]HandlerID, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, event)
	}
	return event
}

func (b *Bus) deliver(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithFields(logger.Fields{"event": event.Type, "panic": r}).Error("event handler panicked")
		}
	}()
	h(event)
}
