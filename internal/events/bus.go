package events

import (
	"sync"
	"time"
)

// Handler processes a single event. Handlers must not block for long;
// they run on the bus dispatch goroutine in subscription order.
type Handler func(Event)

// Bus distributes events to subscribed handlers.
// Emit is safe for concurrent use; delivery order matches emit order.
type Bus struct {
	events chan Event
	done   chan struct{}

	stateMu sync.RWMutex
	closed  bool

	handlerMu sync.RWMutex
	handlers  []Handler
}

// NewBus creates an event bus with the given buffer capacity and starts
// its dispatch loop.
func NewBus(capacity int) *Bus {
	b := &Bus{
		events: make(chan Event, capacity),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

// Subscribe registers a handler for all subsequent events.
func (b *Bus) Subscribe(h Handler) {
	if h == nil {
		return
	}
	b.handlerMu.Lock()
	b.handlers = append(b.handlers, h)
	b.handlerMu.Unlock()
}

// Emit queues an event for delivery. The event time is stamped here if unset.
// Emitting on a closed bus is a no-op.
func (b *Bus) Emit(e Event) {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	if b.closed {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.events <- e
}

// Close stops the bus after delivering all queued events.
// Safe to call multiple times.
func (b *Bus) Close() error {
	b.stateMu.Lock()
	if b.closed {
		b.stateMu.Unlock()
		return nil
	}
	b.closed = true
	b.stateMu.Unlock()

	close(b.events)
	<-b.done
	return nil
}

func (b *Bus) run() {
	defer close(b.done)
	for e := range b.events {
		b.handlerMu.RLock()
		handlers := make([]Handler, len(b.handlers))
		copy(handlers, b.handlers)
		b.handlerMu.RUnlock()

		for _, h := range handlers {
			h(e)
		}
	}
}
