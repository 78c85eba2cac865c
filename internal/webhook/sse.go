package webhook

import (
	"sync"

	"github.com/drydock-sh/shakedown/internal/events"
)

// Hub fans pipeline events out to connected SSE clients. A single Run
// goroutine owns all membership changes; the mutex only covers the map
// reads Count and fan-out perform.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	register   chan *client
	unregister chan *client
	broadcast  chan events.Event

	done     chan struct{}
	stopOnce sync.Once
}

// client is one connected event-stream consumer.
type client struct {
	events chan events.Event
}

func newClient() *client {
	return &client{events: make(chan events.Event, 256)}
}

// NewHub returns a hub ready for Run.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan events.Event),
		done:       make(chan struct{}),
	}
}

// Run serializes joins, leaves, and fan-out until Stop is called.
// Start it in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.dropClient(c)
		case e := <-h.broadcast:
			h.fanOut(e)
		}
	}
}

func (h *Hub) dropClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.events)
	}
}

// fanOut delivers e to every client with buffer room. Slow consumers lose
// events rather than stalling the hub.
func (h *Hub) fanOut(e events.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.events <- e:
		default:
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.events)
	}
	h.clients = make(map[*client]struct{})
}

// Stop shuts the hub down and disconnects every client. Safe to call more
// than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast sends an event to all connected clients. It satisfies
// events.Handler, so the hub can subscribe directly to a bus. Safe to
// call after Stop; the event is dropped.
func (h *Hub) Broadcast(e events.Event) {
	select {
	case h.broadcast <- e:
	case <-h.done:
	}
}

// Count reports how many clients are connected.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) remove(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
