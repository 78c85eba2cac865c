package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// SignalHandler turns SIGINT/SIGTERM into context cancellation. The
// first signal cancels the run and fires the registered callbacks; the
// pipeline's cleanup step still executes because it runs on its own
// detached context. A second signal aborts the process without waiting
// for that cleanup.
type SignalHandler struct {
	cancel context.CancelFunc

	mu        sync.Mutex
	callbacks []func()

	signals  chan os.Signal
	shutdown chan struct{} // closed once the first signal is handled
	quit     chan struct{} // closed by Stop
	finished chan struct{} // closed when the watch goroutine returns
	stopOnce sync.Once
}

// NewSignalHandler creates a handler that calls cancel on the first
// interrupt. Start must be called before it observes anything.
func NewSignalHandler(cancel context.CancelFunc) *SignalHandler {
	return &SignalHandler{
		cancel:   cancel,
		signals:  make(chan os.Signal, 1),
		shutdown: make(chan struct{}),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// OnShutdown registers fn to run after the first signal cancels the
// context. Callbacks run in registration order.
func (h *SignalHandler) OnShutdown(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = append(h.callbacks, fn)
}

// Start installs the OS signal watch.
func (h *SignalHandler) Start() {
	h.StartWithNotify(true)
}

// StartWithNotify starts the watch goroutine. Passing notify=false
// keeps process-global signal registration out of unit tests; tests
// feed h.signals directly.
func (h *SignalHandler) StartWithNotify(notify bool) {
	if notify {
		signal.Notify(h.signals, syscall.SIGINT, syscall.SIGTERM)
	}
	ready := make(chan struct{})
	go h.watch(ready)
	<-ready
}

func (h *SignalHandler) watch(ready chan<- struct{}) {
	defer close(h.finished)
	close(ready)

	select {
	case <-h.signals:
	case <-h.quit:
		return
	}

	if h.cancel != nil {
		h.cancel()
	}

	h.mu.Lock()
	callbacks := append([]func(){}, h.callbacks...)
	h.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
	close(h.shutdown)

	// The run is winding down, cleanup included. One more signal
	// abandons even that.
	select {
	case <-h.signals:
		fmt.Fprintln(os.Stderr, "aborted")
		os.Exit(130)
	case <-h.quit:
	}
}

// Wait blocks until the first signal has been handled.
func (h *SignalHandler) Wait() {
	<-h.shutdown
}

// Stop uninstalls the signal watch. It never blocks behind an
// in-flight shutdown callback.
func (h *SignalHandler) Stop() {
	signal.Stop(h.signals)
	h.stopOnce.Do(func() { close(h.quit) })
	select {
	case <-h.finished:
	case <-time.After(100 * time.Millisecond):
	}
}
