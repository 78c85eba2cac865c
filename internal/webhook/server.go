// Package webhook runs the serve-mode HTTP surface: GitHub-shaped push
// triggers, recorded runs as JSON, and an SSE stream of pipeline events.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/drydock-sh/shakedown/internal/events"
	"github.com/drydock-sh/shakedown/internal/history"
	"github.com/drydock-sh/shakedown/internal/pipeline"
	"github.com/drydock-sh/shakedown/internal/source"
)

// ErrBusy is returned by Dispatch while a run is in flight. The
// verification container is an exclusive resource, so runs never
// overlap.
var ErrBusy = errors.New("a run is already in flight")

// ErrStopping is returned by Dispatch once shutdown has begun.
var ErrStopping = errors.New("server is shutting down")

// Runner executes one pipeline run per trigger. *pipeline.Engine
// satisfies it.
type Runner interface {
	Run(ctx context.Context, trigger string) (*pipeline.Result, error)
}

// Config assembles a Server's dependencies.
type Config struct {
	// Addr is the listen address, e.g. ":9464"
	Addr string

	// Branch gates which deliveries dispatch runs
	Branch string

	// Secret verifies X-Hub-Signature-256 headers; empty disables
	// signature verification
	Secret []byte

	// SourceDir is the working copy synced before runs when Update is
	// set
	SourceDir string
	Update    bool

	Runner Runner
	Store  *history.Store // nil disables /api/runs and recording
	Bus    *events.Bus    // nil disables event emission
}

// Server accepts webhook deliveries and executes pipeline runs one at
// a time on its work loop.
type Server struct {
	addr   string
	branch string
	secret []byte

	dir    string
	update bool

	runner Runner
	store  *history.Store
	bus    *events.Bus
	hub    *Hub

	httpServer *http.Server

	mu       sync.Mutex
	busy     bool
	stopping bool

	runs chan job
	done chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
}

// job is one dispatched trigger waiting for the work loop.
type job struct {
	trigger string
	sha     string
}

// New creates a server wired to the given runner. It does not listen
// yet; call Start for that.
func New(cfg Config) (*Server, error) {
	if cfg.Runner == nil {
		return nil, errors.New("webhook: runner is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9464"
	}

	runCtx, runCancel := context.WithCancel(context.Background())

	s := &Server{
		addr:      cfg.Addr,
		branch:    cfg.Branch,
		secret:    cfg.Secret,
		dir:       cfg.SourceDir,
		update:    cfg.Update,
		runner:    cfg.Runner,
		store:     cfg.Store,
		bus:       cfg.Bus,
		hub:       NewHub(),
		runs:      make(chan job, 1),
		done:      make(chan struct{}),
		runCtx:    runCtx,
		runCancel: runCancel,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", HealthzHandler())
	mux.HandleFunc("/hooks/push", HooksHandler(s))
	mux.HandleFunc("/api/runs", RunsHandler(s.store))
	mux.HandleFunc("/api/runs/", RunHandler(s.store))
	mux.HandleFunc("/api/events", EventsHandler(s.hub))

	s.httpServer = &http.Server{Addr: cfg.Addr, Handler: mux}

	return s, nil
}

// Start binds the listener and serves in background goroutines. After
// it returns, Addr reports the bound address (useful for ":0").
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("webhook listen: %w", err)
	}
	s.addr = listener.Addr().String()

	go s.hub.Run()
	if s.bus != nil {
		s.bus.Subscribe(s.hub.Broadcast)
	}
	go s.work()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			_ = err // the listener was healthy at Start; nothing to do here
		}
	}()

	return nil
}

// Stop shuts the server down: refuse new triggers, let an in-flight
// run finish, release the SSE clients, then close the listener. If ctx
// expires first the run is cancelled; the engine still tears its
// container down before returning. The hub stops only after the drain
// so clients see the final events of the in-flight run.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.stopping {
		s.stopping = true
		close(s.runs)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-ctx.Done():
		s.runCancel()
		<-s.done
	}

	s.hub.Stop()
	s.runCancel()

	return s.httpServer.Shutdown(ctx)
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Dispatch reserves the single run slot and queues a run. It returns
// ErrBusy while a run is in flight and ErrStopping during shutdown.
func (s *Server) Dispatch(trigger, sha string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return ErrStopping
	}
	if s.busy {
		return ErrBusy
	}
	s.busy = true
	s.runs <- job{trigger: trigger, sha: sha}
	return nil
}

// work executes dispatched runs one at a time. Results land in history
// when a store is configured; a recording failure warns on the bus but
// never fails the run.
func (s *Server) work() {
	defer close(s.done)

	for j := range s.runs {
		if s.update && j.sha != "" {
			// Best-effort: a failed sync still runs against the current
			// tree, and the recorded snapshot shows which commit that
			// actually was.
			_ = source.Sync(s.runCtx, s.dir, j.sha)
		}

		res, _ := s.runner.Run(s.runCtx, j.trigger)
		if s.store != nil && res != nil {
			if err := history.Record(s.store, res); err != nil {
				s.emit(events.NewEvent(events.HistoryFailed, res.ID).WithError(err))
			}
		}

		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}
}

func (s *Server) emit(e events.Event) {
	if s.bus != nil {
		s.bus.Emit(e)
	}
}
