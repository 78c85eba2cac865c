package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/drydock-sh/shakedown/internal/events"
	"github.com/drydock-sh/shakedown/internal/history"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HealthzHandler reports liveness.
// GET /healthz
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// RunsHandler lists recent recorded runs as JSON, newest first.
// GET /api/runs
func RunsHandler(store *history.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if store == nil {
			http.Error(w, "run history is disabled", http.StatusNotFound)
			return
		}

		runs, err := store.ListRuns(50)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if runs == nil {
			runs = []*history.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

// RunHandler returns one recorded run with its steps.
// GET /api/runs/{id}
func RunHandler(store *history.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if store == nil {
			http.Error(w, "run history is disabled", http.StatusNotFound)
			return
		}

		id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		if id == "" || strings.Contains(id, "/") {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}

		run, err := store.GetRun(id)
		if errors.Is(err, history.ErrNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

// EventsHandler provides the SSE stream of pipeline events.
// GET /api/events
func EventsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "SSE not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		// Initial comment establishes the connection
		fmt.Fprintf(w, ": connected\n\n")
		flusher.Flush()

		c := newClient()
		hub.add(c)
		defer hub.remove(c)

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-c.events:
				if !ok {
					return
				}
				// Same wire shape as the NDJSON stream from `run --json`.
				data, _ := json.Marshal(events.Wire(e))
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
				flusher.Flush()
			}
		}
	}
}

// HooksHandler receives GitHub-shaped webhook deliveries, verifies
// their signature, applies the branch gate, and dispatches a run.
// POST /hooks/push
func HooksHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusInternalServerError)
			return
		}
		if len(body) == 0 {
			http.Error(w, "empty body", http.StatusBadRequest)
			return
		}

		if len(s.secret) > 0 {
			if err := verifySignature(s.secret, body, r.Header.Get("X-Hub-Signature-256")); err != nil {
				s.emit(events.NewEvent(events.TriggerRejected, "").WithError(err))
				http.Error(w, "signature verification failed", http.StatusUnauthorized)
				return
			}
		}

		eventType := r.Header.Get("X-GitHub-Event")
		if eventType == "" {
			http.Error(w, "missing X-GitHub-Event header", http.StatusBadRequest)
			return
		}
		if eventType == "ping" {
			writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
			return
		}

		s.emit(events.NewEvent(events.TriggerReceived, "").WithPayload(map[string]any{
			"event":    eventType,
			"delivery": r.Header.Get("X-GitHub-Delivery"),
		}))

		dec, err := decide(eventType, body, s.branch)
		if err != nil {
			s.emit(events.NewEvent(events.TriggerIgnored, "").WithError(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !dec.dispatch {
			s.emit(events.NewEvent(events.TriggerIgnored, "").WithPayload(map[string]any{
				"reason": dec.reason,
			}))
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored", "reason": dec.reason})
			return
		}

		if err := s.Dispatch(dec.trigger, dec.sha); err != nil {
			s.emit(events.NewEvent(events.TriggerRejected, "").WithError(err))
			if errors.Is(err, ErrBusy) {
				writeJSON(w, http.StatusConflict, map[string]string{"status": "busy", "error": err.Error()})
				return
			}
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}

		s.emit(events.NewEvent(events.TriggerDispatched, "").WithPayload(map[string]any{
			"trigger": dec.trigger,
		}))
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "dispatched", "trigger": dec.trigger})
	}
}
