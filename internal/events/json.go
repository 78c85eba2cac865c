package events

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// WireEvent is the serialized event shape. Both machine surfaces emit
// it: the NDJSON stream `run --json` writes to stdout, and the data
// field of the serve-mode SSE stream.
type WireEvent struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Run       string         `json:"run,omitempty"`
	Step      string         `json:"step,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Wire converts an Event to its serialized shape. Scalar payloads are
// wrapped under a "value" key so the wire payload is always an object.
func Wire(e Event) WireEvent {
	we := WireEvent{
		Type:      string(e.Type),
		Timestamp: e.Time,
		Run:       e.Run,
		Step:      e.Step,
		Error:     e.Error,
	}
	switch p := e.Payload.(type) {
	case nil:
	case map[string]any:
		we.Payload = p
	default:
		we.Payload = map[string]any{"value": p}
	}
	return we
}

// IsJSONMode reports whether event output should be NDJSON: forced by
// flag, or stdout is not a terminal (CI, pipes).
func IsJSONMode(force bool) bool {
	if force {
		return true
	}
	if os.Stdout == nil {
		return true
	}
	return !term.IsTerminal(int(os.Stdout.Fd()))
}

// JSONEmitter writes one WireEvent per line. Safe for concurrent use.
type JSONEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONEmitter creates an emitter writing newline-delimited JSON to w.
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{enc: json.NewEncoder(w)}
}

// Emit serializes one event as a single line.
func (e *JSONEmitter) Emit(event Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(Wire(event))
}

// JSONEmitterHandler adapts an emitter to the bus Handler signature.
// Write failures are logged; the bus has nowhere to surface them.
func JSONEmitterHandler(emitter *JSONEmitter) Handler {
	return func(e Event) {
		if err := emitter.Emit(e); err != nil {
			log.Printf("WARN: failed to emit JSON event: %v", err)
		}
	}
}
