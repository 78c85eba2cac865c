package events

import (
	"fmt"
	"strings"
	"time"
)

// Event is one occurrence in a pipeline run's lifecycle. Events only
// travel in-process (bus subscribers); WireEvent is the serialized
// form for NDJSON and SSE consumers.
type Event struct {
	// Time is stamped by the bus on emit.
	Time time.Time

	Type EventType

	// Run is the ULID of the run this event belongs to. Trigger
	// events fire before a run exists and leave it empty.
	Run string

	// Step names the pipeline step for step.* events.
	Step string

	// Payload carries event-specific data; shape varies by Type.
	Payload any

	// Error holds the failure message on *.failed events.
	Error string
}

// EventType names what happened, dotted by subject ("step.failed").
type EventType string

// Run lifecycle events
const (
	RunStarted   EventType = "run.started"
	RunCompleted EventType = "run.completed"
	RunFailed    EventType = "run.failed"
)

// Step lifecycle events
const (
	StepStarted   EventType = "step.started"
	StepCompleted EventType = "step.completed"
	StepFailed    EventType = "step.failed"
	StepSkipped   EventType = "step.skipped"

	// StepOutput carries captured tool output for human inspection.
	// Payload: output (string)
	StepOutput EventType = "step.output"
)

// Trigger events (serve mode)
const (
	TriggerReceived   EventType = "trigger.received"
	TriggerIgnored    EventType = "trigger.ignored"
	TriggerDispatched EventType = "trigger.dispatched"
	TriggerRejected   EventType = "trigger.rejected"
)

// HistoryFailed signals that a best-effort history write did not land.
// The run itself is unaffected.
const HistoryFailed EventType = "history.failed"

// NewEvent creates an event of the given type for a run.
func NewEvent(eventType EventType, run string) Event {
	return Event{Type: eventType, Run: run}
}

// WithStep returns a copy carrying the step name.
func (e Event) WithStep(step string) Event {
	e.Step = step
	return e
}

// WithPayload returns a copy carrying the payload.
func (e Event) WithPayload(payload any) Event {
	e.Payload = payload
	return e
}

// WithError returns a copy carrying err's message. A nil err leaves
// the event unchanged.
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// IsFailure reports whether the event marks something going wrong.
func (e Event) IsFailure() bool {
	return strings.HasSuffix(string(e.Type), ".failed")
}

// String renders a compact human-readable tag, e.g.
// "[step.started] 01JRUN step=build".
func (e Event) String() string {
	s := fmt.Sprintf("[%s]", e.Type)
	if e.Run != "" {
		s += " " + e.Run
	}
	if e.Step != "" {
		s += " step=" + e.Step
	}
	return s
}
