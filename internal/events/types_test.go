package events

import (
	"errors"
	"testing"
)

func TestEventBuilders(t *testing.T) {
	base := NewEvent(StepFailed, "01JRUN")
	if base.Type != StepFailed || base.Run != "01JRUN" {
		t.Fatalf("NewEvent built %+v", base)
	}

	e := base.WithStep("build").
		WithPayload(map[string]string{"image": "example/app:latest"}).
		WithError(errors.New("image build failed"))

	if e.Step != "build" {
		t.Errorf("Step = %q, expected build", e.Step)
	}
	payload, ok := e.Payload.(map[string]string)
	if !ok || payload["image"] != "example/app:latest" {
		t.Errorf("Payload = %v", e.Payload)
	}
	if e.Error != "image build failed" {
		t.Errorf("Error = %q", e.Error)
	}

	// Builders return copies; the base event stays clean.
	if base.Step != "" || base.Payload != nil || base.Error != "" {
		t.Errorf("base event mutated: %+v", base)
	}
}

func TestEvent_WithError_Nil(t *testing.T) {
	e := NewEvent(StepCompleted, "01JRUN").WithError(nil)
	if e.Error != "" {
		t.Errorf("Error = %q, expected empty for nil error", e.Error)
	}
}

func TestEvent_IsFailure(t *testing.T) {
	for _, typ := range []EventType{RunFailed, StepFailed, HistoryFailed} {
		if !NewEvent(typ, "01JRUN").IsFailure() {
			t.Errorf("%s should count as a failure", typ)
		}
	}
	for _, typ := range []EventType{RunCompleted, StepStarted, TriggerIgnored, TriggerRejected} {
		if NewEvent(typ, "01JRUN").IsFailure() {
			t.Errorf("%s should not count as a failure", typ)
		}
	}
}

func TestEvent_String(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"type only", NewEvent(TriggerReceived, ""), "[trigger.received]"},
		{"with run", NewEvent(RunStarted, "01JRUN"), "[run.started] 01JRUN"},
		{"run and step", NewEvent(StepCompleted, "01JRUN").WithStep("push"), "[step.completed] 01JRUN step=push"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.String(); got != tt.want {
				t.Errorf("String() = %q, expected %q", got, tt.want)
			}
		})
	}
}
