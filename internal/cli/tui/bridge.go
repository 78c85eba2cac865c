package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/drydock-sh/shakedown/internal/events"
)

// Bridge feeds bus events into a running bubbletea program as messages.
type Bridge struct {
	program *tea.Program
}

func NewBridge(program *tea.Program) *Bridge {
	return &Bridge{program: program}
}

// Handler returns the bus subscription. Events with no TUI meaning are
// dropped here rather than in the model.
func (b *Bridge) Handler() events.Handler {
	return func(evt events.Event) {
		if msg := translate(evt); msg != nil {
			b.program.Send(msg)
		}
	}
}

// SendDone tells the program the run is over and it should exit.
func (b *Bridge) SendDone() {
	b.program.Send(DoneMsg{})
}

// payloadString pulls a string field out of a map payload, or "".
func payloadString(evt events.Event, key string) string {
	payload, ok := evt.Payload.(map[string]any)
	if !ok {
		return ""
	}
	v, _ := payload[key].(string)
	return v
}

func translate(evt events.Event) tea.Msg {
	switch evt.Type {
	case events.RunStarted:
		return RunStartedMsg{
			RunID:     evt.Run,
			Image:     payloadString(evt, "image"),
			Container: payloadString(evt, "container"),
		}

	case events.StepStarted:
		return StepStartedMsg{Step: evt.Step}

	case events.StepCompleted:
		return StepCompletedMsg{
			Step:     evt.Step,
			Duration: payloadString(evt, "duration"),
		}

	case events.StepFailed:
		return StepFailedMsg{
			Step:     evt.Step,
			Duration: payloadString(evt, "duration"),
			Error:    evt.Error,
		}

	case events.StepSkipped:
		return StepSkippedMsg{Step: evt.Step}

	case events.StepOutput:
		output := payloadString(evt, "output")
		if output == "" {
			return nil
		}
		return StepOutputMsg{
			Lines: strings.Split(strings.TrimRight(output, "\n"), "\n"),
		}

	case events.RunCompleted:
		return RunFinishedMsg{}

	case events.RunFailed:
		return RunFinishedMsg{Failed: true, Error: evt.Error}

	default:
		return nil
	}
}
