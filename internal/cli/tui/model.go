package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Step statuses as displayed in the step list.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// StepState is one pipeline step's row in the step list.
type StepState struct {
	Name     string
	Status   string
	Duration string
	Error    string
}

// Model renders a live run: header, step list, output tail, footer.
type Model struct {
	// Configuration
	Steps  []*StepState
	Styles Styles

	// State
	RunID      string
	Image      string
	Container  string
	StartTime  time.Time
	Elapsed    time.Duration
	OutputTail []string
	OutputMax  int
	Width      int
	Height     int

	// Control
	Quitting bool
	Done     bool
	Failed   bool
	FinalErr string
}

// NewModel creates a new TUI model for the given step names, in order.
func NewModel(stepNames []string) *Model {
	steps := make([]*StepState, 0, len(stepNames))
	for _, name := range stepNames {
		steps = append(steps, &StepState{Name: name, Status: StatusPending})
	}
	return &Model{
		Steps:     steps,
		Styles:    DefaultStyles(),
		StartTime: time.Now(),
		OutputMax: 12,
	}
}

// step returns the state for the named step, or nil if unknown.
func (m *Model) step(name string) *StepState {
	for _, s := range m.Steps {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
	)
}

// TickMsg drives the elapsed-time display, once per second.
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// DoneMsg tells the TUI to exit; the run has finished and the summary
// prints outside the alt screen.
type DoneMsg struct{}

// RunStartedMsg indicates a pipeline run has started
type RunStartedMsg struct {
	RunID     string
	Image     string
	Container string
}

// StepStartedMsg indicates a step has started
type StepStartedMsg struct {
	Step string
}

// StepCompletedMsg indicates a step has completed successfully
type StepCompletedMsg struct {
	Step     string
	Duration string
}

// StepFailedMsg indicates a step has failed
type StepFailedMsg struct {
	Step     string
	Duration string
	Error    string
}

// StepSkippedMsg indicates a step was skipped after an earlier failure
type StepSkippedMsg struct {
	Step string
}

// StepOutputMsg carries captured container output lines
type StepOutputMsg struct {
	Lines []string
}

// RunFinishedMsg indicates the run has finished, one way or the other
type RunFinishedMsg struct {
	Failed bool
	Error  string
}
