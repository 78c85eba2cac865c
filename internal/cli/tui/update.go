package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.Quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case TickMsg:
		// Freeze the timer once the run is over, keep ticking otherwise.
		if !m.Done {
			m.Elapsed = time.Since(m.StartTime)
		}
		return m, tickCmd()

	case DoneMsg:
		m.Done = true
		return m, tea.Quit

	case RunStartedMsg:
		m.RunID = msg.RunID
		m.Image = msg.Image
		m.Container = msg.Container
		m.StartTime = time.Now()

	case StepStartedMsg:
		if s := m.step(msg.Step); s != nil {
			s.Status = StatusRunning
		}

	case StepCompletedMsg:
		if s := m.step(msg.Step); s != nil {
			s.Status = StatusOK
			s.Duration = msg.Duration
		}

	case StepFailedMsg:
		if s := m.step(msg.Step); s != nil {
			s.Status = StatusFailed
			s.Duration = msg.Duration
			s.Error = msg.Error
		}

	case StepSkippedMsg:
		if s := m.step(msg.Step); s != nil {
			s.Status = StatusSkipped
		}

	case StepOutputMsg:
		m.OutputTail = append(m.OutputTail, msg.Lines...)
		if len(m.OutputTail) > m.OutputMax {
			m.OutputTail = m.OutputTail[len(m.OutputTail)-m.OutputMax:]
		}

	case RunFinishedMsg:
		m.Failed = msg.Failed
		m.FinalErr = msg.Error
		m.Elapsed = time.Since(m.StartTime)
	}

	return m, nil
}
