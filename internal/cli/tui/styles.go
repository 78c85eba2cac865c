package tui

import "github.com/charmbracelet/lipgloss"

// Styles groups every lipgloss style the view draws with.
type Styles struct {
	// Header
	Title lipgloss.Style
	Timer lipgloss.Style
	Image lipgloss.Style

	// Step list
	StepPending lipgloss.Style
	StepRunning lipgloss.Style
	StepOK      lipgloss.Style
	StepFailed  lipgloss.Style
	StepSkipped lipgloss.Style
	StepName    lipgloss.Style
	Duration    lipgloss.Style
	ErrorText   lipgloss.Style

	// Container output tail
	OutputTitle lipgloss.Style
	OutputLine  lipgloss.Style

	// Footer
	Footer    lipgloss.Style
	FooterKey lipgloss.Style
}

// DefaultStyles is the stock palette; orange for running, green for ok,
// red for failures.
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Timer: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Image: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),

		StepPending: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		StepRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		StepOK:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		StepFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		StepSkipped: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		StepName:    lipgloss.NewStyle().Bold(true),
		Duration:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		ErrorText:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Italic(true),

		OutputTitle: lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Bold(true),
		OutputLine:  lipgloss.NewStyle().Foreground(lipgloss.Color("250")),

		Footer:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")).MarginTop(1),
		FooterKey: lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
	}
}

// Icons used in the step list
const (
	IconPending = "○"
	IconRunning = "●"
	IconOK      = "✓"
	IconFailed  = "✗"
	IconSkipped = "→"
)
