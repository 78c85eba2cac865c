package tui

import (
	"fmt"
	"strings"
	"time"
)

// View implements tea.Model
func (m *Model) View() string {
	if m.Done || m.Quitting {
		return ""
	}

	sections := []string{m.renderHeader(), "", m.renderSteps()}
	if out := m.renderOutput(); out != "" {
		sections = append(sections, out)
	}
	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

// renderHeader is the title line: app name, elapsed clock, target.
func (m *Model) renderHeader() string {
	timer := fmt.Sprintf("[%s]", formatClock(m.Elapsed))

	target := m.Image
	if m.Container != "" {
		target = fmt.Sprintf("%s as %s", m.Image, m.Container)
	}

	return fmt.Sprintf("%s  %s  %s",
		m.Styles.Title.Render("Shakedown"),
		m.Styles.Timer.Render(timer),
		m.Styles.Image.Render(target),
	)
}

func (m *Model) renderSteps() string {
	lines := make([]string, 0, len(m.Steps)+1)
	for _, s := range m.Steps {
		lines = append(lines, m.renderStep(s))
	}
	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// renderStep renders a single step line: ✓ build (1.2s)
func (m *Model) renderStep(s *StepState) string {
	var icon string
	switch s.Status {
	case StatusRunning:
		icon = m.Styles.StepRunning.Render(IconRunning)
	case StatusOK:
		icon = m.Styles.StepOK.Render(IconOK)
	case StatusFailed:
		icon = m.Styles.StepFailed.Render(IconFailed)
	case StatusSkipped:
		icon = m.Styles.StepSkipped.Render(IconSkipped)
	default:
		icon = m.Styles.StepPending.Render(IconPending)
	}

	// Pad before styling so ANSI escapes don't skew the column.
	name := fmt.Sprintf("%-10s", s.Name)
	if s.Status == StatusPending || s.Status == StatusSkipped {
		name = m.Styles.StepPending.Render(name)
	} else {
		name = m.Styles.StepName.Render(name)
	}

	line := fmt.Sprintf("  %s %s", icon, name)
	if s.Duration != "" {
		line += " " + m.Styles.Duration.Render(fmt.Sprintf("(%s)", s.Duration))
	}
	if s.Status == StatusSkipped {
		line += " " + m.Styles.StepSkipped.Render("skipped")
	}
	if s.Error != "" {
		line += "\n      " + m.Styles.ErrorText.Render(s.Error)
	}

	return line
}

// renderOutput is the tail of captured container output, when present.
func (m *Model) renderOutput() string {
	if len(m.OutputTail) == 0 {
		return ""
	}

	lines := make([]string, 0, len(m.OutputTail)+1)
	lines = append(lines, m.Styles.OutputTitle.Render("  ── container output ──"))
	for _, line := range m.OutputTail {
		lines = append(lines, "  "+m.Styles.OutputLine.Render(line))
	}
	return strings.Join(lines, "\n") + "\n"
}

func (m *Model) renderFooter() string {
	key := m.Styles.FooterKey.Render("q")
	return m.Styles.Footer.Render(fmt.Sprintf("  Press %s to abandon the run (cleanup still executes)", key))
}

// formatClock renders elapsed time as mm:ss, growing an hour field
// only once it matters.
func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
