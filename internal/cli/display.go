package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/drydock-sh/shakedown/internal/events"
	"github.com/drydock-sh/shakedown/internal/pipeline"
)

// StatusSymbol is the single-character marker for a step outcome
type StatusSymbol string

const (
	SymbolOK      StatusSymbol = "✓"
	SymbolRunning StatusSymbol = "●"
	SymbolPending StatusSymbol = "○"
	SymbolFailed  StatusSymbol = "✗"
	SymbolSkipped StatusSymbol = "→"
)

// GetStatusSymbol returns the symbol for a step status
func GetStatusSymbol(status pipeline.Status) StatusSymbol {
	switch status {
	case pipeline.StatusOK:
		return SymbolOK
	case pipeline.StatusFailed:
		return SymbolFailed
	case pipeline.StatusSkipped:
		return SymbolSkipped
	default:
		return SymbolPending
	}
}

// StepReporter returns a bus handler that prints one line per pipeline
// event. It is the fallback display when the TUI is off.
func StepReporter(w io.Writer) events.Handler {
	return func(e events.Event) {
		switch e.Type {
		case events.RunStarted:
			image, container := runTarget(e)
			fmt.Fprintf(w, "run %s: %s as %s\n", e.Run, image, container)

		case events.StepStarted:
			fmt.Fprintf(w, "%s %s...\n", SymbolRunning, e.Step)

		case events.StepCompleted:
			if d := eventDuration(e); d != "" {
				fmt.Fprintf(w, "%s %s (%s)\n", SymbolOK, e.Step, d)
			} else {
				fmt.Fprintf(w, "%s %s\n", SymbolOK, e.Step)
			}

		case events.StepFailed:
			fmt.Fprintf(w, "%s %s: %s\n", SymbolFailed, e.Step, e.Error)

		case events.StepSkipped:
			fmt.Fprintf(w, "%s %s (skipped)\n", SymbolSkipped, e.Step)

		case events.StepOutput:
			for _, line := range eventOutputLines(e) {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
}

func runTarget(e events.Event) (image, container string) {
	payload, ok := e.Payload.(map[string]any)
	if !ok {
		return "", ""
	}
	image, _ = payload["image"].(string)
	container, _ = payload["container"].(string)
	return image, container
}

func eventDuration(e events.Event) string {
	if payload, ok := e.Payload.(map[string]any); ok {
		if d, ok := payload["duration"].(string); ok {
			return d
		}
	}
	return ""
}

func eventOutputLines(e events.Event) []string {
	payload, ok := e.Payload.(map[string]any)
	if !ok {
		return nil
	}
	out, ok := payload["output"].(string)
	if !ok || out == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(out, "\n"), "\n")
}

// summaryStyles color the post-run table. They are skipped entirely
// when stdout is not a terminal.
type summaryStyles struct {
	title   lipgloss.Style
	ok      lipgloss.Style
	failed  lipgloss.Style
	skipped lipgloss.Style
	dim     lipgloss.Style
}

func newSummaryStyles() summaryStyles {
	return summaryStyles{
		title:   lipgloss.NewStyle().Bold(true),
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		failed:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		skipped: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// RenderSummary renders the per-step outcome table printed after every
// run. When styled is false the same layout is produced without ANSI
// sequences, for logs and pipes.
func RenderSummary(res *pipeline.Result, styled bool) string {
	st := newSummaryStyles()
	render := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	var b strings.Builder
	b.WriteString("\n")

	// Verdict line: Run <id> passed in 42.3s
	verdict := "passed"
	verdictStyle := st.ok
	if res.Failed() {
		verdict = "failed"
		verdictStyle = st.failed
	}
	b.WriteString(render(st.title, fmt.Sprintf("Run %s", res.ID)))
	b.WriteString(" ")
	b.WriteString(render(verdictStyle, verdict))
	b.WriteString(render(st.dim, fmt.Sprintf(" in %s", res.Duration.Round(time.Millisecond))))
	b.WriteString("\n")

	// Target line: image, container, and the source snapshot it ran from
	target := fmt.Sprintf("  %s as %s", res.Image, res.Container)
	if res.Snapshot.Known() {
		target += fmt.Sprintf(" (%s)", res.Snapshot)
	}
	b.WriteString(render(st.dim, target))
	b.WriteString("\n\n")

	for _, step := range res.Steps {
		var style lipgloss.Style
		switch step.Status {
		case pipeline.StatusOK:
			style = st.ok
		case pipeline.StatusFailed:
			style = st.failed
		default:
			style = st.skipped
		}

		line := fmt.Sprintf("  %s %-10s", GetStatusSymbol(step.Status), step.Name)
		switch {
		case step.Status == pipeline.StatusSkipped:
			line += " skipped"
		case step.Err != nil:
			line += fmt.Sprintf(" %-9s %v", formatStepDuration(step.Duration), step.Err)
		default:
			line += " " + formatStepDuration(step.Duration)
		}
		b.WriteString(render(style, line))
		b.WriteString("\n")
	}

	if res.Err != nil {
		b.WriteString("\n")
		b.WriteString(render(st.failed, fmt.Sprintf("Error: %v", res.Err)))
		b.WriteString("\n")
	}

	return b.String()
}

func formatStepDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
