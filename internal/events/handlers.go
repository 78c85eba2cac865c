package events

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// LogConfig configures LogHandler.
type LogConfig struct {
	// Writer receives one line per event (default: os.Stderr).
	Writer io.Writer

	// TimeFormat, when set, prefixes each line with the event time.
	// Serve mode sets RFC3339; interactive runs leave it empty.
	TimeFormat string

	// IncludePayload appends the event payload to the line.
	IncludePayload bool
}

// LogHandler renders events as single text lines:
//
//	[step.failed] 01JRUN step=push error="denied"
//
// Serve mode subscribes it to the bus as the operator log.
func LogHandler(cfg LogConfig) Handler {
	out := cfg.Writer
	if out == nil {
		out = os.Stderr
	}
	return func(e Event) {
		fmt.Fprintln(out, formatLine(e, cfg))
	}
}

func formatLine(e Event, cfg LogConfig) string {
	parts := make([]string, 0, 6)
	if cfg.TimeFormat != "" {
		parts = append(parts, e.Time.Format(cfg.TimeFormat))
	}
	parts = append(parts, "["+string(e.Type)+"]")
	if e.Run != "" {
		parts = append(parts, e.Run)
	}
	if e.Step != "" {
		parts = append(parts, "step="+e.Step)
	}
	if e.Error != "" {
		parts = append(parts, fmt.Sprintf("error=%q", e.Error))
	}
	if cfg.IncludePayload && e.Payload != nil {
		parts = append(parts, fmt.Sprintf("payload=%v", e.Payload))
	}
	return strings.Join(parts, " ")
}
