package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/drydock-sh/shakedown/internal/config"
	"github.com/drydock-sh/shakedown/internal/events"
)

// verify queries the running container: process listing, recent logs,
// and inspected state. Everything observed lands on Result.VerifyOutput
// and the event bus for human inspection.
//
// In observe mode (the default) this step never fails the run, whatever
// it finds. In assert mode it fails unless the container is running
// and, when a probe is configured, the probe endpoint answers within
// its budget.
func (e *Engine) verify(ctx context.Context, res *Result) error {
	name := e.cfg.Container.Name
	var out strings.Builder

	ps, psErr := e.dock.PS(ctx, name)
	writeSection(&out, fmt.Sprintf("$ %s ps --filter name=%s", e.dock.Runtime(), name), ps, psErr)

	logs, logsErr := e.dock.Logs(ctx, name, e.cfg.Verify.LogTail)
	writeSection(&out, fmt.Sprintf("$ %s logs --tail %d %s", e.dock.Runtime(), e.cfg.Verify.LogTail, name), logs, logsErr)

	state, stateErr := e.dock.State(ctx, name)
	if stateErr != nil {
		writeSection(&out, "state", "", stateErr)
	} else {
		writeSection(&out, "state", fmt.Sprintf("%s (exit code %d)", state.Status, state.ExitCode), nil)
	}

	res.VerifyOutput = out.String()
	e.emit(events.NewEvent(events.StepOutput, res.ID).WithStep(StepVerify).WithPayload(map[string]any{
		"output": res.VerifyOutput,
	}))

	if e.cfg.Verify.Mode != config.VerifyAssert {
		// Observe mode reports what it saw and judges nothing.
		return nil
	}

	if stateErr != nil {
		return stateErr
	}
	if !state.Running() {
		return fmt.Errorf("container %s is not running (status %s, exit code %d)",
			name, state.Status, state.ExitCode)
	}
	if e.cfg.Verify.Probe != nil {
		return e.probe(ctx)
	}
	return nil
}

// writeSection appends one labelled block of verify output.
func writeSection(out *strings.Builder, header, body string, err error) {
	out.WriteString(header)
	out.WriteString("\n")
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
	} else if trimmed := strings.TrimRight(body, "\n"); trimmed != "" {
		out.WriteString(trimmed)
		out.WriteString("\n")
	}
	out.WriteString("\n")
}

// probe polls the mapped host port over HTTP until it answers with a
// 2xx status or the probe budget runs out.
func (e *Engine) probe(ctx context.Context) error {
	spec := e.cfg.Verify.Probe
	timeout, err := spec.TimeoutDuration()
	if err != nil {
		return fmt.Errorf("invalid probe timeout: %w", err)
	}
	interval, err := spec.IntervalDuration()
	if err != nil {
		return fmt.Errorf("invalid probe interval: %w", err)
	}

	url := fmt.Sprintf("http://127.0.0.1:%s%s", e.cfg.Container.HostPort(), spec.Path)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{Timeout: interval}

	// First attempt immediately, then on the probe interval.
	lastErr := probeOnce(ctx, client, url)
	if lastErr == nil {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("probe %s did not answer within %s: %w", url, timeout, lastErr)
		case <-ticker.C:
			lastErr = probeOnce(ctx, client, url)
			if lastErr == nil {
				return nil
			}
		}
	}
}

// probeOnce issues a single GET and reports non-2xx statuses as errors.
func probeOnce(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe returned %d", resp.StatusCode)
	}
	return nil
}
