package docker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes container runtime commands.
type Runner interface {
	Exec(ctx context.Context, dir string, args ...string) (string, error)
	ExecWithStdin(ctx context.Context, dir string, stdin string, args ...string) (string, error)
	ExecCombined(ctx context.Context, dir string, args ...string) (string, error)
}

// binRunner shells out to the detected runtime binary.
type binRunner struct {
	bin string
}

func (r binRunner) command(ctx context.Context, dir string, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.Dir = dir
	return cmd
}

// run captures stdout, folding trimmed stderr into the error on failure.
func (r binRunner) run(cmd *exec.Cmd, args []string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s failed: %w\nstderr: %s",
			r.bin, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (r binRunner) Exec(ctx context.Context, dir string, args ...string) (string, error) {
	return r.run(r.command(ctx, dir, args), args)
}

func (r binRunner) ExecWithStdin(ctx context.Context, dir string, stdin string, args ...string) (string, error) {
	cmd := r.command(ctx, dir, args)
	cmd.Stdin = strings.NewReader(stdin)
	return r.run(cmd, args)
}

// ExecCombined interleaves stdout and stderr. Runtime commands like `logs`
// split container output across both streams.
func (r binRunner) ExecCombined(ctx context.Context, dir string, args ...string) (string, error) {
	output, err := r.command(ctx, dir, args).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s %s failed: %w\noutput: %s",
			r.bin, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}
