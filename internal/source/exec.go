package source

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Runner executes git invocations. The default shells out; tests swap in a
// stub via SetDefaultRunner.
type Runner interface {
	Exec(ctx context.Context, dir string, args ...string) (string, error)
}

type gitRunner struct{}

func (gitRunner) Exec(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s failed: %w\nstderr: %s",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

var (
	runnerMu      sync.Mutex
	defaultRunner Runner = gitRunner{}
)

// SetDefaultRunner replaces the package-wide runner. Passing nil restores
// the real git runner. Intended for tests.
func SetDefaultRunner(runner Runner) {
	if runner == nil {
		runner = gitRunner{}
	}
	runnerMu.Lock()
	defaultRunner = runner
	runnerMu.Unlock()
}

func gitExec(ctx context.Context, dir string, args ...string) (string, error) {
	runnerMu.Lock()
	runner := defaultRunner
	runnerMu.Unlock()
	return runner.Exec(ctx, dir, args...)
}
