package docker

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RunConfig specifies detached container creation parameters.
type RunConfig struct {
	// Image is the image reference to run
	Image string

	// Name is the container name
	Name string

	// Env maps variable names to values injected into the container
	Env map[string]string

	// Port is the host:container port mapping (empty for none)
	Port string
}

// ContainerState is the runtime's view of a container.
type ContainerState struct {
	Status   string // "running", "exited", "created", ...
	ExitCode int
}

// Running reports whether the container process is up.
func (s ContainerState) Running() bool {
	return s.Status == "running"
}

// Client drives a container runtime binary (docker or podman) for a single
// build context directory. All operations shell out; the runtime owns the
// registry protocol and image store.
type Client struct {
	bin string
	dir string
	run Runner
}

// NewClient creates a client for the given runtime binary and context dir.
// DetectRuntime picks the binary when the caller has no preference.
func NewClient(bin, dir string) *Client {
	return &Client{bin: bin, dir: dir, run: binRunner{bin: bin}}
}

// NewClientWithRunner creates a client with a custom command runner.
// Intended for tests.
func NewClientWithRunner(bin, dir string, r Runner) *Client {
	return &Client{bin: bin, dir: dir, run: r}
}

// Runtime returns the runtime binary name.
func (c *Client) Runtime() string {
	return c.bin
}

// Ping verifies the runtime daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.run.Exec(ctx, c.dir, "version"); err != nil {
		return fmt.Errorf("container runtime not available: %w", err)
	}
	return nil
}

// Login authenticates to a registry. The password travels over stdin, never
// argv. Credential values are scrubbed from any returned error.
func (c *Client) Login(ctx context.Context, server, username, password string) error {
	args := []string{"login", "-u", username, "--password-stdin"}
	if server != "" {
		args = append(args, server)
	}

	if _, err := c.run.ExecWithStdin(ctx, c.dir, password, args...); err != nil {
		return fmt.Errorf("registry login failed: %s", redact(err.Error(), username, password))
	}
	return nil
}

// Build builds an image from the client's context directory.
func (c *Client) Build(ctx context.Context, dockerfile, image string) error {
	if _, err := c.run.Exec(ctx, c.dir, "build", "-f", dockerfile, "-t", image, "."); err != nil {
		return fmt.Errorf("image build failed: %w", err)
	}
	return nil
}

// Push publishes an image reference to its registry.
func (c *Client) Push(ctx context.Context, image string) error {
	if _, err := c.run.Exec(ctx, c.dir, "push", image); err != nil {
		return fmt.Errorf("image push failed: %w", err)
	}
	return nil
}

// RunDetached starts a detached container and returns its ID.
// A name conflict is the runtime's error to report; it propagates as-is.
// Env values are scrubbed from any returned error.
func (c *Client) RunDetached(ctx context.Context, cfg RunConfig) (string, error) {
	args := []string{"run", "-d", "--name", cfg.Name}

	// Sort for a stable argv
	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, cfg.Env[k]))
	}

	if cfg.Port != "" {
		args = append(args, "-p", cfg.Port)
	}
	args = append(args, cfg.Image)

	output, err := c.run.Exec(ctx, c.dir, args...)
	if err != nil {
		secrets := make([]string, 0, len(cfg.Env))
		for _, k := range keys {
			secrets = append(secrets, cfg.Env[k])
		}
		return "", fmt.Errorf("failed to run container: %s", redact(err.Error(), secrets...))
	}

	return strings.TrimSpace(output), nil
}

// PS returns the process listing filtered to the given container name.
func (c *Client) PS(ctx context.Context, name string) (string, error) {
	output, err := c.run.Exec(ctx, c.dir, "ps", "--filter", "name="+name)
	if err != nil {
		return "", fmt.Errorf("failed to list containers: %w", err)
	}
	return output, nil
}

// Logs returns the most recent log lines from a container.
// Output combines stdout and stderr; applications log to both.
func (c *Client) Logs(ctx context.Context, name string, tail int) (string, error) {
	output, err := c.run.ExecCombined(ctx, c.dir, "logs", "--tail", strconv.Itoa(tail), name)
	if err != nil {
		return "", fmt.Errorf("failed to read container logs: %w", err)
	}
	return output, nil
}

// State inspects a container's status and exit code.
func (c *Client) State(ctx context.Context, name string) (ContainerState, error) {
	output, err := c.run.Exec(ctx, c.dir, "inspect", "-f", "{{.State.Status}} {{.State.ExitCode}}", name)
	if err != nil {
		return ContainerState{}, fmt.Errorf("failed to inspect container: %w", err)
	}

	fields := strings.Fields(output)
	if len(fields) != 2 {
		return ContainerState{}, fmt.Errorf("unexpected inspect output: %q", strings.TrimSpace(output))
	}
	exitCode, err := strconv.Atoi(fields[1])
	if err != nil {
		return ContainerState{}, fmt.Errorf("failed to parse exit code: %w", err)
	}

	return ContainerState{Status: fields[0], ExitCode: exitCode}, nil
}

// Stop asks the runtime to stop a container, giving it timeout to exit
// before the kill.
func (c *Client) Stop(ctx context.Context, name string, timeout time.Duration) error {
	timeoutSecs := int(timeout.Seconds())
	if _, err := c.run.ExecCombined(ctx, c.dir, "stop", "-t", strconv.Itoa(timeoutSecs), name); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// Remove deletes a stopped container.
func (c *Client) Remove(ctx context.Context, name string) error {
	if _, err := c.run.ExecCombined(ctx, c.dir, "rm", name); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is the runtime's missing-container error.
// Docker says "No such container", podman "no container with name".
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such container") ||
		strings.Contains(msg, "no container with name")
}

// redact replaces each secret value in s with a placeholder. Empty secrets
// are skipped so a blank credential cannot mangle the message.
func redact(s string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, "***")
	}
	return s
}
