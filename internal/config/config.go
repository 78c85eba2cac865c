package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// VerifyMode selects how the verify step treats what it observes.
type VerifyMode string

const (
	// VerifyObserve prints runtime state and logs without judging them.
	VerifyObserve VerifyMode = "observe"

	// VerifyAssert fails the run unless the container is up (and the
	// probe, when configured, answers).
	VerifyAssert VerifyMode = "assert"
)

// Config holds all configuration for a pipeline run. LoadConfig returns
// it fully resolved; nothing mutates it afterwards. Secret VALUES never
// appear here; registry and container credentials are referenced by
// environment variable name only.
type Config struct {
	// Image is the single image reference used to build, push, and run.
	// The same string is handed to all three operations.
	Image string `yaml:"image"`

	// Registry identifies the remote registry and its credential env vars
	Registry RegistryConfig `yaml:"registry"`

	// Source locates the build context
	Source SourceConfig `yaml:"source"`

	// Container controls the verification container
	Container ContainerConfig `yaml:"container"`

	// Verify controls the verification step
	Verify VerifyConfig `yaml:"verify"`

	// Cleanup controls teardown behavior
	Cleanup CleanupConfig `yaml:"cleanup"`

	// History configures the local run-history store
	History HistoryConfig `yaml:"history"`

	// Trigger configures serve mode (webhook listener)
	Trigger TriggerConfig `yaml:"trigger"`
}

// RegistryConfig identifies the registry and where credentials come from.
type RegistryConfig struct {
	// Server is the registry host (empty = runtime default, Docker Hub)
	Server string `yaml:"server"`

	// UsernameEnv names the environment variable holding the username
	UsernameEnv string `yaml:"username_env"`

	// PasswordEnv names the environment variable holding the token/password
	PasswordEnv string `yaml:"password_env"`
}

// SourceConfig locates the build context.
type SourceConfig struct {
	// Dir is the build context directory (relative paths resolve from
	// the directory LoadConfig was given)
	Dir string `yaml:"dir"`

	// Dockerfile is the path to the Dockerfile, relative to Dir
	Dockerfile string `yaml:"dockerfile"`
}

// ContainerConfig controls the verification container.
type ContainerConfig struct {
	// Name is the fixed container name. The name must be free when the
	// run step executes; a collision is the runtime's error to report.
	Name string `yaml:"name"`

	// Port is the host:container port mapping
	Port string `yaml:"port"`

	// Env lists HOST environment variable names forwarded into the
	// container. Values are secrets: read at run time, never stored.
	Env []string `yaml:"env"`

	// StartupWait is how long to pause after starting the container
	// before verification (Go duration string)
	StartupWait string `yaml:"startup_wait"`
}

// StartupWaitDuration parses the startup wait.
func (c *ContainerConfig) StartupWaitDuration() (time.Duration, error) {
	return time.ParseDuration(c.StartupWait)
}

// HostPort returns the host side of the port mapping.
func (c *ContainerConfig) HostPort() string {
	for i := 0; i < len(c.Port); i++ {
		if c.Port[i] == ':' {
			return c.Port[:i]
		}
	}
	return c.Port
}

// VerifyConfig controls the verification step.
type VerifyConfig struct {
	// Mode is "observe" (report only, the default) or "assert"
	Mode VerifyMode `yaml:"mode"`

	// LogTail is how many recent log lines to show
	LogTail int `yaml:"log_tail"`

	// Probe optionally checks an HTTP endpoint in assert mode
	Probe *ProbeConfig `yaml:"probe,omitempty"`
}

// ProbeConfig describes the assert-mode HTTP health probe.
type ProbeConfig struct {
	// Path is the request path (must start with "/")
	Path string `yaml:"path"`

	// Timeout is the total probe budget (Go duration string)
	Timeout string `yaml:"timeout"`

	// Interval is the delay between attempts (Go duration string)
	Interval string `yaml:"interval"`
}

// TimeoutDuration parses the probe budget.
func (p *ProbeConfig) TimeoutDuration() (time.Duration, error) {
	return time.ParseDuration(p.Timeout)
}

// IntervalDuration parses the probe retry interval.
func (p *ProbeConfig) IntervalDuration() (time.Duration, error) {
	return time.ParseDuration(p.Interval)
}

// CleanupConfig controls teardown behavior.
type CleanupConfig struct {
	// StopTimeout is passed to the runtime's stop command (Go duration string)
	StopTimeout string `yaml:"stop_timeout"`
}

// StopTimeoutDuration parses the stop timeout.
func (c *CleanupConfig) StopTimeoutDuration() (time.Duration, error) {
	return time.ParseDuration(c.StopTimeout)
}

// HistoryConfig configures the local run-history store.
type HistoryConfig struct {
	// Path is the SQLite file location; empty disables recording.
	// Relative paths resolve from the source root.
	Path string `yaml:"path"`
}

// Enabled reports whether runs should be recorded.
func (h *HistoryConfig) Enabled() bool {
	return h.Path != ""
}

// TriggerConfig configures serve mode.
type TriggerConfig struct {
	// Branch gates which pushed refs dispatch runs
	Branch string `yaml:"branch"`

	// Addr is the webhook listen address
	Addr string `yaml:"addr"`

	// SecretEnv names the environment variable holding the webhook
	// HMAC secret; empty disables signature verification
	SecretEnv string `yaml:"secret_env"`

	// Update syncs the working copy to the pushed commit before a run
	Update bool `yaml:"update"`
}

// LoadConfig builds the validated configuration for root, the directory
// holding .shakedown.yaml and the default source dir. Precedence:
//  1. Default values
//  2. .shakedown.yaml in root (if present)
//  3. Environment variable overrides
func LoadConfig(root string) (*Config, error) {
	cfg := DefaultConfig()

	// A missing config file is fine; env vars alone can carry a run.
	configPath := filepath.Join(root, ".shakedown.yaml")
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	// Relative paths resolve from root, not the process working directory.
	if !filepath.IsAbs(cfg.Source.Dir) {
		cfg.Source.Dir = filepath.Join(root, cfg.Source.Dir)
	}
	if cfg.History.Path != "" && !filepath.IsAbs(cfg.History.Path) {
		cfg.History.Path = filepath.Join(root, cfg.History.Path)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
