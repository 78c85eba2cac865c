package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ValidationError names the offending field and what it should have been.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config.%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

var (
	// Runtime container name charset (docker and podman agree)
	containerNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

	// Image tag charset
	imageTagRe = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9._-]{0,127}$`)

	// Environment variable names
	envNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// splitImageRef splits an image reference into name and tag.
// The tag separator is the last colon after the last slash, so
// registry:5000/team/app:v1 parses correctly.
func splitImageRef(image string) (name, tag string, ok bool) {
	lastColon := strings.LastIndex(image, ":")
	lastSlash := strings.LastIndex(image, "/")
	if lastColon == -1 || lastColon < lastSlash {
		return image, "", false
	}
	name = image[:lastColon]
	tag = image[lastColon+1:]
	return name, tag, name != "" && tag != ""
}

// validateConfig checks every field and reports all failures at once as
// joined ValidationErrors.
func validateConfig(cfg *Config) error {
	var errs []error

	// Image must be set with an explicit tag. Build, push, and run all
	// consume this exact string; an implicit :latest would let the
	// runtime and the registry disagree about what was verified.
	if cfg.Image == "" {
		errs = append(errs, &ValidationError{
			Field:   "image",
			Value:   cfg.Image,
			Message: "must be set",
		})
	} else if name, tag, ok := splitImageRef(cfg.Image); !ok {
		errs = append(errs, &ValidationError{
			Field:   "image",
			Value:   cfg.Image,
			Message: "must include an explicit tag (name:tag)",
		})
	} else {
		if strings.ContainsAny(name, " \t") {
			errs = append(errs, &ValidationError{
				Field:   "image",
				Value:   cfg.Image,
				Message: "name must not contain whitespace",
			})
		}
		if !imageTagRe.MatchString(tag) {
			errs = append(errs, &ValidationError{
				Field:   "image",
				Value:   cfg.Image,
				Message: "tag contains invalid characters",
			})
		}
	}

	// Registry credential env var names
	if !envNameRe.MatchString(cfg.Registry.UsernameEnv) {
		errs = append(errs, &ValidationError{
			Field:   "registry.username_env",
			Value:   cfg.Registry.UsernameEnv,
			Message: "must be a valid environment variable name",
		})
	}
	if !envNameRe.MatchString(cfg.Registry.PasswordEnv) {
		errs = append(errs, &ValidationError{
			Field:   "registry.password_env",
			Value:   cfg.Registry.PasswordEnv,
			Message: "must be a valid environment variable name",
		})
	}

	// Source
	if cfg.Source.Dir == "" {
		errs = append(errs, &ValidationError{
			Field:   "source.dir",
			Value:   cfg.Source.Dir,
			Message: "must not be empty",
		})
	}
	if cfg.Source.Dockerfile == "" {
		errs = append(errs, &ValidationError{
			Field:   "source.dockerfile",
			Value:   cfg.Source.Dockerfile,
			Message: "must not be empty",
		})
	}

	// Container name
	if !containerNameRe.MatchString(cfg.Container.Name) {
		errs = append(errs, &ValidationError{
			Field:   "container.name",
			Value:   cfg.Container.Name,
			Message: "must match [a-zA-Z0-9][a-zA-Z0-9_.-]*",
		})
	}

	// Port mapping host:container
	if err := validatePortMapping(cfg.Container.Port); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "container.port",
			Value:   cfg.Container.Port,
			Message: err.Error(),
		})
	}

	// Forwarded env var names
	for i, name := range cfg.Container.Env {
		if !envNameRe.MatchString(name) {
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("container.env[%d]", i),
				Value:   name,
				Message: "must be a valid environment variable name",
			})
		}
	}

	// Startup wait must be a valid, non-negative duration
	if d, err := time.ParseDuration(cfg.Container.StartupWait); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "container.startup_wait",
			Value:   cfg.Container.StartupWait,
			Message: "must be a valid duration (e.g. 10s)",
		})
	} else if d < 0 {
		errs = append(errs, &ValidationError{
			Field:   "container.startup_wait",
			Value:   cfg.Container.StartupWait,
			Message: "must not be negative",
		})
	}

	// Verify mode
	switch cfg.Verify.Mode {
	case VerifyObserve, VerifyAssert:
	default:
		errs = append(errs, &ValidationError{
			Field:   "verify.mode",
			Value:   cfg.Verify.Mode,
			Message: "must be 'observe' or 'assert'",
		})
	}

	if cfg.Verify.LogTail < 0 {
		errs = append(errs, &ValidationError{
			Field:   "verify.log_tail",
			Value:   cfg.Verify.LogTail,
			Message: "must be non-negative",
		})
	}

	// Probe
	if p := cfg.Verify.Probe; p != nil {
		if !strings.HasPrefix(p.Path, "/") {
			errs = append(errs, &ValidationError{
				Field:   "verify.probe.path",
				Value:   p.Path,
				Message: "must start with /",
			})
		}
		if d, err := time.ParseDuration(p.Timeout); err != nil || d <= 0 {
			errs = append(errs, &ValidationError{
				Field:   "verify.probe.timeout",
				Value:   p.Timeout,
				Message: "must be a positive duration",
			})
		}
		if d, err := time.ParseDuration(p.Interval); err != nil || d <= 0 {
			errs = append(errs, &ValidationError{
				Field:   "verify.probe.interval",
				Value:   p.Interval,
				Message: "must be a positive duration",
			})
		}
	}

	// Cleanup stop timeout
	if d, err := time.ParseDuration(cfg.Cleanup.StopTimeout); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "cleanup.stop_timeout",
			Value:   cfg.Cleanup.StopTimeout,
			Message: "must be a valid duration (e.g. 10s)",
		})
	} else if d < 0 {
		errs = append(errs, &ValidationError{
			Field:   "cleanup.stop_timeout",
			Value:   cfg.Cleanup.StopTimeout,
			Message: "must not be negative",
		})
	}

	// Trigger
	if cfg.Trigger.Branch == "" {
		errs = append(errs, &ValidationError{
			Field:   "trigger.branch",
			Value:   cfg.Trigger.Branch,
			Message: "must not be empty",
		})
	}
	if cfg.Trigger.Addr == "" || !strings.Contains(cfg.Trigger.Addr, ":") {
		errs = append(errs, &ValidationError{
			Field:   "trigger.addr",
			Value:   cfg.Trigger.Addr,
			Message: "must be a listen address (host:port or :port)",
		})
	}
	if cfg.Trigger.SecretEnv != "" && !envNameRe.MatchString(cfg.Trigger.SecretEnv) {
		errs = append(errs, &ValidationError{
			Field:   "trigger.secret_env",
			Value:   cfg.Trigger.SecretEnv,
			Message: "must be a valid environment variable name",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// validatePortMapping checks a host:container mapping.
func validatePortMapping(mapping string) error {
	parts := strings.Split(mapping, ":")
	if len(parts) != 2 {
		return errors.New("must be host:container")
	}
	for _, part := range parts {
		port, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("port %q is not a number", part)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("port %d out of range", port)
		}
	}
	return nil
}
