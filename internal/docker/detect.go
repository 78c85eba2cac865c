package docker

import (
	"errors"
	"os/exec"
)

// ErrNoRuntime is returned when neither docker nor podman responds.
var ErrNoRuntime = errors.New("no container runtime found (need docker or podman)")

// runtimeProbe reports whether bin is on PATH and answers `version`.
// Package var so tests can substitute canned results.
var runtimeProbe = func(bin string) bool {
	if _, err := exec.LookPath(bin); err != nil {
		return false
	}
	return exec.Command(bin, "version").Run() == nil
}

// DetectRuntime returns the first working container runtime, preferring
// docker over podman.
func DetectRuntime() (string, error) {
	for _, bin := range []string{"docker", "podman"} {
		if runtimeProbe(bin) {
			return bin, nil
		}
	}
	return "", ErrNoRuntime
}
