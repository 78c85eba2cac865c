package pipeline

import (
	"time"

	"github.com/drydock-sh/shakedown/internal/source"
)

// Status is the outcome of a step or a whole run.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Step names in execution order. Cleanup is last and unconditional.
const (
	StepSnapshot = "snapshot"
	StepSetup    = "setup"
	StepAuth     = "auth"
	StepBuild    = "build"
	StepPush     = "push"
	StepRun      = "run"
	StepVerify   = "verify"
	StepCleanup  = "cleanup"
)

// StepNames returns all step names in execution order.
func StepNames() []string {
	return []string{
		StepSnapshot, StepSetup, StepAuth, StepBuild,
		StepPush, StepRun, StepVerify, StepCleanup,
	}
}

// StepResult records the outcome of a single pipeline step.
type StepResult struct {
	Name     string
	Status   Status
	Duration time.Duration
	Err      error
}

// Result represents the outcome of one pipeline run.
type Result struct {
	// ID is the ULID assigned to this run
	ID string

	// Image is the image reference built, pushed, and run
	Image string

	// Container is the verification container name
	Container string

	// Snapshot describes the source tree the image was built from
	Snapshot source.Snapshot

	// TriggeredBy records provenance ("manual", "push:<sha>", ...)
	TriggeredBy string

	StartedAt time.Time
	Duration  time.Duration

	// Steps holds one entry per step, including skipped ones and cleanup
	Steps []StepResult

	// VerifyOutput is the captured runtime state and log text from the
	// verify step, kept for display after the run
	VerifyOutput string

	// Err is the first pipeline failure. Cleanup errors never land here;
	// they are recorded on the cleanup StepResult only.
	Err error
}

// Failed reports whether the run is marked failed.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// Status returns the overall run status.
func (r *Result) Status() Status {
	if r.Err != nil {
		return StatusFailed
	}
	return StatusOK
}

// Step returns the result for the named step, or nil if it never ran.
func (r *Result) Step(name string) *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}
