package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/drydock-sh/shakedown/internal/config"
	"github.com/drydock-sh/shakedown/internal/docker"
	"github.com/drydock-sh/shakedown/internal/events"
	"github.com/drydock-sh/shakedown/internal/source"
)

// cleanupGrace is added to the configured stop timeout to budget the
// cleanup step. Stop can take the full stop timeout before the runtime
// kills the container; removal needs room after that.
const cleanupGrace = 30 * time.Second

// Engine executes the deployment-verification pipeline: build an image,
// push it, run a container from it, inspect it, and tear it down. Steps
// run strictly in order on the calling goroutine; a failure skips every
// later step except cleanup, which always runs.
type Engine struct {
	cfg  *config.Config
	bus  *events.Bus
	dock *docker.Client
	env  func(string) string

	startupWait time.Duration
	stopTimeout time.Duration

	// sleep is replaceable so tests don't wait out the startup pause
	sleep func(context.Context, time.Duration)
}

// Dependencies bundles external collaborators for injection.
type Dependencies struct {
	// Bus receives run and step lifecycle events (may be nil)
	Bus *events.Bus

	// Docker drives the container runtime. When nil the engine detects
	// an available runtime during the setup step.
	Docker *docker.Client

	// Env resolves credential environment variables (defaults to os.Getenv)
	Env func(string) string
}

// New creates an engine for the given validated configuration.
func New(cfg *config.Config, deps Dependencies) (*Engine, error) {
	startupWait, err := cfg.Container.StartupWaitDuration()
	if err != nil {
		return nil, fmt.Errorf("invalid startup wait: %w", err)
	}
	stopTimeout, err := cfg.Cleanup.StopTimeoutDuration()
	if err != nil {
		return nil, fmt.Errorf("invalid stop timeout: %w", err)
	}

	env := deps.Env
	if env == nil {
		env = os.Getenv
	}

	return &Engine{
		cfg:         cfg,
		bus:         deps.Bus,
		dock:        deps.Docker,
		env:         env,
		startupWait: startupWait,
		stopTimeout: stopTimeout,
		sleep:       sleepCtx,
	}, nil
}

// Run executes one pipeline run. The returned Result always carries one
// StepResult per step, including skipped ones and cleanup. The error is
// the run's first failure; cleanup problems never surface here.
//
// Cancelling ctx marks the run failed, skips the remaining non-cleanup
// steps, and still runs cleanup on a detached context.
func (e *Engine) Run(ctx context.Context, trigger string) (*Result, error) {
	res := &Result{
		ID:          ulid.Make().String(),
		Image:       e.cfg.Image,
		Container:   e.cfg.Container.Name,
		TriggeredBy: trigger,
		StartedAt:   time.Now(),
	}

	e.emit(events.NewEvent(events.RunStarted, res.ID).WithPayload(map[string]any{
		"image":     res.Image,
		"container": res.Container,
		"trigger":   trigger,
	}))

	steps := []struct {
		name string
		fn   func(context.Context, *Result) error
	}{
		{StepSnapshot, e.snapshot},
		{StepSetup, e.setup},
		{StepAuth, e.auth},
		{StepBuild, e.build},
		{StepPush, e.push},
		{StepRun, e.runContainer},
		{StepVerify, e.verify},
	}

	for _, step := range steps {
		if res.Err == nil && ctx.Err() != nil {
			res.Err = fmt.Errorf("run cancelled: %w", ctx.Err())
		}
		if res.Err != nil {
			e.skipStep(res, step.name)
			continue
		}
		e.runStep(ctx, res, step.name, step.fn)
	}

	e.runCleanup(res)

	res.Duration = time.Since(res.StartedAt)

	if res.Err != nil {
		e.emit(events.NewEvent(events.RunFailed, res.ID).WithError(res.Err))
		return res, res.Err
	}
	e.emit(events.NewEvent(events.RunCompleted, res.ID).WithPayload(map[string]any{
		"duration": res.Duration.String(),
	}))
	return res, nil
}

// runStep executes one step, records its result, and emits lifecycle
// events. A step error is wrapped with the step name and becomes the
// run's failure.
func (e *Engine) runStep(ctx context.Context, res *Result, name string, fn func(context.Context, *Result) error) {
	e.emit(events.NewEvent(events.StepStarted, res.ID).WithStep(name))
	start := time.Now()
	err := fn(ctx, res)
	elapsed := time.Since(start)

	if err != nil {
		wrapped := fmt.Errorf("%s: %w", name, err)
		res.Steps = append(res.Steps, StepResult{Name: name, Status: StatusFailed, Duration: elapsed, Err: wrapped})
		res.Err = wrapped
		e.emit(events.NewEvent(events.StepFailed, res.ID).WithStep(name).WithError(wrapped).WithPayload(map[string]any{
			"duration": elapsed.String(),
		}))
		return
	}

	res.Steps = append(res.Steps, StepResult{Name: name, Status: StatusOK, Duration: elapsed})
	e.emit(events.NewEvent(events.StepCompleted, res.ID).WithStep(name).WithPayload(map[string]any{
		"duration": elapsed.String(),
	}))
}

func (e *Engine) skipStep(res *Result, name string) {
	res.Steps = append(res.Steps, StepResult{Name: name, Status: StatusSkipped})
	e.emit(events.NewEvent(events.StepSkipped, res.ID).WithStep(name))
}

// runCleanup tears the container down exactly once per run. It uses a
// context detached from the run's cancellation so an aborted run still
// releases the instance. Errors are recorded on the step result but
// never escalate the run status.
func (e *Engine) runCleanup(res *Result) {
	ctx, cancel := context.WithTimeout(context.Background(), e.stopTimeout+cleanupGrace)
	defer cancel()

	e.emit(events.NewEvent(events.StepStarted, res.ID).WithStep(StepCleanup))
	start := time.Now()
	err := e.teardown(ctx)
	elapsed := time.Since(start)

	if err != nil {
		wrapped := fmt.Errorf("%s: %w", StepCleanup, err)
		res.Steps = append(res.Steps, StepResult{Name: StepCleanup, Status: StatusFailed, Duration: elapsed, Err: wrapped})
		e.emit(events.NewEvent(events.StepFailed, res.ID).WithStep(StepCleanup).WithError(wrapped).WithPayload(map[string]any{
			"duration": elapsed.String(),
		}))
		return
	}

	res.Steps = append(res.Steps, StepResult{Name: StepCleanup, Status: StatusOK, Duration: elapsed})
	e.emit(events.NewEvent(events.StepCompleted, res.ID).WithStep(StepCleanup).WithPayload(map[string]any{
		"duration": elapsed.String(),
	}))
}

// snapshot resolves git metadata for the source tree. A directory
// outside any repository yields unknown metadata, not a failure.
func (e *Engine) snapshot(ctx context.Context, res *Result) error {
	snap, err := source.Describe(ctx, e.cfg.Source.Dir)
	if err != nil {
		return fmt.Errorf("describe source: %w", err)
	}
	res.Snapshot = snap
	return nil
}

// setup initializes the image-builder context: find a container runtime
// if none was injected, confirm the daemon answers, and confirm the
// build context and Dockerfile exist.
func (e *Engine) setup(ctx context.Context, res *Result) error {
	if e.dock == nil {
		bin, err := docker.DetectRuntime()
		if err != nil {
			return err
		}
		e.dock = docker.NewClient(bin, e.cfg.Source.Dir)
	}

	if err := e.dock.Ping(ctx); err != nil {
		return err
	}

	info, err := os.Stat(e.cfg.Source.Dir)
	if err != nil {
		return fmt.Errorf("build context: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("build context %s is not a directory", e.cfg.Source.Dir)
	}

	dockerfile := e.cfg.Source.Dockerfile
	if !filepath.IsAbs(dockerfile) {
		dockerfile = filepath.Join(e.cfg.Source.Dir, dockerfile)
	}
	if _, err := os.Stat(dockerfile); err != nil {
		return fmt.Errorf("dockerfile: %w", err)
	}

	return nil
}

// auth logs in to the registry with credentials read from the
// environment. Values stay out of argv, events, and errors.
func (e *Engine) auth(ctx context.Context, res *Result) error {
	username := e.env(e.cfg.Registry.UsernameEnv)
	password := e.env(e.cfg.Registry.PasswordEnv)
	if username == "" || password == "" {
		return fmt.Errorf("registry credentials missing: set %s and %s",
			e.cfg.Registry.UsernameEnv, e.cfg.Registry.PasswordEnv)
	}
	return e.dock.Login(ctx, e.cfg.Registry.Server, username, password)
}

func (e *Engine) build(ctx context.Context, res *Result) error {
	return e.dock.Build(ctx, e.cfg.Source.Dockerfile, e.cfg.Image)
}

func (e *Engine) push(ctx context.Context, res *Result) error {
	return e.dock.Push(ctx, e.cfg.Image)
}

// runContainer starts the detached verification container and pauses
// for the configured startup wait. A create/start failure propagates; a
// crash after start does not (it surfaces at verify).
func (e *Engine) runContainer(ctx context.Context, res *Result) error {
	env := make(map[string]string, len(e.cfg.Container.Env))
	for _, name := range e.cfg.Container.Env {
		env[name] = e.env(name)
	}

	if _, err := e.dock.RunDetached(ctx, docker.RunConfig{
		Image: e.cfg.Image,
		Name:  e.cfg.Container.Name,
		Env:   env,
		Port:  e.cfg.Container.Port,
	}); err != nil {
		return err
	}

	e.sleep(ctx, e.startupWait)
	return ctx.Err()
}

// teardown stops and removes the named container. A container the
// runtime does not know about is already gone; that is not an error.
func (e *Engine) teardown(ctx context.Context) error {
	if e.dock == nil {
		// Setup never found a runtime, so nothing was created.
		return nil
	}

	name := e.cfg.Container.Name
	var errs []error
	if err := e.dock.Stop(ctx, name, e.stopTimeout); err != nil && !docker.IsNotFound(err) {
		errs = append(errs, err)
	}
	if err := e.dock.Remove(ctx, name); err != nil && !docker.IsNotFound(err) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) emit(event events.Event) {
	if e.bus != nil {
		e.bus.Emit(event)
	}
}

// sleepCtx pauses for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
