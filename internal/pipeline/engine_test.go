package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drydock-sh/shakedown/internal/config"
	"github.com/drydock-sh/shakedown/internal/docker"
	"github.com/drydock-sh/shakedown/internal/events"
	"github.com/drydock-sh/shakedown/internal/source"
	"github.com/drydock-sh/shakedown/internal/testutil"
)

const (
	testImage     = "docker.io/acme/app:ci"
	testContainer = "shakedown-app"
)

// testEnv resolves the credential and forwarded env vars used by fixtures.
func testEnv(key string) string {
	return map[string]string{
		"SHAKEDOWN_REGISTRY_USER":     "builder",
		"SHAKEDOWN_REGISTRY_PASSWORD": "s3cret",
		"APP_TOKEN":                   "tok123",
	}[key]
}

// testConfig returns a validated-shape config rooted in a temp dir that
// contains a Dockerfile, with no startup pause.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM scratch\n"), 0o644)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Image = testImage
	cfg.Source.Dir = dir
	cfg.Container.Env = []string{"APP_TOKEN"}
	cfg.Container.StartupWait = "0s"
	return cfg
}

// stubDocker returns a runner preloaded with the full happy path.
// Individual tests re-stub the step they break.
func stubDocker() *testutil.StubRunner {
	stub := testutil.NewStubRunner()
	stub.StubDefault("version", "Docker version 27.0.1", nil)
	stub.StubDefault("login -u builder --password-stdin", "Login Succeeded", nil)
	stub.StubDefault(fmt.Sprintf("build -f Dockerfile -t %s .", testImage), "", nil)
	stub.StubDefault(fmt.Sprintf("push %s", testImage), "", nil)
	stub.StubDefault(fmt.Sprintf("run -d --name %s -e APP_TOKEN=tok123 -p 8000:8000 %s", testContainer, testImage), "cid123\n", nil)
	stub.StubDefault(fmt.Sprintf("ps --filter name=%s", testContainer), "CONTAINER ID   IMAGE\ncid123   "+testImage+"   "+testContainer, nil)
	stub.StubDefault(fmt.Sprintf("logs --tail 100 %s", testContainer), "INFO: Uvicorn running on http://0.0.0.0:8000", nil)
	stub.StubDefault(fmt.Sprintf("inspect -f {{.State.Status}} {{.State.ExitCode}} %s", testContainer), "running 0\n", nil)
	stub.StubDefault(fmt.Sprintf("stop -t 10 %s", testContainer), testContainer, nil)
	stub.StubDefault(fmt.Sprintf("rm %s", testContainer), testContainer, nil)
	return stub
}

// stubGit points the source package at a stub reporting a clean repo.
func stubGit(t *testing.T) {
	t.Helper()
	stub := testutil.NewStubRunner()
	stub.StubDefault("rev-parse --is-inside-work-tree", "true\n", nil)
	stub.StubDefault("rev-parse HEAD", "0123456789abcdef0123456789abcdef01234567\n", nil)
	stub.StubDefault("rev-parse --short HEAD", "0123456\n", nil)
	stub.StubDefault("rev-parse --abbrev-ref HEAD", "main\n", nil)
	stub.StubDefault("status --porcelain", "", nil)
	source.SetDefaultRunner(stub)
	t.Cleanup(func() { source.SetDefaultRunner(nil) })
}

func newTestEngine(t *testing.T, cfg *config.Config, stub *testutil.StubRunner, bus *events.Bus) *Engine {
	t.Helper()
	client := docker.NewClientWithRunner("docker", cfg.Source.Dir, stub)
	eng, err := New(cfg, Dependencies{Bus: bus, Docker: client, Env: testEnv})
	require.NoError(t, err)
	return eng
}

// collector records bus events for assertions after the bus is closed.
type collector struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collector) handler() events.Handler {
	return func(e events.Event) {
		c.mu.Lock()
		c.events = append(c.events, e)
		c.mu.Unlock()
	}
}

func (c *collector) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = string(e.Type)
	}
	return out
}

func stepStatuses(res *Result) map[string]Status {
	out := make(map[string]Status, len(res.Steps))
	for _, s := range res.Steps {
		out[s.Name] = s.Status
	}
	return out
}

func TestEngine_Run_Success(t *testing.T) {
	stubGit(t)
	stub := stubDocker()
	eng := newTestEngine(t, testConfig(t), stub, nil)

	res, err := eng.Run(context.Background(), "manual")
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, StatusOK, res.Status())
	assert.Len(t, res.ID, 26) // ULID
	assert.Equal(t, testImage, res.Image)
	assert.Equal(t, testContainer, res.Container)
	assert.Equal(t, "manual", res.TriggeredBy)
	assert.Equal(t, "0123456", res.Snapshot.ShortSHA)

	require.Len(t, res.Steps, 8)
	order := []string{StepSnapshot, StepSetup, StepAuth, StepBuild, StepPush, StepRun, StepVerify, StepCleanup}
	for i, name := range order {
		assert.Equal(t, name, res.Steps[i].Name)
		assert.Equal(t, StatusOK, res.Steps[i].Status, "step %s", name)
	}

	assert.Contains(t, res.VerifyOutput, "Uvicorn running")
	assert.Contains(t, res.VerifyOutput, "running (exit code 0)")

	// Cleanup ran exactly once.
	assert.Equal(t, 1, stub.CallsFor("stop", "-t", "10", testContainer))
	assert.Equal(t, 1, stub.CallsFor("rm", testContainer))
}

func TestEngine_Run_ImageRefConsistentAcrossBuildPushRun(t *testing.T) {
	stubGit(t)
	stub := stubDocker()
	eng := newTestEngine(t, testConfig(t), stub, nil)

	_, err := eng.Run(context.Background(), "manual")
	require.NoError(t, err)

	var buildImage, pushImage, runImage string
	for _, call := range stub.Calls() {
		fields := strings.Fields(call)
		switch fields[0] {
		case "build":
			for i, f := range fields {
				if f == "-t" && i+1 < len(fields) {
					buildImage = fields[i+1]
				}
			}
		case "push":
			pushImage = fields[1]
		case "run":
			runImage = fields[len(fields)-1]
		}
	}

	require.NotEmpty(t, buildImage)
	assert.Equal(t, buildImage, pushImage, "push must reference the built image")
	assert.Equal(t, buildImage, runImage, "run must reference the pushed image")
}

func TestEngine_Run_BuildFailureSkipsPushAndRun(t *testing.T) {
	stubGit(t)
	stub := stubDocker()
	stub.Stub(fmt.Sprintf("build -f Dockerfile -t %s .", testImage), "",
		errors.New("unknown instruction: FRMO"))
	eng := newTestEngine(t, testConfig(t), stub, nil)

	res, err := eng.Run(context.Background(), "manual")
	require.Error(t, err)
	assert.ErrorContains(t, err, "build")

	statuses := stepStatuses(res)
	assert.Equal(t, StatusOK, statuses[StepSnapshot])
	assert.Equal(t, StatusOK, statuses[StepSetup])
	assert.Equal(t, StatusOK, statuses[StepAuth])
	assert.Equal(t, StatusFailed, statuses[StepBuild])
	assert.Equal(t, StatusSkipped, statuses[StepPush])
	assert.Equal(t, StatusSkipped, statuses[StepRun])
	assert.Equal(t, StatusSkipped, statuses[StepVerify])
	assert.Equal(t, StatusOK, statuses[StepCleanup])

	// Publish and run were never attempted.
	assert.Equal(t, 0, stub.CallsFor("push", testImage))
	for _, call := range stub.Calls() {
		assert.False(t, strings.HasPrefix(call, "run -d"), "run must not execute after build failure: %s", call)
	}

	// Cleanup still ran exactly once.
	assert.Equal(t, 1, stub.CallsFor("stop", "-t", "10", testContainer))
	assert.Equal(t, 1, stub.CallsFor("rm", testContainer))
}

func TestEngine_Run_AuthFailureBlocksPush(t *testing.T) {
	stubGit(t)
	stub := stubDocker()
	stub.Stub("login -u builder --password-stdin", "", errors.New("unauthorized: incorrect username or password"))
	eng := newTestEngine(t, testConfig(t), stub, nil)

	res, err := eng.Run(context.Background(), "manual")
	require.Error(t, err)
	assert.ErrorContains(t, err, "auth")
	assert.Equal(t, StatusFailed, res.Status())

	statuses := stepStatuses(res)
	assert.Equal(t, StatusFailed, statuses[StepAuth])
	assert.Equal(t, StatusSkipped, statuses[StepBuild])
	assert.Equal(t, StatusSkipped, statuses[StepPush])

	assert.Equal(t, 0, stub.CallsFor("push", testImage))
	assert.Equal(t, 1, stub.CallsFor("stop", "-t", "10", testContainer))
}

func TestEngine_Run_MissingCredentials(t *testing.T) {
	stubGit(t)
	stub := stubDocker()
	cfg := testConfig(t)
	client := docker.NewClientWithRunner("docker", cfg.Source.Dir, stub)
	eng, err := New(cfg, Dependencies{Docker: client, Env: func(string) string { return "" }})
	require.NoError(t, err)

	_, err = eng.Run(context.Background(), "manual")
	require.Error(t, err)
	assert.ErrorContains(t, err, "registry credentials missing")
	// Login never reached the runtime.
	assert.Equal(t, 0, stub.CallsFor("login", "-u", "builder", "--password-stdin"))
}

func TestEngine_Run_CrashAfterStartStillVerifiesAndCleans(t *testing.T) {
	stubGit(t)
	stub := stubDocker()
	stub.Stub(fmt.Sprintf("ps --filter name=%s", testContainer), "CONTAINER ID   IMAGE", nil)
	stub.Stub(fmt.Sprintf("logs --tail 100 %s", testContainer), "Traceback (most recent call last): boom", nil)
	stub.Stub(fmt.Sprintf("inspect -f {{.State.Status}} {{.State.ExitCode}} %s", testContainer), "exited 1\n", nil)
	eng := newTestEngine(t, testConfig(t), stub, nil)

	res, err := eng.Run(context.Background(), "manual")
	// Observe mode reports the crash without failing the run.
	require.NoError(t, err)

	statuses := stepStatuses(res)
	assert.Equal(t, StatusOK, statuses[StepVerify])
	assert.Equal(t, StatusOK, statuses[StepCleanup])
	assert.Contains(t, res.VerifyOutput, "Traceback")
	assert.Contains(t, res.VerifyOutput, "exited (exit code 1)")

	assert.Equal(t, 1, stub.CallsFor("stop", "-t", "10", testContainer))
	assert.Equal(t, 1, stub.CallsFor("rm", testContainer))
}

func TestEngine_Run_AssertModeFailsWhenContainerNotRunning(t *testing.T) {
	stubGit(t)
	stub := stubDocker()
	stub.Stub(fmt.Sprintf("inspect -f {{.State.Status}} {{.State.ExitCode}} %s", testContainer), "exited 1\n", nil)
	cfg := testConfig(t)
	cfg.Verify.Mode = config.VerifyAssert
	eng := newTestEngine(t, cfg, stub, nil)

	res, err := eng.Run(context.Background(), "manual")
	require.Error(t, err)
	assert.ErrorContains(t, err, "not running")

	statuses := stepStatuses(res)
	assert.Equal(t, StatusFailed, statuses[StepVerify])
	assert.Equal(t, StatusOK, statuses[StepCleanup])
}

func TestEngine_Run_AssertModeProbeSucceeds(t *testing.T) {
	stubGit(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Container.Port = u.Port() + ":8000"
	cfg.Verify.Mode = config.VerifyAssert
	cfg.Verify.Probe = &config.ProbeConfig{Path: "/health", Timeout: "2s", Interval: "50ms"}

	stub := stubDocker()
	stub.StubDefault(fmt.Sprintf("run -d --name %s -e APP_TOKEN=tok123 -p %s:8000 %s", testContainer, u.Port(), testImage), "cid123\n", nil)

	eng := newTestEngine(t, cfg, stub, nil)
	res, err := eng.Run(context.Background(), "manual")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status())
	assert.Equal(t, StatusOK, res.Step(StepVerify).Status)
}

func TestEngine_Run_AssertModeProbeTimesOut(t *testing.T) {
	stubGit(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Container.Port = u.Port() + ":8000"
	cfg.Verify.Mode = config.VerifyAssert
	cfg.Verify.Probe = &config.ProbeConfig{Path: "/health", Timeout: "250ms", Interval: "50ms"}

	stub := stubDocker()
	stub.StubDefault(fmt.Sprintf("run -d --name %s -e APP_TOKEN=tok123 -p %s:8000 %s", testContainer, u.Port(), testImage), "cid123\n", nil)

	eng := newTestEngine(t, cfg, stub, nil)
	res, err := eng.Run(context.Background(), "manual")
	require.Error(t, err)
	assert.ErrorContains(t, err, "did not answer")
	assert.ErrorContains(t, err, "probe returned 500")

	statuses := stepStatuses(res)
	assert.Equal(t, StatusFailed, statuses[StepVerify])
	assert.Equal(t, StatusOK, statuses[StepCleanup])
}

func TestEngine_Run_NameConflictPropagates(t *testing.T) {
	stubGit(t)
	stub := stubDocker()
	stub.Stub(fmt.Sprintf("run -d --name %s -e APP_TOKEN=tok123 -p 8000:8000 %s", testContainer, testImage), "",
		errors.New(`Conflict. The container name "/shakedown-app" is already in use`))
	eng := newTestEngine(t, testConfig(t), stub, nil)

	res, err := eng.Run(context.Background(), "manual")
	require.Error(t, err)
	assert.ErrorContains(t, err, "already in use")

	statuses := stepStatuses(res)
	assert.Equal(t, StatusFailed, statuses[StepRun])
	assert.Equal(t, StatusSkipped, statuses[StepVerify])
	assert.Equal(t, StatusOK, statuses[StepCleanup])
}

func TestEngine_Run_CancelledBeforeStart(t *testing.T) {
	stubGit(t)
	stub := stubDocker()
	eng := newTestEngine(t, testConfig(t), stub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := eng.Run(ctx, "manual")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// Every non-cleanup step skipped; cleanup still ran.
	require.Len(t, res.Steps, 8)
	for _, step := range res.Steps[:7] {
		assert.Equal(t, StatusSkipped, step.Status, "step %s", step.Name)
	}
	assert.Equal(t, StepCleanup, res.Steps[7].Name)
	assert.Equal(t, StatusOK, res.Steps[7].Status)
	assert.Equal(t, 1, stub.CallsFor("stop", "-t", "10", testContainer))
}

func TestEngine_Run_CancelledDuringStartupPause(t *testing.T) {
	stubGit(t)
	stub := stubDocker()
	cfg := testConfig(t)
	cfg.Container.StartupWait = "10s"
	eng := newTestEngine(t, cfg, stub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.sleep = func(context.Context, time.Duration) { cancel() }

	res, err := eng.Run(ctx, "manual")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	statuses := stepStatuses(res)
	assert.Equal(t, StatusFailed, statuses[StepRun])
	assert.Equal(t, StatusSkipped, statuses[StepVerify])
	assert.Equal(t, StatusOK, statuses[StepCleanup])
	assert.Equal(t, 1, stub.CallsFor("stop", "-t", "10", testContainer))
}

func TestEngine_Run_CleanupToleratesMissingContainer(t *testing.T) {
	stubGit(t)
	stub := stubDocker()
	stub.Stub(fmt.Sprintf("stop -t 10 %s", testContainer), "", errors.New("Error response from daemon: No such container: shakedown-app"))
	stub.Stub(fmt.Sprintf("rm %s", testContainer), "", errors.New("Error response from daemon: No such container: shakedown-app"))
	eng := newTestEngine(t, testConfig(t), stub, nil)

	res, err := eng.Run(context.Background(), "manual")
	require.NoError(t, err)

	cleanup := res.Step(StepCleanup)
	require.NotNil(t, cleanup)
	assert.Equal(t, StatusOK, cleanup.Status)
	assert.NoError(t, cleanup.Err)
}

func TestEngine_Run_CleanupFailureDoesNotEscalate(t *testing.T) {
	stubGit(t)
	stub := stubDocker()
	stub.Stub(fmt.Sprintf("stop -t 10 %s", testContainer), "", errors.New("permission denied"))
	eng := newTestEngine(t, testConfig(t), stub, nil)

	res, err := eng.Run(context.Background(), "manual")
	// The run itself succeeded; the cleanup problem is recorded only.
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status())

	cleanup := res.Step(StepCleanup)
	require.NotNil(t, cleanup)
	assert.Equal(t, StatusFailed, cleanup.Status)
	assert.ErrorContains(t, cleanup.Err, "permission denied")
}

func TestEngine_Run_SetupFailureWhenDaemonDown(t *testing.T) {
	stubGit(t)
	stub := stubDocker()
	stub.Stub("version", "", errors.New("Cannot connect to the Docker daemon"))
	eng := newTestEngine(t, testConfig(t), stub, nil)

	res, err := eng.Run(context.Background(), "manual")
	require.Error(t, err)
	assert.ErrorContains(t, err, "setup")

	statuses := stepStatuses(res)
	assert.Equal(t, StatusFailed, statuses[StepSetup])
	assert.Equal(t, StatusSkipped, statuses[StepAuth])
	assert.Equal(t, StatusSkipped, statuses[StepBuild])
}

func TestEngine_Run_MissingDockerfile(t *testing.T) {
	stubGit(t)
	stub := stubDocker()
	cfg := testConfig(t)
	require.NoError(t, os.Remove(filepath.Join(cfg.Source.Dir, "Dockerfile")))
	eng := newTestEngine(t, cfg, stub, nil)

	_, err := eng.Run(context.Background(), "manual")
	require.Error(t, err)
	assert.ErrorContains(t, err, "dockerfile")
}

func TestEngine_Run_ForwardsSecretEnvToContainer(t *testing.T) {
	stubGit(t)
	stub := stubDocker()
	eng := newTestEngine(t, testConfig(t), stub, nil)

	_, err := eng.Run(context.Background(), "manual")
	require.NoError(t, err)

	var runCall string
	for _, call := range stub.Calls() {
		if strings.HasPrefix(call, "run -d") {
			runCall = call
		}
	}
	require.NotEmpty(t, runCall)
	assert.Contains(t, runCall, "-e APP_TOKEN=tok123")
	assert.Contains(t, runCall, "-p 8000:8000")

	// The registry password travelled over stdin.
	require.Len(t, stub.Stdins(), 1)
	assert.Equal(t, "s3cret", stub.Stdins()[0])
}

func TestEngine_Run_EmitsLifecycleEvents(t *testing.T) {
	stubGit(t)
	stub := stubDocker()
	bus := events.NewBus(100)
	col := &collector{}
	bus.Subscribe(col.handler())

	eng := newTestEngine(t, testConfig(t), stub, bus)
	_, err := eng.Run(context.Background(), "manual")
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	types := col.types()
	require.NotEmpty(t, types)
	assert.Equal(t, string(events.RunStarted), types[0])
	assert.Equal(t, string(events.RunCompleted), types[len(types)-1])

	started := 0
	completed := 0
	for _, tp := range types {
		switch tp {
		case string(events.StepStarted):
			started++
		case string(events.StepCompleted):
			completed++
		}
	}
	assert.Equal(t, 8, started, "one step.started per step")
	assert.Equal(t, 8, completed, "one step.completed per step")
	assert.Contains(t, types, string(events.StepOutput))
}

func TestNew_InvalidStartupWait(t *testing.T) {
	cfg := testConfig(t)
	cfg.Container.StartupWait = "soon"
	_, err := New(cfg, Dependencies{Env: testEnv})
	require.Error(t, err)
	assert.ErrorContains(t, err, "startup wait")
}
