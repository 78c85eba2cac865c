package cli

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/drydock-sh/shakedown/internal/history"
)

func seedStore(t *testing.T) *history.Store {
	t.Helper()

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedRun(t *testing.T, store *history.Store, id string) {
	t.Helper()

	err := store.CreateRun(&history.Run{
		ID:          id,
		Image:       "docker.io/acme/app:ci",
		Container:   "shakedown-app",
		CommitSHA:   "0123456789abcdef0123456789abcdef01234567",
		Branch:      "main",
		TriggeredBy: "push:0123456",
		Status:      history.RunStatusRunning,
		StartedAt:   time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	err = store.RecordSteps(id, []history.StepRecord{
		{Name: "snapshot", Status: "ok", DurationMS: 12},
		{Name: "build", Status: "failed", DurationMS: 2100, Error: "build: exit status 1"},
		{Name: "push", Status: "skipped"},
	})
	if err != nil {
		t.Fatalf("failed to record steps: %v", err)
	}

	if err := store.CompleteRun(id, "failed", "build: exit status 1"); err != nil {
		t.Fatalf("failed to complete run: %v", err)
	}
}

func TestHistoryCmd_Flags(t *testing.T) {
	app := New()
	cmd := NewHistoryCmd(app)

	limitFlag := cmd.Flags().Lookup("limit")
	if limitFlag == nil {
		t.Fatal("limit flag not found")
	}
	if limitFlag.DefValue != "20" {
		t.Errorf("Expected default limit 20, got %s", limitFlag.DefValue)
	}
	if limitFlag.Shorthand != "n" {
		t.Errorf("Expected limit shorthand 'n', got %s", limitFlag.Shorthand)
	}
}

func TestPrintRunList_Empty(t *testing.T) {
	store := seedStore(t)

	var buf bytes.Buffer
	if err := printRunList(&buf, store, 20); err != nil {
		t.Fatalf("printRunList failed: %v", err)
	}

	if !strings.Contains(buf.String(), "No runs recorded.") {
		t.Errorf("expected empty-store message, got: %s", buf.String())
	}
}

func TestPrintRunList_RendersRuns(t *testing.T) {
	store := seedStore(t)
	seedRun(t, store, "01ARZ3NDEKTSV4RRFFQ69G5FAV")

	var buf bytes.Buffer
	if err := printRunList(&buf, store, 20); err != nil {
		t.Fatalf("printRunList failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"RUN",
		"STATUS",
		"01ARZ3NDEKTSV4RRFFQ69G5FAV",
		"failed",
		"push:0123456",
		"0123456 (main)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("list missing %q:\n%s", want, out)
		}
	}
}

func TestPrintRunDetail(t *testing.T) {
	store := seedStore(t)
	seedRun(t, store, "01ARZ3NDEKTSV4RRFFQ69G5FAV")

	var buf bytes.Buffer
	if err := printRunDetail(&buf, store, "01ARZ3NDEKTSV4RRFFQ69G5FAV"); err != nil {
		t.Fatalf("printRunDetail failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Run:       01ARZ3NDEKTSV4RRFFQ69G5FAV",
		"Status:    failed",
		"Image:     docker.io/acme/app:ci",
		"Error:     build: exit status 1",
		"snapshot",
		"2.1s",
		"skipped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("detail missing %q:\n%s", want, out)
		}
	}
}

func TestPrintRunDetail_NotFound(t *testing.T) {
	store := seedStore(t)

	var buf bytes.Buffer
	err := printRunDetail(&buf, store, "no-such-run")
	if err == nil {
		t.Fatal("expected error for unknown run ID")
	}
	if !errors.Is(err, history.ErrNotFound) {
		t.Errorf("expected ErrNotFound in chain, got: %v", err)
	}
}
