package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunStatusRunning marks a run that has been created but not completed.
const RunStatusRunning = "running"

// Run is one recorded pipeline run.
type Run struct {
	ID          string       `json:"id"`
	Image       string       `json:"image"`
	Container   string       `json:"container"`
	CommitSHA   string       `json:"commit_sha,omitempty"`
	Branch      string       `json:"branch,omitempty"`
	Dirty       bool         `json:"dirty,omitempty"`
	TriggeredBy string       `json:"triggered_by"`
	Status      string       `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Error       string       `json:"error,omitempty"`
	Steps       []StepRecord `json:"steps,omitempty"`
}

// StepRecord is one step's outcome within a recorded run.
type StepRecord struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// runColumns is the select list scanRun expects, in order.
const runColumns = `id, image, container, commit_sha, branch, dirty,
	triggered_by, status, started_at, completed_at, error`

// scanRun reads one runs row. Works for both sql.Row and sql.Rows.
func scanRun(row interface{ Scan(dest ...any) error }) (*Run, error) {
	run := &Run{}
	err := row.Scan(
		&run.ID, &run.Image, &run.Container, &run.CommitSHA, &run.Branch,
		&run.Dirty, &run.TriggeredBy, &run.Status, &run.StartedAt,
		&run.CompletedAt, &run.Error,
	)
	return run, err
}

// CreateRun inserts a new run. Callers that record after the fact can
// follow up with RecordSteps and CompleteRun.
func (s *Store) CreateRun(run *Run) error {
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	_, err := s.conn.Exec(`
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Image, run.Container, run.CommitSHA, run.Branch,
		run.Dirty, run.TriggeredBy, run.Status, run.StartedAt,
		run.CompletedAt, run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// CompleteRun records a run's terminal status, completion time, and
// error text (empty for a clean run).
func (s *Store) CompleteRun(id, status, errText string) error {
	result, err := s.conn.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, time.Now(), errText, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// RecordSteps replaces the step rows for a run, preserving order.
func (s *Store) RecordSteps(runID string, steps []StepRecord) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM steps WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear steps: %w", err)
	}

	insert := `
		INSERT INTO steps (run_id, idx, name, status, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?)`
	for i, step := range steps {
		if _, err := tx.Exec(insert, runID, i, step.Name, step.Status, step.DurationMS, step.Error); err != nil {
			return fmt.Errorf("failed to record step %s: %w", step.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit steps: %w", err)
	}
	return nil
}

// GetRun retrieves a run and its steps by id.
// Returns ErrNotFound if the run does not exist.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	steps, err := s.getSteps(id)
	if err != nil {
		return nil, err
	}
	run.Steps = steps

	return run, nil
}

// ListRuns returns the most recent runs, newest first, without their
// steps. A non-positive limit returns all runs.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means no limit
	}

	rows, err := s.conn.Query(
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func (s *Store) getSteps(runID string) ([]StepRecord, error) {
	rows, err := s.conn.Query(`
		SELECT name, status, duration_ms, error
		FROM steps
		WHERE run_id = ?
		ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var step StepRecord
		if err := rows.Scan(&step.Name, &step.Status, &step.DurationMS, &step.Error); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate steps: %w", err)
	}
	return steps, nil
}
