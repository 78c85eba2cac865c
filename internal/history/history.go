// Package history persists pipeline runs to a local SQLite database so
// past deployments can be listed and inspected after the fact.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no run exists for a requested id.
var ErrNotFound = errors.New("run not found")

// Store wraps the SQLite connection with run-history operations.
type Store struct {
	conn *sql.DB
}

// Open creates or opens the history database at the given path.
// It enables WAL mode, foreign keys, and runs migrations. Parent
// directories are created as needed.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create history directory: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// migrate brings the schema up to date. Idempotent.
func (s *Store) migrate() error {
	schema := `
-- Runs table: one row per pipeline run
CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    image         TEXT NOT NULL,
    container     TEXT NOT NULL,
    commit_sha    TEXT NOT NULL DEFAULT '',
    branch        TEXT NOT NULL DEFAULT '',
    dirty         INTEGER NOT NULL DEFAULT 0,
    triggered_by  TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    started_at    DATETIME NOT NULL,
    completed_at  DATETIME,
    error         TEXT NOT NULL DEFAULT ''
);

-- Steps table: per-step outcomes within a run
CREATE TABLE IF NOT EXISTS steps (
    run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    idx          INTEGER NOT NULL,
    name         TEXT NOT NULL,
    status       TEXT NOT NULL,
    duration_ms  INTEGER NOT NULL DEFAULT 0,
    error        TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

	if _, err := s.conn.Exec(schema); err != nil {
		return err
	}

	return nil
}
