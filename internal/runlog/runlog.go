// Package runlog is a small sqlite-backed run registry consulted by the
// three agent CLIs: one row per discovery/export/apply invocation, so an
// operator can ask "how many runs so far, and did the last one succeed"
// without re-parsing every checkpoint file under output_dir.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Agent names the CLI that produced a run row.
type Agent string

const (
	AgentDiscovery Agent = "discovery"
	AgentExport    Agent = "export"
	AgentApply     Agent = "apply"
)

// Status is the terminal or in-progress state of a run.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path, runs its
// migration, and enables WAL mode for single-writer durability.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("runlog: db path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent TEXT NOT NULL,
			run_id TEXT NOT NULL,
			target TEXT NOT NULL,
			status TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			last_error TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			finished_at TEXT,
			UNIQUE(agent, run_id)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Run is one row of run history.
type Run struct {
	ID         int64
	Agent      Agent
	RunID      string
	Target     string
	Status     Status
	Summary    string
	LastError  string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Start records a new run row in the "running" state, returning its id.
func (s *Store) Start(ctx context.Context, agent Agent, runID, target string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (agent, run_id, target, status, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agent, run_id) DO UPDATE SET
			target=excluded.target,
			status=excluded.status,
			started_at=excluded.started_at,
			finished_at=NULL,
			last_error=''
	`, string(agent), runID, target, string(StatusRunning), now)
	return err
}

// Finish records the terminal status of a run started with Start.
func (s *Store) Finish(ctx context.Context, agent Agent, runID string, status Status, summary string, runErr error) error {
	now := time.Now().UTC().Format(time.RFC3339)
	lastErr := ""
	if runErr != nil {
		lastErr = runErr.Error()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, summary = ?, last_error = ?, finished_at = ?
		WHERE agent = ? AND run_id = ?
	`, string(status), summary, lastErr, now, string(agent), runID)
	return err
}

// Recent returns the most recent runs for an agent, newest first, capped at
// limit rows.
func (s *Store) Recent(ctx context.Context, agent Agent, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent, run_id, target, status, summary, last_error, started_at, finished_at
		FROM runs WHERE agent = ? ORDER BY id DESC LIMIT ?
	`, string(agent), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var agentStr, status, started string
		var finished sql.NullString
		if err := rows.Scan(&r.ID, &agentStr, &r.RunID, &r.Target, &status, &r.Summary, &r.LastError, &started, &finished); err != nil {
			return nil, err
		}
		r.Agent = Agent(agentStr)
		r.Status = Status(status)
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		if finished.Valid && finished.String != "" {
			t, perr := time.Parse(time.RFC3339, finished.String)
			if perr == nil {
				r.FinishedAt = &t
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
