// Package storage persists health-check run history. The orchestrator's
// own state is in-memory only; history exists for the CLI and the history
// endpoint.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazz-dev/healthgate/internal/healthcheck"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    status  TEXT    NOT NULL CHECK(status IN ('green', 'yellow', 'red', 'gray')),
    error   TEXT    NOT NULL DEFAULT '',
    ran_at  TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS run_checks (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    name        TEXT    NOT NULL,
    status      TEXT    NOT NULL,
    result      TEXT    NOT NULL DEFAULT '',
    duration_s  REAL,
    error       TEXT    NOT NULL DEFAULT '',
    critical    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_ran_at ON runs(ran_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_checks_run ON run_checks(run_id);
`

// Run is a stored aggregate run.
type Run struct {
	ID     int64      `json:"id"`
	Status string     `json:"status"`
	Error  string     `json:"error,omitempty"`
	RanAt  time.Time  `json:"ran_at"`
	Checks []RunCheck `json:"checks,omitempty"`
}

// RunCheck is one check's outcome within a stored run.
type RunCheck struct {
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	Result    string   `json:"result"`
	DurationS *float64 `json:"duration_s"`
	Error     string   `json:"error,omitempty"`
	Critical  bool     `json:"critical"`
}

// DB wraps a SQLite database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// RecordRun persists a published snapshot. Implements
// healthcheck.RunRecorder.
func (d *DB) RecordRun(ctx context.Context, snap healthcheck.Snapshot) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning run insert: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (status, error, ran_at) VALUES (?, ?, ?)`,
		string(snap.Status),
		snap.Error,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading run id: %w", err)
	}

	for _, c := range snap.Checks {
		critical := 0
		if c.Meta.Critical {
			critical = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_checks (run_id, name, status, result, duration_s, error, critical) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, c.Name, string(c.Status), string(c.Result), c.Duration, c.Error, critical,
		); err != nil {
			return fmt.Errorf("inserting run check %q: %w", c.Name, err)
		}
	}

	return tx.Commit()
}

// RecentRuns returns the most recent runs, newest first, with their checks
// attached.
func (d *DB) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, status, error, ran_at FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ranAt string
		if err := rows.Scan(&r.ID, &r.Status, &r.Error, &ranAt); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		t, err := parseStoredTime(ranAt)
		if err != nil {
			return nil, err
		}
		r.RanAt = t
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run rows: %w", err)
	}

	for i := range runs {
		checks, err := d.runChecks(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Checks = checks
	}
	return runs, nil
}

// LatestRun returns the most recent run, or nil when no history exists.
func (d *DB) LatestRun(ctx context.Context) (*Run, error) {
	runs, err := d.RecentRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (d *DB) runChecks(ctx context.Context, runID int64) ([]RunCheck, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name, status, result, duration_s, error, critical FROM run_checks WHERE run_id = ? ORDER BY name`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("querying checks for run %d: %w", runID, err)
	}
	defer rows.Close()

	var checks []RunCheck
	for rows.Next() {
		var c RunCheck
		var critical int
		if err := rows.Scan(&c.Name, &c.Status, &c.Result, &c.DurationS, &c.Error, &critical); err != nil {
			return nil, fmt.Errorf("scanning check row: %w", err)
		}
		c.Critical = critical != 0
		checks = append(checks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating check rows: %w", err)
	}
	return checks, nil
}

func parseStoredTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing ran_at %q: %w", s, err)
	}
	return t, nil
}

var _ healthcheck.RunRecorder = (*DB)(nil)
