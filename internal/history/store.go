// Package history keeps finished run reports in a SQLite database so runs
// can be listed and compared later.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wesleyorama2/stressor/internal/performance/report"
)

// ErrNotFound is returned when no run has the requested ID.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	target       TEXT    NOT NULL,
	started_at   INTEGER NOT NULL,
	elapsed_ms   INTEGER NOT NULL,
	concurrency  INTEGER NOT NULL,
	total        INTEGER NOT NULL,
	success_rate REAL    NOT NULL,
	throughput   REAL    NOT NULL,
	p95_ms       REAL    NOT NULL,
	anomalies    INTEGER NOT NULL,
	stars        INTEGER NOT NULL,
	passed       INTEGER NOT NULL,
	aborted      INTEGER NOT NULL,
	report       BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at);
CREATE INDEX IF NOT EXISTS idx_runs_target ON runs (target);
`

// Entry is the summary row of a stored run.
type Entry struct {
	ID          string
	Target      string
	StartedAt   time.Time
	Elapsed     time.Duration
	Concurrency int
	Total       int64
	SuccessRate float64
	Throughput  float64
	P95         float64
	Anomalies   int
	Stars       int
	Passed      bool
	Aborted     bool
}

// Store persists run reports.
//
// # Thread Safety
//
// Store is safe for concurrent use; database/sql pools the connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores r. Saving a report with an existing ID replaces it.
func (s *Store) Save(ctx context.Context, r *report.RunReport) error {
	if r == nil {
		return errors.New("report cannot be nil")
	}
	if r.ID == "" {
		return errors.New("report has no ID")
	}
	data, err := report.Marshal(r)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
		(id, target, started_at, elapsed_ms, concurrency, total, success_rate, throughput, p95_ms, anomalies, stars, passed, aborted, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Target, r.StartedAt.UnixMilli(), r.Elapsed.Milliseconds(), r.Concurrency,
		r.Total, r.SuccessRate, r.Throughput, r.Latency.P95, len(r.Anomalies),
		r.Rating.Stars, r.Passed, r.Aborted, data)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// List returns the most recent runs first. A non-empty target restricts the
// result to that target; limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, target string, limit int) ([]Entry, error) {
	query := `
		SELECT id, target, started_at, elapsed_ms, concurrency, total, success_rate,
		       throughput, p95_ms, anomalies, stars, passed, aborted
		FROM runs
		WHERE ? = '' OR target = ?
		ORDER BY started_at DESC, id DESC`
	args := []any{target, target}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var startedAt, elapsedMs int64
		if err := rows.Scan(&e.ID, &e.Target, &startedAt, &elapsedMs, &e.Concurrency, &e.Total,
			&e.SuccessRate, &e.Throughput, &e.P95, &e.Anomalies, &e.Stars, &e.Passed, &e.Aborted); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		e.StartedAt = time.UnixMilli(startedAt)
		e.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get loads the full report of a run.
func (s *Store) Get(ctx context.Context, id string) (*report.RunReport, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT report FROM runs WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return report.Unmarshal(data)
}

// Delete removes a run.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
