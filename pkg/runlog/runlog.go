// Package runlog keeps a SQLite ledger of sync runs.
//
// Each run is one row in runs with its totals; per-category results go to
// run_categories. The ledger backs the history command and records whether
// the link wrapper ran after the sync.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cinebyhub/catalog-sync/pkg/syncer"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrRunNotFound is returned when a run id is not in the ledger.
var ErrRunNotFound = errors.New("run not found")

// Wrap outcomes stored per run.
const (
	WrapPending = ""
	WrapDone    = "done"
	WrapSkipped = "skipped"
	WrapFailed  = "failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	fetched     INTEGER NOT NULL DEFAULT 0,
	added       INTEGER NOT NULL DEFAULT 0,
	errors      INTEGER NOT NULL DEFAULT 0,
	wrap_status TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

CREATE TABLE IF NOT EXISTS run_categories (
	run_id              TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position            INTEGER NOT NULL,
	category            TEXT NOT NULL,
	sheet               TEXT NOT NULL,
	existing            INTEGER NOT NULL,
	fetched             INTEGER NOT NULL,
	added               INTEGER NOT NULL,
	total               INTEGER NOT NULL,
	descriptors         INTEGER NOT NULL,
	pages               INTEGER NOT NULL,
	early_stops         INTEGER NOT NULL,
	descriptor_failures INTEGER NOT NULL,
	record_errors       INTEGER NOT NULL,
	duration_ms         INTEGER NOT NULL,
	written             INTEGER NOT NULL,
	error               TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, position)
);
`

// Run is one ledger row.
type Run struct {
	ID         string
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time
	Fetched    int
	Added      int
	Errors     int
	WrapStatus string
}

// Duration is the wall time of the run.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

const maxOpenConns = 4

// connPragmas apply to every pooled connection, not just the first one.
var connPragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"foreign_keys(1)",
}

func dsn(path string) string {
	var b strings.Builder
	b.WriteString("file:")
	b.WriteString(path)
	for i, p := range connPragmas {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString("_pragma=")
		b.WriteString(p)
	}
	return b.String()
}

// Ledger is the run history database.
type Ledger struct {
	conn *sql.DB
	path string
}

// Open opens or creates the ledger at path and ensures its schema.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	conn.SetMaxOpenConns(maxOpenConns)
	conn.SetConnMaxLifetime(5 * time.Minute)

	l := &Ledger{conn: conn, path: path}
	if _, err := conn.Exec(schema); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return l, nil
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.path
}

// Close checkpoints the WAL and closes the database.
func (l *Ledger) Close() error {
	if l.conn == nil {
		return nil
	}
	_, _ = l.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := l.conn.Close()
	l.conn = nil
	if err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	return nil
}

// Record appends a run summary. Recording the same run id twice fails.
func (l *Ledger) Record(ctx context.Context, s *syncer.Summary) error {
	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	fetched, added, errs := s.Totals()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, mode, started_at, finished_at, fetched, added, errors)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, string(s.Mode), formatTime(s.StartedAt), formatTime(s.FinishedAt), fetched, added, errs)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", s.RunID, err)
	}

	for i, c := range s.Categories {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_categories (
				run_id, position, category, sheet, existing, fetched, added, total,
				descriptors, pages, early_stops, descriptor_failures, record_errors,
				duration_ms, written, error
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.RunID, i, c.Category, c.Sheet, c.Existing, c.Fetched, c.New, c.Total,
			c.Descriptors, c.Pages, c.EarlyStops, c.DescriptorFailures, c.RecordErrors,
			c.Duration.Milliseconds(), boolInt(c.Written), c.Error)
		if err != nil {
			return fmt.Errorf("insert category %s: %w", c.Category, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", s.RunID, err)
	}
	return nil
}

// SetWrapStatus records the link wrapper outcome for a run.
func (l *Ledger) SetWrapStatus(ctx context.Context, runID, status string) error {
	res, err := l.conn.ExecContext(ctx, `UPDATE runs SET wrap_status = ? WHERE id = ?`, status, runID)
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// Recent returns up to n runs, newest first.
func (l *Ledger) Recent(ctx context.Context, n int) ([]Run, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := l.conn.QueryContext(ctx,
		`SELECT id, mode, started_at, finished_at, fetched, added, errors, wrap_status
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r             Run
			started, done string
		)
		if err := rows.Scan(&r.ID, &r.Mode, &started, &done, &r.Fetched, &r.Added, &r.Errors, &r.WrapStatus); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(done)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Categories returns the per-category results of a run in sync order.
func (l *Ledger) Categories(ctx context.Context, runID string) ([]syncer.CategoryResult, error) {
	var exists int
	err := l.conn.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}

	rows, err := l.conn.QueryContext(ctx,
		`SELECT category, sheet, existing, fetched, added, total, descriptors, pages,
		        early_stops, descriptor_failures, record_errors, duration_ms, written, error
		 FROM run_categories WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []syncer.CategoryResult
	for rows.Next() {
		var (
			c       syncer.CategoryResult
			ms      int64
			written int
		)
		if err := rows.Scan(&c.Category, &c.Sheet, &c.Existing, &c.Fetched, &c.New, &c.Total,
			&c.Descriptors, &c.Pages, &c.EarlyStops, &c.DescriptorFailures, &c.RecordErrors,
			&ms, &written, &c.Error); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Duration = time.Duration(ms) * time.Millisecond
		c.Written = written != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
