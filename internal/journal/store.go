// Package journal keeps a local SQLite history of hand-off runs and of the
// tasks the poller has already handled.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alekspetrov/qa-handoff/internal/handoff"
	"github.com/alekspetrov/qa-handoff/internal/logging"
)

// Run is one persisted hand-off run.
type Run struct {
	RunID        string
	ItemID       string
	Title        string
	Outcome      string
	State        string
	GatePassed   bool
	Rechecked    bool
	Spreadsheet  string
	LinkSource   string
	PreviewLinks int
	ImageSource  string
	Images       int
	ImageErrors  int
	Degraded     bool
	Draft        bool
	DryRun       bool
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store persists runs to SQLite.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// NewStore wraps an existing connection and runs migrations.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db, log: logging.WithComponent("journal")}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}
	return s, nil
}

// Open opens (or creates) the journal database at path. ":memory:" is
// accepted for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set database pragmas: %w", err)
	}
	s, err := NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS handoff_runs (
			run_id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			state TEXT NOT NULL,
			gate_passed INTEGER NOT NULL DEFAULT 0,
			rechecked INTEGER NOT NULL DEFAULT 0,
			spreadsheet TEXT NOT NULL DEFAULT '',
			link_source TEXT NOT NULL DEFAULT '',
			preview_links INTEGER NOT NULL DEFAULT 0,
			image_source TEXT NOT NULL DEFAULT '',
			images INTEGER NOT NULL DEFAULT 0,
			image_errors INTEGER NOT NULL DEFAULT 0,
			degraded INTEGER NOT NULL DEFAULT 0,
			draft INTEGER NOT NULL DEFAULT 0,
			dry_run INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_handoff_runs_item ON handoff_runs(item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_handoff_runs_started ON handoff_runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS processed_tasks (
			task_gid TEXT PRIMARY KEY,
			processed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			result TEXT DEFAULT ''
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// FromResult converts a pipeline result into a journal row.
func FromResult(r *handoff.Result) Run {
	run := Run{
		RunID:        r.RunID,
		ItemID:       r.ItemID,
		Title:        r.Title,
		Outcome:      string(r.Outcome),
		State:        string(r.State),
		GatePassed:   r.Decision.Passed,
		Rechecked:    r.Decision.Rechecked,
		LinkSource:   string(r.LinkSource),
		PreviewLinks: len(r.PreviewLinks),
		ImageSource:  string(r.ImageSource),
		Images:       len(r.Images),
		ImageErrors:  r.ImageErrors,
		Degraded:     r.Degraded,
		Draft:        r.Draft,
		DryRun:       r.DryRun,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}
	if r.Spreadsheet != nil {
		run.Spreadsheet = r.Spreadsheet.Name
	}
	if r.Err != nil {
		run.Error = r.Err.Error()
	}
	return run
}

// Record stores a run. Recording the same run ID twice replaces the row.
func (s *Store) Record(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO handoff_runs (
			run_id, item_id, title, outcome, state, gate_passed, rechecked,
			spreadsheet, link_source, preview_links, image_source, images,
			image_errors, degraded, draft, dry_run, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			outcome = excluded.outcome,
			state = excluded.state,
			gate_passed = excluded.gate_passed,
			rechecked = excluded.rechecked,
			spreadsheet = excluded.spreadsheet,
			link_source = excluded.link_source,
			preview_links = excluded.preview_links,
			image_source = excluded.image_source,
			images = excluded.images,
			image_errors = excluded.image_errors,
			degraded = excluded.degraded,
			draft = excluded.draft,
			dry_run = excluded.dry_run,
			error = excluded.error,
			finished_at = excluded.finished_at
	`,
		run.RunID, run.ItemID, run.Title, run.Outcome, run.State,
		run.GatePassed, run.Rechecked,
		run.Spreadsheet, run.LinkSource, run.PreviewLinks, run.ImageSource, run.Images,
		run.ImageErrors, run.Degraded, run.Draft, run.DryRun, run.Error,
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}
	return nil
}

// ObserveRun records a finished pipeline run. Errors are logged only.
func (s *Store) ObserveRun(ctx context.Context, r *handoff.Result) {
	if err := s.Record(ctx, FromResult(r)); err != nil {
		s.log.Warn("Failed to record run",
			slog.String("run_id", r.RunID),
			slog.String("item_id", r.ItemID),
			slog.Any("error", err))
	}
}

const runColumns = `run_id, item_id, title, outcome, state, gate_passed, rechecked,
	spreadsheet, link_source, preview_links, image_source, images,
	image_errors, degraded, draft, dry_run, error, started_at, finished_at`

// Recent returns the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM handoff_runs ORDER BY started_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	return scanRuns(rows)
}

// ForItem returns every run of one work item, newest first.
func (s *Store) ForItem(ctx context.Context, itemID string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM handoff_runs WHERE item_id = ? ORDER BY started_at DESC, run_id DESC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(
			&r.RunID, &r.ItemID, &r.Title, &r.Outcome, &r.State, &r.GatePassed, &r.Rechecked,
			&r.Spreadsheet, &r.LinkSource, &r.PreviewLinks, &r.ImageSource, &r.Images,
			&r.ImageErrors, &r.Degraded, &r.Draft, &r.DryRun, &r.Error, &r.StartedAt, &r.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// MarkProcessed records that the poller handled a task.
func (s *Store) MarkProcessed(taskGID, result string) error {
	_, err := s.db.Exec(`
		INSERT INTO processed_tasks (task_gid, processed_at, result)
		VALUES (?, CURRENT_TIMESTAMP, ?)
		ON CONFLICT(task_gid) DO UPDATE SET
			processed_at = CURRENT_TIMESTAMP,
			result = excluded.result
	`, taskGID, result)
	return err
}

// UnmarkProcessed lets the poller pick a task up again.
func (s *Store) UnmarkProcessed(taskGID string) error {
	_, err := s.db.Exec(`DELETE FROM processed_tasks WHERE task_gid = ?`, taskGID)
	return err
}

// LoadProcessed returns the GIDs the poller must not pick up again. Gate
// failures stay eligible so a task fixed after tagging is retried.
func (s *Store) LoadProcessed() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT task_gid FROM processed_tasks WHERE result != 'gate_failed'`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	processed := make(map[string]bool)
	for rows.Next() {
		var gid string
		if err := rows.Scan(&gid); err != nil {
			return nil, err
		}
		processed[gid] = true
	}
	return processed, rows.Err()
}

// PurgeProcessed drops processed records older than the given duration.
func (s *Store) PurgeProcessed(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format("2006-01-02 15:04:05")
	result, err := s.db.Exec(`DELETE FROM processed_tasks WHERE processed_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
