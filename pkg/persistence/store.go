// Package persistence stores run history in a per-project SQLite
// database. History is best-effort: a storage failure degrades to an
// unrecorded run, it never aborts the pipeline.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"codewright/pkg/config"
	"codewright/pkg/logx"
	"codewright/pkg/proto"
)

const dbFileName = "history.db"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	request     TEXT NOT NULL,
	success     INTEGER NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS task_outcomes (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	task_id        TEXT NOT NULL,
	title          TEXT NOT NULL,
	status         TEXT NOT NULL,
	attempts       INTEGER NOT NULL,
	files_changed  INTEGER NOT NULL,
	issue_count    INTEGER NOT NULL,
	review_summary TEXT,
	failure_reason TEXT,
	duration_ms    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_task_outcomes_run ON task_outcomes(run_id);
`

// Store is a per-project run history database. Not a singleton: the
// caller owns the handle and its lifetime.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if needed) the history database under the
// project's dot directory, in WAL mode with a busy timeout.
func Open(projectRoot string) (*Store, error) {
	dir := filepath.Join(projectRoot, config.ProjectDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s directory: %w", config.ProjectDirName, err)
	}

	dbPath := filepath.Join(dir, dbFileName)
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db, logger: logx.NewLogger("persistence")}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun records a run and its task outcomes in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *proto.RunResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, request, success, started_at, duration_ms) VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.Request, boolToInt(run.Success), run.StartedAt, run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.RunID, err)
	}

	for i := range run.Outcomes {
		outcome := &run.Outcomes[i]
		_, err = tx.ExecContext(ctx,
			`INSERT INTO task_outcomes
			 (run_id, task_id, title, status, attempts, files_changed, issue_count, review_summary, failure_reason, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, outcome.Task.ID, outcome.Task.Title, string(outcome.Status), outcome.Attempts,
			len(outcome.Changes), len(outcome.Issues), outcome.ReviewSummary, outcome.FailureReason,
			outcome.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("inserting outcome for task %s: %w", outcome.Task.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run %s: %w", run.RunID, err)
	}
	s.logger.Debug("recorded run %s with %d task(s)", run.RunID, len(run.Outcomes))
	return nil
}

// RunRecord is a summary row from the runs table.
type RunRecord struct {
	RunID     string
	Request   string
	Success   bool
	StartedAt time.Time
	Duration  time.Duration
	Tasks     int
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.request, r.success, r.started_at, r.duration_ms,
		        (SELECT COUNT(*) FROM task_outcomes t WHERE t.run_id = r.id)
		 FROM runs r ORDER BY r.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var success int
		var durationMS int64
		if err := rows.Scan(&rec.RunID, &rec.Request, &success, &rec.StartedAt, &durationMS, &rec.Tasks); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		rec.Success = success != 0
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

// TaskRecord is one task outcome row.
type TaskRecord struct {
	TaskID        string
	Title         string
	Status        string
	Attempts      int
	FilesChanged  int
	IssueCount    int
	ReviewSummary string
	FailureReason string
	Duration      time.Duration
}

// GetRunTasks returns the recorded task outcomes for one run.
func (s *Store) GetRunTasks(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, title, status, attempts, files_changed, issue_count,
		        COALESCE(review_summary, ''), COALESCE(failure_reason, ''), duration_ms
		 FROM task_outcomes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying tasks for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var records []TaskRecord
	for rows.Next() {
		var rec TaskRecord
		var durationMS int64
		if err := rows.Scan(&rec.TaskID, &rec.Title, &rec.Status, &rec.Attempts, &rec.FilesChanged,
			&rec.IssueCount, &rec.ReviewSummary, &rec.FailureReason, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
