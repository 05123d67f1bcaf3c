package metrics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"voiceloom/internal/config"
	"voiceloom/internal/monitor"
)

// RunRecord is one persisted pipeline run with its per-stage results.
type RunRecord struct {
	ID           string
	CreatedAt    time.Time
	Source       string
	Status       string
	ErrorKind    string
	ErrorMessage string
	Stages       []monitor.StageResult
}

// Store persists run history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    source TEXT NOT NULL,
    status TEXT NOT NULL,
    error_kind TEXT,
    error_message TEXT
);
CREATE TABLE IF NOT EXISTS stage_results (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    stage TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    max_rss_kib INTEGER NOT NULL,
    user_cpu_ms INTEGER NOT NULL,
    system_cpu_ms INTEGER NOT NULL,
    error_kind TEXT,
    error_message TEXT,
    PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Open initializes or connects to the run history database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.Paths.MetricsDB
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path reports the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	if err := s.execWithRetry(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// RecordRun persists a run and its stage results in one transaction.
func (s *Store) RecordRun(ctx context.Context, run RunRecord) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO runs (id, created_at, source, status, error_kind, error_message)
             VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID,
			run.CreatedAt.UTC().Format(time.RFC3339Nano),
			run.Source,
			run.Status,
			nullableString(run.ErrorKind),
			nullableString(run.ErrorMessage),
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for seq, stage := range run.Stages {
			_, err = tx.ExecContext(
				ctx,
				`INSERT INTO stage_results (
                    run_id, seq, stage, status, started_at, duration_ms,
                    max_rss_kib, user_cpu_ms, system_cpu_ms, error_kind, error_message
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				run.ID,
				seq,
				stage.Stage,
				string(stage.Status),
				stage.StartedAt.UTC().Format(time.RFC3339Nano),
				stage.Duration.Milliseconds(),
				stage.Resources.MaxRSSKiB,
				stage.Resources.UserCPU.Milliseconds(),
				stage.Resources.SystemCPU.Milliseconds(),
				nullableString(stage.ErrorKind),
				nullableString(stage.ErrorMessage),
			)
			if err != nil {
				return fmt.Errorf("insert stage result: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit run: %w", err)
		}
		return nil
	})
}

// RecentRuns returns the most recent runs, newest first, with stage results
// attached in recorded order.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, created_at, source, status, error_kind, error_message
         FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			run        RunRecord
			createdRaw string
			errKind    sql.NullString
			errMessage sql.NullString
		)
		if err := rows.Scan(&run.ID, &createdRaw, &run.Source, &run.Status, &errKind, &errMessage); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if created, parseErr := time.Parse(time.RFC3339Nano, createdRaw); parseErr == nil {
			run.CreatedAt = created
		}
		run.ErrorKind = errKind.String
		run.ErrorMessage = errMessage.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	for i := range runs {
		stages, err := s.stagesForRun(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Stages = stages
	}
	return runs, nil
}

// GetRun returns a single run by identifier, or nil when absent.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, created_at, source, status, error_kind, error_message FROM runs WHERE id = ?`,
		id,
	)
	var (
		run        RunRecord
		createdRaw string
		errKind    sql.NullString
		errMessage sql.NullString
	)
	if err := row.Scan(&run.ID, &createdRaw, &run.Source, &run.Status, &errKind, &errMessage); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	if created, parseErr := time.Parse(time.RFC3339Nano, createdRaw); parseErr == nil {
		run.CreatedAt = created
	}
	run.ErrorKind = errKind.String
	run.ErrorMessage = errMessage.String

	stages, err := s.stagesForRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	run.Stages = stages
	return &run, nil
}

// Prune removes runs older than the cutoff and returns the number removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(
			ctx,
			`DELETE FROM runs WHERE created_at < ?`,
			cutoff.UTC().Format(time.RFC3339Nano),
		)
		if execErr != nil {
			return fmt.Errorf("prune runs: %w", execErr)
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	return affected, err
}

func (s *Store) stagesForRun(ctx context.Context, runID string) ([]monitor.StageResult, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT stage, status, started_at, duration_ms, max_rss_kib, user_cpu_ms, system_cpu_ms, error_kind, error_message
         FROM stage_results WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query stage results: %w", err)
	}
	defer rows.Close()

	var stages []monitor.StageResult
	for rows.Next() {
		var (
			result      monitor.StageResult
			statusStr   string
			startedRaw  string
			durationMS  int64
			userCPUMS   int64
			systemCPUMS int64
			errKind     sql.NullString
			errMessage  sql.NullString
		)
		if err := rows.Scan(
			&result.Stage,
			&statusStr,
			&startedRaw,
			&durationMS,
			&result.Resources.MaxRSSKiB,
			&userCPUMS,
			&systemCPUMS,
			&errKind,
			&errMessage,
		); err != nil {
			return nil, fmt.Errorf("scan stage result: %w", err)
		}
		result.Status = monitor.Status(statusStr)
		if started, parseErr := time.Parse(time.RFC3339Nano, startedRaw); parseErr == nil {
			result.StartedAt = started
		}
		result.Duration = time.Duration(durationMS) * time.Millisecond
		result.Resources.UserCPU = time.Duration(userCPUMS) * time.Millisecond
		result.Resources.SystemCPU = time.Duration(systemCPUMS) * time.Millisecond
		result.ErrorKind = errKind.String
		result.ErrorMessage = errMessage.String
		stages = append(stages, result)
	}
	return stages, rows.Err()
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
