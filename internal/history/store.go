package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"seedshelf/internal/config"
	"seedshelf/internal/conversion"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; users need to delete the history database after a bump.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store persists organization and conversion history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// OrganizationRecord is one organized file outcome.
type OrganizationRecord struct {
	ID          int64
	BatchID     string
	SourcePath  string
	FileName    string
	MediaType   string
	LibraryPath string
	Action      string
	Success     bool
	Error       string
	CreatedAt   time.Time
}

// Open initializes or connects to the history database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.StateDir, "history.db")
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

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
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
	if errors.As(err, &coder) && coder.Code() == 5 {
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

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// RecordResult stores one organization outcome.
func (s *Store) RecordResult(ctx context.Context, record OrganizationRecord) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return s.execWithRetry(ctx, `
        INSERT INTO organization_results
            (batch_id, source_path, file_name, media_type, library_path, action, success, error, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.BatchID,
		record.SourcePath,
		record.FileName,
		record.MediaType,
		record.LibraryPath,
		record.Action,
		boolToInt(record.Success),
		record.Error,
		createdAt.Format(time.RFC3339Nano),
	)
}

// RecordTask stores a conversion task snapshot, replacing any prior snapshot
// for the same task.
func (s *Store) RecordTask(ctx context.Context, task conversion.Task) error {
	return s.execWithRetry(ctx, `
        INSERT INTO conversion_tasks
            (id, input_path, output_path, status, progress, error, started_at, completed_at, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            status = excluded.status,
            progress = excluded.progress,
            error = excluded.error,
            started_at = excluded.started_at,
            completed_at = excluded.completed_at`,
		task.ID,
		task.InputPath,
		task.OutputPath,
		string(task.Status),
		task.Progress,
		task.Error,
		formatTime(task.StartedAt),
		formatTime(task.CompletedAt),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
}

// ListResults returns stored organization outcomes, newest first.
func (s *Store) ListResults(ctx context.Context, limit int) ([]OrganizationRecord, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, batch_id, source_path, file_name, media_type, library_path, action, success, error, created_at
        FROM organization_results
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query organization results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []OrganizationRecord
	for rows.Next() {
		var (
			record    OrganizationRecord
			success   int
			createdAt string
		)
		if err := rows.Scan(
			&record.ID,
			&record.BatchID,
			&record.SourcePath,
			&record.FileName,
			&record.MediaType,
			&record.LibraryPath,
			&record.Action,
			&success,
			&record.Error,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan organization result: %w", err)
		}
		record.Success = success != 0
		record.CreatedAt = parseTime(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organization results: %w", err)
	}
	return records, nil
}

// ListTasks returns stored conversion task snapshots, newest first.
func (s *Store) ListTasks(ctx context.Context, limit int) ([]conversion.Task, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, input_path, output_path, status, progress, error, started_at, completed_at
        FROM conversion_tasks
        ORDER BY created_at DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversion tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []conversion.Task
	for rows.Next() {
		var (
			task        conversion.Task
			status      string
			startedAt   string
			completedAt string
		)
		if err := rows.Scan(
			&task.ID,
			&task.InputPath,
			&task.OutputPath,
			&status,
			&task.Progress,
			&task.Error,
			&startedAt,
			&completedAt,
		); err != nil {
			return nil, fmt.Errorf("scan conversion task: %w", err)
		}
		if parsed, ok := conversion.ParseStatus(status); ok {
			task.Status = parsed
		} else {
			task.Status = conversion.Status(status)
		}
		task.StartedAt = parseTime(startedAt)
		task.CompletedAt = parseTime(completedAt)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversion tasks: %w", err)
	}
	return tasks, nil
}

// Prune removes history older than the cutoff and reports how many rows were
// deleted.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	mark := cutoff.UTC().Format(time.RFC3339Nano)
	var total int64
	for _, query := range []string{
		"DELETE FROM organization_results WHERE created_at < ?",
		"DELETE FROM conversion_tasks WHERE created_at < ?",
	} {
		var res sql.Result
		if err := retryOnBusy(ctx, func() error {
			var execErr error
			res, execErr = s.db.ExecContext(ctx, query, mark)
			return execErr
		}); err != nil {
			return total, fmt.Errorf("prune history: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil {
			total += affected
		}
	}
	return total, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if strings.TrimSpace(value) == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
