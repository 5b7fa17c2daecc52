package trace

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// schema contains the DDL for the trace database. Each statement uses
// IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		frame       INTEGER NOT NULL,
		kind        TEXT NOT NULL,
		task_id     TEXT NOT NULL DEFAULT '',
		task_name   TEXT NOT NULL DEFAULT '',
		output_type TEXT NOT NULL DEFAULT '',
		duration_ns INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_events_frame ON events(frame)`,
	`CREATE INDEX IF NOT EXISTS idx_events_task_id ON events(task_id)`,
}

// SQLiteRecorder implements Recorder using SQLite.
type SQLiteRecorder struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteRecorder opens (or creates) a trace database at dbPath. Use
// ":memory:" for an in-memory database (useful in tests).
func NewSQLiteRecorder(dbPath string, logger *slog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	return &SQLiteRecorder{
		db:     db,
		logger: logger.With("component", "trace"),
	}, nil
}

// Migrate creates all required tables and indexes.
func (r *SQLiteRecorder) Migrate(ctx context.Context) error {
	r.logger.Debug("sql", "op", "migrate")
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

// Record inserts one event.
func (r *SQLiteRecorder) Record(ctx context.Context, e Event) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (frame, kind, task_id, task_name, output_type, duration_ns, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Frame, string(e.Kind), e.TaskID, e.TaskName, e.OutputType,
		e.Duration.Nanoseconds(), createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListByFrame returns all events recorded for a frame, oldest first.
func (r *SQLiteRecorder) ListByFrame(ctx context.Context, frame uint64) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT frame, kind, task_id, task_name, output_type, duration_ns, created_at
		 FROM events WHERE frame = ? ORDER BY id`, frame)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListByTask returns all events recorded for a task id, oldest first.
func (r *SQLiteRecorder) ListByTask(ctx context.Context, taskID string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT frame, kind, task_id, task_name, output_type, duration_ns, created_at
		 FROM events WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var kind, createdAt string
		var durationNS int64
		if err := rows.Scan(&e.Frame, &kind, &e.TaskID, &e.TaskName, &e.OutputType, &durationNS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = EventKind(kind)
		e.Duration = time.Duration(durationNS)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
