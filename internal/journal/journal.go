// Package journal keeps a persistent record of every finished transfer
// task in a small SQLite database, so past batches can be inspected after
// the fact.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Event is one finished transfer task.
type Event struct {
	ID         int64
	BatchID    string
	BookID     string
	VolID      string
	Title      string
	Format     string
	Status     string // success, failed, skipped, quota
	SizeBytes  int64
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store manages journal persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS transfers (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    batch_id    TEXT NOT NULL,
    book_id     TEXT NOT NULL,
    vol_id      TEXT NOT NULL,
    title       TEXT NOT NULL DEFAULT '',
    format      TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL,
    size_bytes  INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT '',
    started_at  TEXT NOT NULL,
    finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transfers_batch ON transfers(batch_id);
`

// Open initializes or connects to the journal database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends one finished transfer to the journal.
func (s *Store) Record(ctx context.Context, ev Event) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO transfers (
            batch_id, book_id, vol_id, title, format, status,
            size_bytes, error, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.BatchID,
		ev.BookID,
		ev.VolID,
		ev.Title,
		ev.Format,
		ev.Status,
		ev.SizeBytes,
		ev.Error,
		ev.StartedAt.UTC().Format(time.RFC3339Nano),
		ev.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record transfer: %w", err)
	}
	return nil
}

// Recent returns the most recent transfers, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, batch_id, book_id, vol_id, title, format, status,
            size_bytes, error, started_at, finished_at
         FROM transfers ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var started, finished string
		if err := rows.Scan(
			&ev.ID, &ev.BatchID, &ev.BookID, &ev.VolID, &ev.Title, &ev.Format,
			&ev.Status, &ev.SizeBytes, &ev.Error, &started, &finished,
		); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		ev.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		ev.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		events = append(events, ev)
	}
	return events, rows.Err()
}
