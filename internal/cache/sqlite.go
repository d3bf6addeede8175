// internal/cache/sqlite.go
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS action_traces (
	task_id    TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	status     TEXT NOT NULL,
	entries    TEXT NOT NULL
);`

// SQLiteStore persists traces in a local sqlite file, the default backend
// for single-machine use.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite store requires a file path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db at %s: %w", path, err)
	}
	// The driver is in-process; a single connection avoids writer contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating action_traces table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, out *schemas.ActionCacheOutput) error {
	if out == nil || out.TaskID == "" {
		return errors.New("action cache: trace must carry a task id")
	}
	entries, err := json.Marshal(out.Entries)
	if err != nil {
		return fmt.Errorf("encoding entries for task %s: %w", out.TaskID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO action_traces (task_id, created_at, status, entries)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			created_at = excluded.created_at,
			status     = excluded.status,
			entries    = excluded.entries`,
		out.TaskID, out.CreatedAt.Format(time.RFC3339Nano), string(out.Status), string(entries))
	if err != nil {
		return fmt.Errorf("saving trace for task %s: %w", out.TaskID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, taskID string) (*schemas.ActionCacheOutput, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT created_at, status, entries FROM action_traces WHERE task_id = ?`, taskID)

	var createdAt, status, entriesJSON string
	if err := row.Scan(&createdAt, &status, &entriesJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading trace for task %s: %w", taskID, err)
	}

	out := &schemas.ActionCacheOutput{
		TaskID: taskID,
		Status: schemas.TaskStatus(status),
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		out.CreatedAt = ts
	}
	if err := json.UnmarshalFromString(entriesJSON, &out.Entries); err != nil {
		return nil, fmt.Errorf("decoding entries for task %s: %w", taskID, err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
