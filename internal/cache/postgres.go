// internal/cache/postgres.go
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS action_traces (
	task_id    TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	status     TEXT NOT NULL,
	entries    JSONB NOT NULL
);`

// pgQuerier is the subset of pgxpool.Pool the store uses, extracted so tests
// can substitute a mock connection.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists traces in a shared postgres database so traces
// recorded on one machine can be replayed from another.
type PostgresStore struct {
	db    pgQuerier
	close func()
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	store := &PostgresStore{db: pool, close: pool.Close}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating action_traces table: %w", err)
	}
	return store, nil
}

// newPostgresStoreWithQuerier wires an existing connection, used in tests.
func newPostgresStoreWithQuerier(db pgQuerier) *PostgresStore {
	return &PostgresStore{db: db, close: func() {}}
}

func (s *PostgresStore) Save(ctx context.Context, out *schemas.ActionCacheOutput) error {
	if out == nil || out.TaskID == "" {
		return errors.New("action cache: trace must carry a task id")
	}
	entries, err := json.Marshal(out.Entries)
	if err != nil {
		return fmt.Errorf("encoding entries for task %s: %w", out.TaskID, err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO action_traces (task_id, created_at, status, entries)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (task_id) DO UPDATE SET
			created_at = EXCLUDED.created_at,
			status     = EXCLUDED.status,
			entries    = EXCLUDED.entries`,
		out.TaskID, out.CreatedAt, string(out.Status), entries)
	if err != nil {
		return fmt.Errorf("saving trace for task %s: %w", out.TaskID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, taskID string) (*schemas.ActionCacheOutput, error) {
	out := &schemas.ActionCacheOutput{TaskID: taskID}
	var status string
	var entries []byte

	row := s.db.QueryRow(ctx,
		`SELECT created_at, status, entries FROM action_traces WHERE task_id = $1`, taskID)
	if err := row.Scan(&out.CreatedAt, &status, &entries); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading trace for task %s: %w", taskID, err)
	}

	out.Status = schemas.TaskStatus(status)
	if err := json.Unmarshal(entries, &out.Entries); err != nil {
		return nil, fmt.Errorf("decoding entries for task %s: %w", taskID, err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.close()
	return nil
}
