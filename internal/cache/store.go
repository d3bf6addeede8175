// internal/cache/store.go

// Package cache persists recorded action traces and replays them against a
// live page without consulting the model.
package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

// ErrNotFound is returned when no trace exists for the requested task.
var ErrNotFound = errors.New("action cache: no trace for task")

// Store persists one action trace per task id. Saving again under the same
// task id overwrites the previous trace.
type Store interface {
	Save(ctx context.Context, out *schemas.ActionCacheOutput) error
	Get(ctx context.Context, taskID string) (*schemas.ActionCacheOutput, error)
	Close() error
}

// MemoryStore is the in-process Store used by default in tests and one-shot
// runs that never leave the process.
type MemoryStore struct {
	mu     sync.RWMutex
	traces map[string]*schemas.ActionCacheOutput
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{traces: make(map[string]*schemas.ActionCacheOutput)}
}

func (s *MemoryStore) Save(_ context.Context, out *schemas.ActionCacheOutput) error {
	if out == nil || out.TaskID == "" {
		return errors.New("action cache: trace must carry a task id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces[out.TaskID] = out
	return nil
}

func (s *MemoryStore) Get(_ context.Context, taskID string) (*schemas.ActionCacheOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.traces[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
