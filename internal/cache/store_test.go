package cache_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/cache"
	"github.com/xkilldash9x/pagepilot/internal/config"
)

func sampleTrace(taskID string) *schemas.ActionCacheOutput {
	return &schemas.ActionCacheOutput{
		TaskID:    taskID,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Status:    schemas.TaskStatusCompleted,
		Entries: []schemas.ActionCacheEntry{
			{StepIndex: 0, ActionType: "goToUrl", Params: map[string]interface{}{"url": "https://x.test/"}, Success: true},
			{StepIndex: 1, ActionType: "click", Method: "click", ElementID: "0-42",
				XPath: "//button[1]", Instruction: "the go button", Success: true},
		},
	}
}

func testStoreRoundTrip(t *testing.T, s cache.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "absent")
	assert.True(t, errors.Is(err, cache.ErrNotFound))

	trace := sampleTrace("task-1")
	require.NoError(t, s.Save(ctx, trace))

	got, err := s.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, trace.TaskID, got.TaskID)
	assert.Equal(t, trace.Status, got.Status)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, "//button[1]", got.Entries[1].XPath)
	assert.Equal(t, "the go button", got.Entries[1].Instruction)

	// Saving again under the same task id overwrites.
	trace.Status = schemas.TaskStatusFailed
	require.NoError(t, s.Save(ctx, trace))
	got, err = s.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.TaskStatusFailed, got.Status)

	assert.Error(t, s.Save(ctx, &schemas.ActionCacheOutput{}))
}

func TestMemoryStore(t *testing.T) {
	s := cache.NewMemoryStore()
	defer s.Close()
	testStoreRoundTrip(t, s)
}

func TestSQLiteStore(t *testing.T) {
	s, err := cache.NewSQLiteStore(filepath.Join(t.TempDir(), "traces.db"))
	require.NoError(t, err)
	defer s.Close()
	testStoreRoundTrip(t, s)
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	_, err := cache.NewSQLiteStore("")
	assert.Error(t, err)
}

func TestNewStoreBackendSelection(t *testing.T) {
	ctx := context.Background()

	s, err := cache.NewStore(ctx, config.CacheConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &cache.MemoryStore{}, s)

	s, err = cache.NewStore(ctx, config.CacheConfig{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "c.db")})
	require.NoError(t, err)
	assert.IsType(t, &cache.SQLiteStore{}, s)
	s.Close()

	_, err = cache.NewStore(ctx, config.CacheConfig{Backend: "redis"})
	assert.Error(t, err)
}
