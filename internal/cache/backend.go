// internal/cache/backend.go
package cache

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/pagepilot/internal/config"
)

// NewStore builds the trace store named by the configuration.
func NewStore(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "pagepilot-cache.db"
		}
		return NewSQLiteStore(path)
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
