package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagepilot/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "{}"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 40, cfg.Agent.MaxSteps)
	assert.Equal(t, 8000, cfg.Agent.SnapshotTokenBudget)
	assert.Equal(t, "sqlite", cfg.Cache.Backend)
	assert.Equal(t, 3, cfg.Replay.MaxXPathRetries)
	assert.Equal(t, 45*time.Second, cfg.Browser.NavigationTimeout)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
agent:
  max_steps: 12
cache:
  backend: memory
replay:
  max_xpath_retries: 5
  debug: true
`))
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Agent.MaxSteps)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 5, cfg.Replay.MaxXPathRetries)
	assert.True(t, cfg.Replay.Debug)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero max steps", "agent:\n  max_steps: 0\n"},
		{"unknown backend", "cache:\n  backend: redis\n"},
		{"postgres without dsn", "cache:\n  backend: postgres\n"},
		{"zero replay retries", "replay:\n  max_xpath_retries: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}
