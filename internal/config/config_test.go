package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Sync.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Sync.MaxDelay)
	assert.Equal(t, 10*time.Second, cfg.Sync.WebhookTimeout)
	assert.Equal(t, 10, cfg.Sync.BatchSize)
	assert.Empty(t, cfg.Sync.Endpoints())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Monitor.WriteAttempts)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("COURSESYNC_SYNC__MAX_ATTEMPTS", "5")
	t.Setenv("COURSESYNC_SYNC__BASE_DELAY", "250ms")
	t.Setenv("COURSESYNC_SYNC__WEBHOOK_URLS", "https://a.example.com/hook, http://b.example.com/hook ,")
	t.Setenv("COURSESYNC_LOG__LEVEL", "debug")
	t.Setenv("COURSESYNC_DATABASE__URL", "postgres://u:p@db:5432/x")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.BaseDelay)
	assert.Equal(t, []string{"https://a.example.com/hook", "http://b.example.com/hook"}, cfg.Sync.Endpoints())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.Database.URL)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sync:
  batch_size: 25
  webhook_timeout: 3s
  webhook_urls: "https://hooks.example.com/sync"
log:
  format: text
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("COURSESYNC_SYNC__BATCH_SIZE", "50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Sync.BatchSize, "env overrides file")
	assert.Equal(t, 3*time.Second, cfg.Sync.WebhookTimeout)
	assert.Equal(t, []string{"https://hooks.example.com/sync"}, cfg.Sync.Endpoints())
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "zero attempts", key: "COURSESYNC_SYNC__MAX_ATTEMPTS", val: "0"},
		{name: "bad log level", key: "COURSESYNC_LOG__LEVEL", val: "verbose"},
		{name: "base above max", key: "COURSESYNC_SYNC__BASE_DELAY", val: "1m"},
		{name: "bad webhook url", key: "COURSESYNC_SYNC__WEBHOOK_URLS", val: "ftp://files.example.com"},
		{name: "negative rate limit", key: "COURSESYNC_SYNC__WEBHOOK_RATE_LIMIT", val: "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
