package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadYAML проверяет загрузку полного YAML конфига
func TestLoadYAML(t *testing.T) {
	content := `
server:
  ingest_port: 9000
  rest_port: 9001
storage:
  backend: badger
  path: /var/lib/netreplay
  use_gzip_compression: true
playback:
  tick_interval_ms: 25
capture:
  exclude_boundary: true
eventbus:
  url: nats://localhost:4222
  stream: REPLAY
auth:
  operator: admin
`
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 9000, cfg.Server.GetIngestPort())
	assert.Equal(t, 9001, cfg.Server.GetRESTPort())
	assert.Equal(t, "badger", cfg.Storage.GetBackend())
	assert.Equal(t, "/var/lib/netreplay", cfg.Storage.GetPath())
	assert.True(t, cfg.Storage.UseGzip)
	assert.Equal(t, 25, cfg.Playback.GetTickIntervalMs())
	assert.True(t, cfg.Capture.ExcludeBoundary)
	assert.Equal(t, "nats://localhost:4222", cfg.EventBus.URL)
	assert.Equal(t, "admin", cfg.Auth.Operator)
}

// TestDefaults проверяет значения по умолчанию пустого конфига
func TestDefaults(t *testing.T) {
	var cfg Config

	assert.Equal(t, 7600, cfg.Server.GetIngestPort())
	assert.Equal(t, 8090, cfg.Server.GetRESTPort())
	assert.Equal(t, "file", cfg.Storage.GetBackend())
	assert.Equal(t, "data/recordings", cfg.Storage.GetPath())
	assert.Equal(t, 10, cfg.Playback.GetTickIntervalMs())
}

// TestEnvFallback проверяет приоритет: конфиг -> env -> дефолт
func TestEnvFallback(t *testing.T) {
	t.Setenv("REPLAY_INGEST_PORT", "7777")
	t.Setenv("REPLAY_STORAGE_BACKEND", "redis")

	var cfg Config
	assert.Equal(t, 7777, cfg.Server.GetIngestPort())
	assert.Equal(t, "redis", cfg.Storage.GetBackend())

	// Значение из конфига имеет приоритет над env
	cfg.Server.IngestPort = 6000
	cfg.Storage.Backend = "mongo"
	assert.Equal(t, 6000, cfg.Server.GetIngestPort())
	assert.Equal(t, "mongo", cfg.Storage.GetBackend())

	// Мусор в env игнорируется
	t.Setenv("REPLAY_REST_PORT", "not-a-port")
	assert.Equal(t, 8090, cfg.Server.GetRESTPort())
}

// TestLoadMissing проверяет поведение без конфига
func TestLoadMissing(t *testing.T) {
	t.Setenv("REPLAY_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Nil(t, cfg, "без конфига возвращается nil без ошибки")

	_, err = Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}
