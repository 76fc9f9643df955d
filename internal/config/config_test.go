package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SAVEMATE_API_URL", "https://api.example.test")
	t.Setenv("SAVEMATE_API_TOKEN", "secret")
	t.Setenv("SAVEMATE_API_TIMEOUT", "5s")
	t.Setenv("SAVEMATE_USER_ID", "user-1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.test", cfg.API.BaseURL)
	assert.Equal(t, "secret", cfg.API.Token)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, "user-1", cfg.UserID)
	assert.Equal(t, 2, cfg.API.MaxRetries)
	assert.Equal(t, "@every 5m", cfg.Stats.RefreshSpec)
}

func TestLoadRequiresBaseURL(t *testing.T) {
	t.Setenv("SAVEMATE_API_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base URL")
}

func TestLoadFileOverlaysEnvironment(t *testing.T) {
	t.Setenv("SAVEMATE_API_URL", "https://env.example.test")
	t.Setenv("SAVEMATE_USER_ID", "user-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  baseUrl: https://file.example.test
snapshot:
  enabled: true
  redisAddr: redis.internal:6379
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://file.example.test", cfg.API.BaseURL, "file values win")
	assert.Equal(t, "user-env", cfg.UserID, "env values survive where the file is silent")
	assert.True(t, cfg.Snapshot.Enabled)
	assert.Equal(t, "redis.internal:6379", cfg.Snapshot.RedisAddr)
}

func TestLoadFileMissing(t *testing.T) {
	t.Setenv("SAVEMATE_API_URL", "https://env.example.test")
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
