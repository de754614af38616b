package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmshield/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, models.StorageTypeJSON, cfg.Storage.Type)
	assert.True(t, cfg.Security.EnableAuth)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "free", cfg.RateLimit.DefaultTier)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9999
storage:
  type: memory
security:
  enable_auth: false
rate_limit:
  default_tier: pro
scan:
  banned_substrings:
    - jailbreak
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, models.StorageTypeMemory, cfg.Storage.Type)
	assert.False(t, cfg.Security.EnableAuth)
	assert.Equal(t, "pro", cfg.RateLimit.DefaultTier)
	assert.Equal(t, []string{"jailbreak"}, cfg.Scan.BannedSubstrings)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0600))

	t.Setenv("LLMSHIELD_PORT", "7777")
	t.Setenv("LLMSHIELD_STORAGE_TYPE", "memory")
	t.Setenv("LLMSHIELD_ENABLE_AUTH", "false")
	t.Setenv("LLMSHIELD_RATE_LIMIT_CLEANUP_INTERVAL", "90s")
	t.Setenv("LLMSHIELD_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, models.StorageTypeMemory, cfg.Storage.Type)
	assert.False(t, cfg.Security.EnableAuth)
	assert.Equal(t, 90*time.Second, cfg.RateLimit.CleanupInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("LLMSHIELD_PORT", "-5")
	_, err := Load("")
	assert.Error(t, err)
}

func TestSaveExampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example", "config.yaml")
	require.NoError(t, SaveExample(path))

	cfg := models.NewDefaultConfig()
	require.NoError(t, loadFromFile(cfg, path))
	assert.True(t, cfg.Security.EnableAuth)
	assert.NotEmpty(t, cfg.Scan.BannedSubstrings)
}
