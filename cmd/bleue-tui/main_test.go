package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bleue/bleue-tui/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		config.SupabaseURLEnv, config.SupabaseKeyEnv, config.TimeoutEnv, config.RefreshIntervalEnv,
		config.LogFileEnv, config.LogLevelEnv, config.LocalDBEnv, config.ConfigEnv,
	} {
		t.Setenv(name, "")
	}
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.SupabaseURLEnv, "https://example.supabase.co")
	t.Setenv(config.SupabaseKeyEnv, "secret")
	t.Setenv(config.LogLevelEnv, "info")

	cfg, err := loadConfig(options{logLevel: "debug", refreshInterval: "2s"})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.RefreshInterval)
	assert.Equal(t, "https://example.supabase.co", cfg.Backend())
}

func TestLoadConfig_LocalDBNeedsNoCredentials(t *testing.T) {
	clearEnv(t)

	cfg, err := loadConfig(options{localDB: "issues.db"})
	require.NoError(t, err)
	assert.Equal(t, "local:issues.db", cfg.Backend())
}

func TestLoadConfig_MissingCredentials(t *testing.T) {
	clearEnv(t)

	_, err := loadConfig(options{})
	require.ErrorIs(t, err, config.ErrMissing)
}

func TestLoadConfig_InvalidInterval(t *testing.T) {
	clearEnv(t)

	_, err := loadConfig(options{localDB: "issues.db", refreshInterval: "soon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--refresh-interval")
}

func TestLoadConfig_ConfigFileFromEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bleue.yaml")
	require.NoError(t, os.WriteFile(path, []byte("local_db: from-file.db\nrefresh_interval: 9s\n"), 0o600))
	t.Setenv(config.ConfigEnv, path)

	cfg, err := loadConfig(options{})
	require.NoError(t, err)
	assert.Equal(t, "from-file.db", cfg.LocalDB)
	assert.Equal(t, 9*time.Second, cfg.RefreshInterval)
	assert.Equal(t, path, cfg.Path)
}

func TestRun_RejectsExtraArguments(t *testing.T) {
	err := run([]string{"extra"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected argument")
}

func TestVersionInfo(t *testing.T) {
	assert.Contains(t, VersionInfo(), "bleue-tui dev")
}
