package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		SupabaseURLEnv, SupabaseKeyEnv, TimeoutEnv, RefreshIntervalEnv,
		LogFileEnv, LogLevelEnv, LocalDBEnv, ConfigEnv,
	} {
		t.Setenv(name, "")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func loadValid() (Config, error) {
	cfg, err := Load("")
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func TestValidate_MissingListsEveryName(t *testing.T) {
	clearEnv(t)

	_, err := loadValid()
	require.ErrorIs(t, err, ErrMissing)
	assert.Contains(t, err.Error(), SupabaseURLEnv)
	assert.Contains(t, err.Error(), SupabaseKeyEnv)
}

func TestLoad_EnvOnlyDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(SupabaseURLEnv, "https://example.supabase.co")
	t.Setenv(SupabaseKeyEnv, "service-key")

	cfg, err := loadValid()
	require.NoError(t, err)
	assert.Equal(t, "https://example.supabase.co", cfg.SupabaseURL)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultRefreshInterval, cfg.RefreshInterval)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Empty(t, cfg.LogFile)
}

func TestValidate_LocalDBNeedsNoCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv(LocalDBEnv, "/tmp/bleue.db")

	cfg, err := loadValid()
	require.NoError(t, err)
	assert.Equal(t, "local:/tmp/bleue.db", cfg.Backend())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "bleue.yaml", `
supabase_url: https://file.supabase.co
supabase_service_role_key: file-key
http_timeout: 10
refresh_interval: 2s
log_level: debug
`)
	t.Setenv(SupabaseURLEnv, "https://env.supabase.co")
	t.Setenv(RefreshIntervalEnv, "750ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.supabase.co", cfg.SupabaseURL)
	assert.Equal(t, "file-key", cfg.SupabaseKey)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 750*time.Millisecond, cfg.RefreshInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, path, cfg.Path)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "timeout not a number", env: map[string]string{TimeoutEnv: "soon"}},
		{name: "negative timeout", env: map[string]string{TimeoutEnv: "-5"}},
		{name: "interval without unit", env: map[string]string{RefreshIntervalEnv: "5"}},
		{name: "zero interval", env: map[string]string{RefreshIntervalEnv: "0s"}},
		{name: "bad yaml", file: "supabase_url: [unterminated"},
		{name: "bad file interval", file: "refresh_interval: -1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, t.TempDir(), "bleue.yaml", tt.file)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadDotEnv_WalksUpAndKeepsExisting(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	writeFile(t, root, ".env", SupabaseURLEnv+"=https://dotenv.supabase.co\n"+SupabaseKeyEnv+"=dotenv-key\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	t.Setenv(SupabaseKeyEnv, "already-set")
	// An empty value counts as set for godotenv, so drop it to let the
	// file fill it in.
	require.NoError(t, os.Unsetenv(SupabaseURLEnv))

	used, err := LoadDotEnv(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".env"), used)
	assert.Equal(t, "https://dotenv.supabase.co", os.Getenv(SupabaseURLEnv))
	assert.Equal(t, "already-set", os.Getenv(SupabaseKeyEnv))
}

func TestFindDotEnv_None(t *testing.T) {
	dir := t.TempDir()
	if found := FindDotEnv(dir); found != "" && filepath.Dir(found) == dir {
		t.Errorf("FindDotEnv(%q) = %q, want none in the temp dir", dir, found)
	}
}
