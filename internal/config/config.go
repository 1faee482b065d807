// Package config loads connection and runtime settings. Values come from,
// in increasing priority: built-in defaults, an optional YAML file, and
// the environment (optionally seeded from a .env file). Command-line
// flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	SupabaseURLEnv     = "SUPABASE_URL"
	SupabaseKeyEnv     = "SUPABASE_SERVICE_ROLE_KEY"
	TimeoutEnv         = "SUPABASE_HTTP_TIMEOUT"
	RefreshIntervalEnv = "BLEUE_REFRESH_INTERVAL"
	LogFileEnv         = "BLEUE_LOG_FILE"
	LogLevelEnv        = "BLEUE_LOG_LEVEL"
	LocalDBEnv         = "BLEUE_LOCAL_DB"
	ConfigEnv          = "BLEUE_CONFIG"
)

// Defaults.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultRefreshInterval = 5 * time.Second
	DefaultLogLevel        = "warning"
)

// ErrMissing is returned when required settings are absent.
var ErrMissing = errors.New("missing required configuration")

// Config holds application configuration.
type Config struct {
	SupabaseURL string
	SupabaseKey string
	// Timeout bounds every gateway call.
	Timeout time.Duration
	// RefreshInterval is the period of background refresh of started
	// issues.
	RefreshInterval time.Duration
	LogFile         string
	LogLevel        string
	// LocalDB, when set, selects a local sqlite file instead of Supabase.
	LocalDB string
	// Path is the YAML file the values were read from, if any.
	Path string
}

// file is the on-disk shape of the YAML layer.
type file struct {
	SupabaseURL     string `yaml:"supabase_url"`
	SupabaseKey     string `yaml:"supabase_service_role_key"`
	Timeout         int    `yaml:"http_timeout"`
	RefreshInterval string `yaml:"refresh_interval"`
	LogFile         string `yaml:"log_file"`
	LogLevel        string `yaml:"log_level"`
	LocalDB         string `yaml:"local_db"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Timeout:         DefaultTimeout,
		RefreshInterval: DefaultRefreshInterval,
		LogLevel:        DefaultLogLevel,
	}
}

// Load reads path (skipped when empty) and applies the environment over
// it. It does not check for required values; see Validate.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.readEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	c.Path = path
	setString(&c.SupabaseURL, f.SupabaseURL)
	setString(&c.SupabaseKey, f.SupabaseKey)
	setString(&c.LogFile, f.LogFile)
	setString(&c.LogLevel, f.LogLevel)
	setString(&c.LocalDB, f.LocalDB)
	if f.Timeout != 0 {
		if f.Timeout < 0 {
			return fmt.Errorf("config %s: http_timeout must be positive", path)
		}
		c.Timeout = time.Duration(f.Timeout) * time.Second
	}
	if f.RefreshInterval != "" {
		d, err := ParseInterval(f.RefreshInterval)
		if err != nil {
			return fmt.Errorf("config %s: refresh_interval: %w", path, err)
		}
		c.RefreshInterval = d
	}
	return nil
}

func (c *Config) readEnv() error {
	setString(&c.SupabaseURL, os.Getenv(SupabaseURLEnv))
	setString(&c.SupabaseKey, os.Getenv(SupabaseKeyEnv))
	setString(&c.LogFile, os.Getenv(LogFileEnv))
	setString(&c.LogLevel, os.Getenv(LogLevelEnv))
	setString(&c.LocalDB, os.Getenv(LocalDBEnv))

	if v := strings.TrimSpace(os.Getenv(TimeoutEnv)); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return fmt.Errorf("%s: want a positive number of seconds, got %q", TimeoutEnv, v)
		}
		c.Timeout = time.Duration(secs) * time.Second
	}
	if v := strings.TrimSpace(os.Getenv(RefreshIntervalEnv)); v != "" {
		d, err := ParseInterval(v)
		if err != nil {
			return fmt.Errorf("%s: %w", RefreshIntervalEnv, err)
		}
		c.RefreshInterval = d
	}
	return nil
}

// ParseInterval parses a positive Go duration such as "5s".
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %s", d)
	}
	return d, nil
}

// Validate reports every missing required value at once. Supabase
// credentials are not required when a local database is configured.
func (c Config) Validate() error {
	if c.LocalDB != "" {
		return nil
	}
	var missing []string
	if strings.TrimSpace(c.SupabaseURL) == "" {
		missing = append(missing, SupabaseURLEnv)
	}
	if strings.TrimSpace(c.SupabaseKey) == "" {
		missing = append(missing, SupabaseKeyEnv)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return nil
}

// Backend describes where issues come from, for logs and the status bar.
func (c Config) Backend() string {
	if c.LocalDB != "" {
		return "local:" + c.LocalDB
	}
	return c.SupabaseURL
}

// FindDotEnv returns the first .env file found in dir or one of its
// parents, or "" if there is none.
func FindDotEnv(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".env")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadDotEnv loads the nearest .env file above dir into the environment.
// Variables that are already set keep their values. It returns the file
// used, or "" when none was found.
func LoadDotEnv(dir string) (string, error) {
	path := FindDotEnv(dir)
	if path == "" {
		return "", nil
	}
	if err := godotenv.Load(path); err != nil {
		return "", fmt.Errorf("loading %s: %w", path, err)
	}
	return path, nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
