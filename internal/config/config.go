// Package config loads the application configuration from a YAML file,
// with environment variables layered on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/sushaantu/CloudflareStatusBar/internal/cloudflare"
	"github.com/sushaantu/CloudflareStatusBar/internal/secrets"
)

// DefaultConfigPath is where the config file lives unless overridden.
const DefaultConfigPath = "~/.config/cloudflarestatusbar/config.yaml"

// Secret store backends.
const (
	BackendKeyring = "keyring"
	BackendRedis   = "redis"
	BackendMemory  = "memory"
)

// SecretsConfig selects and configures the secure storage backend for
// credential profiles.
type SecretsConfig struct {
	Backend        string `yaml:"backend"`
	KeyringService string `yaml:"keyring_service"`
	RedisURL       string `yaml:"redis_url"`
	RedisKeyPrefix string `yaml:"redis_key_prefix"`
}

// DiagnosticsConfig controls the capture of undecodable API responses.
type DiagnosticsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"` // empty uses the platform cache dir
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// LoggingConfig controls the application log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config holds all configuration for the status bar core.
type Config struct {
	APIBaseURL      string   `yaml:"api_base_url"`
	RequestTimeout  Duration `yaml:"request_timeout"`
	TransferTimeout Duration `yaml:"transfer_timeout"`
	MaxConns        int      `yaml:"max_conns"`
	AutoRefresh     string   `yaml:"auto_refresh"`
	PrefsPath       string   `yaml:"prefs_path"`
	WranglerConfig  string   `yaml:"wrangler_config"` // extra candidate path, tried first

	Secrets     SecretsConfig     `yaml:"secrets"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".config", "cloudflarestatusbar")
	return Config{
		APIBaseURL:      cloudflare.DefaultBaseURL,
		RequestTimeout:  Duration(cloudflare.DefaultRequestTimeout),
		TransferTimeout: Duration(cloudflare.DefaultTransferTimeout),
		MaxConns:        10,
		AutoRefresh:     "@every 5m",
		PrefsPath:       filepath.Join(base, "preferences.json"),
		Secrets: SecretsConfig{
			Backend:        BackendKeyring,
			KeyringService: secrets.DefaultKeyringService,
			RedisURL:       "redis://localhost:6379",
			RedisKeyPrefix: "cfbar:",
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:    false,
			MaxSizeMB:  5,
			MaxBackups: 2,
			MaxAgeDays: 14,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist, then applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	resolved := expandPath(path)
	data, err := os.ReadFile(resolved)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("reading config %s: %w", resolved, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", resolved, err)
	}

	cfg.PrefsPath = expandPath(cfg.PrefsPath)
	cfg.WranglerConfig = expandPath(cfg.WranglerConfig)
	cfg.Diagnostics.Path = expandPath(cfg.Diagnostics.Path)

	cfg.loadFromEnv()

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("CFBAR_API_BASE_URL"); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv("CFBAR_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = Duration(d)
		}
	}
	if v := os.Getenv("CFBAR_TRANSFER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.TransferTimeout = Duration(d)
		}
	}
	if v := os.Getenv("CFBAR_MAX_CONNS"); v != "" {
		if conns, err := strconv.Atoi(v); err == nil {
			c.MaxConns = conns
		}
	}
	if v := os.Getenv("CFBAR_AUTO_REFRESH"); v != "" {
		c.AutoRefresh = v
	}
	if v := os.Getenv("CFBAR_PREFS_PATH"); v != "" {
		c.PrefsPath = expandPath(v)
	}
	if v := os.Getenv("CFBAR_WRANGLER_CONFIG"); v != "" {
		c.WranglerConfig = expandPath(v)
	}
	if v := os.Getenv("CFBAR_SECRETS_BACKEND"); v != "" {
		c.Secrets.Backend = v
	}
	if v := os.Getenv("CFBAR_KEYRING_SERVICE"); v != "" {
		c.Secrets.KeyringService = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Secrets.RedisURL = v
	}
	if v := os.Getenv("REDIS_KEY_PREFIX"); v != "" {
		c.Secrets.RedisKeyPrefix = v
	}
	if v := os.Getenv("CFBAR_DIAGNOSTICS"); v != "" {
		c.Diagnostics.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CFBAR_DIAGNOSTICS_PATH"); v != "" {
		c.Diagnostics.Path = expandPath(v)
	}
	if v := os.Getenv("CFBAR_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CFBAR_LOG_JSON"); v != "" {
		c.Logging.JSON = v == "true" || v == "1"
	}
}

func validate(cfg Config) error {
	if cfg.APIBaseURL == "" {
		return fmt.Errorf("api_base_url must not be empty")
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if cfg.TransferTimeout < cfg.RequestTimeout {
		return fmt.Errorf("transfer_timeout must be at least request_timeout")
	}
	if cfg.MaxConns < 1 {
		return fmt.Errorf("max_conns must be >= 1")
	}

	if _, err := cron.ParseStandard(cfg.AutoRefresh); err != nil {
		return fmt.Errorf("auto_refresh %q is not a valid schedule: %w", cfg.AutoRefresh, err)
	}

	switch cfg.Secrets.Backend {
	case BackendKeyring, BackendMemory:
	case BackendRedis:
		if cfg.Secrets.RedisURL == "" {
			return fmt.Errorf("secrets.redis_url must be set for the redis backend")
		}
	default:
		return fmt.Errorf("secrets.backend %q is not one of keyring, redis, memory", cfg.Secrets.Backend)
	}

	if cfg.Diagnostics.MaxSizeMB < 0 || cfg.Diagnostics.MaxBackups < 0 || cfg.Diagnostics.MaxAgeDays < 0 {
		return fmt.Errorf("diagnostics rotation limits must not be negative")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level)
	}

	return nil
}
