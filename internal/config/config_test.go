package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "https://api.cloudflare.com/client/v4", cfg.APIBaseURL)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout.Std())
	assert.Equal(t, 60*time.Second, cfg.TransferTimeout.Std())
	assert.Equal(t, 10, cfg.MaxConns)
	assert.Equal(t, "@every 5m", cfg.AutoRefresh)
	assert.Equal(t, BackendKeyring, cfg.Secrets.Backend)
	assert.False(t, cfg.Diagnostics.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, validate(cfg))
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default().APIBaseURL, cfg.APIBaseURL)
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, `
api_base_url: https://proxy.internal/client/v4
request_timeout: 10s
transfer_timeout: 45s
max_conns: 4
auto_refresh: "@every 1m"
prefs_path: /tmp/cfbar/prefs.json
secrets:
  backend: redis
  redis_url: redis://cache:6379/1
  redis_key_prefix: "test:"
diagnostics:
  enabled: true
  path: /tmp/cfbar/diag.log
logging:
  level: debug
  json: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://proxy.internal/client/v4", cfg.APIBaseURL)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout.Std())
	assert.Equal(t, 45*time.Second, cfg.TransferTimeout.Std())
	assert.Equal(t, 4, cfg.MaxConns)
	assert.Equal(t, "@every 1m", cfg.AutoRefresh)
	assert.Equal(t, "/tmp/cfbar/prefs.json", cfg.PrefsPath)
	assert.Equal(t, BackendRedis, cfg.Secrets.Backend)
	assert.Equal(t, "redis://cache:6379/1", cfg.Secrets.RedisURL)
	assert.True(t, cfg.Diagnostics.Enabled)
	assert.Equal(t, "/tmp/cfbar/diag.log", cfg.Diagnostics.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
}

func TestLoad_PartialYAMLKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "max_conns: 3\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxConns)
	assert.Equal(t, Default().APIBaseURL, cfg.APIBaseURL)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout.Std())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "max_conns: 3\nauto_refresh: \"@every 10m\"\n")
	t.Setenv("CFBAR_MAX_CONNS", "7")
	t.Setenv("CFBAR_AUTO_REFRESH", "@every 2m")
	t.Setenv("CFBAR_LOG_LEVEL", "warn")
	t.Setenv("CFBAR_DIAGNOSTICS", "1")
	t.Setenv("CFBAR_WRANGLER_CONFIG", "/tmp/wrangler/default.toml")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.MaxConns)
	assert.Equal(t, "@every 2m", cfg.AutoRefresh)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Diagnostics.Enabled)
	assert.Equal(t, "/tmp/wrangler/default.toml", cfg.WranglerConfig)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{not yaml")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad backend", "secrets:\n  backend: vault\n"},
		{"bad schedule", "auto_refresh: whenever\n"},
		{"bad log level", "logging:\n  level: verbose\n"},
		{"transfer below request", "request_timeout: 30s\ntransfer_timeout: 5s\n"},
		{"zero max conns", "max_conns: 0\n"},
		{"bad duration", "request_timeout: fast\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/foo", filepath.Join(home, "foo")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, expandPath(tt.input))
	}
}

func TestDuration_YAMLRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, "1m30s\n", string(out))

	var d Duration
	require.NoError(t, yaml.Unmarshal([]byte("2m15s"), &d))
	assert.Equal(t, 2*time.Minute+15*time.Second, d.Std())
}
