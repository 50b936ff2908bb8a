package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "redisbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadClientConfigDefaults(t *testing.T) {
	cfg, err := LoadClientConfig("")
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Address())
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultStopTimeout, cfg.StopTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadClientConfigFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
redis:
  enabled: true
  host: cache.internal
  port: 6380
  pool_size: 4
  stop_timeout: 250ms
server:
  port: 7000
`)
	t.Setenv("REDISBUS_PORT", "6390")
	t.Setenv("REDISBUS_PASSWORD", "secret")

	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "cache.internal", cfg.Host)
	assert.Equal(t, 6390, cfg.Port, "environment wins over file")
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 4, cfg.PoolSize)
	assert.Equal(t, 250*time.Millisecond, cfg.StopTimeout)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout, "unset keys keep defaults")
}

func TestLoadClientConfigDisabled(t *testing.T) {
	t.Setenv("REDISBUS_ENABLED", "false")

	cfg, err := LoadClientConfig("")
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
}

func TestLoadClientConfigMissingFile(t *testing.T) {
	_, err := LoadClientConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadClientConfigBadYAML(t *testing.T) {
	path := writeConfig(t, "redis: [not, a, map")
	_, err := LoadClientConfig(path)
	assert.Error(t, err)
}

func TestClientConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ClientConfig)
	}{
		{"empty host", func(c *ClientConfig) { c.Host = "" }},
		{"port zero", func(c *ClientConfig) { c.Port = 0 }},
		{"port too big", func(c *ClientConfig) { c.Port = 70000 }},
		{"negative db", func(c *ClientConfig) { c.DB = -1 }},
		{"negative retries", func(c *ClientConfig) { c.MaxRetries = -1 }},
		{"empty pool", func(c *ClientConfig) { c.PoolSize = 0 }},
		{"zero stop timeout", func(c *ClientConfig) { c.StopTimeout = 0 }},
		{"zero dial timeout", func(c *ClientConfig) { c.DialTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultClientConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadServerConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 6380
  log_level: debug
  max_conns: 50
  cleanup_interval: 30s
`)
	t.Setenv("REDISBUS_LOG_LEVEL", "warn")
	t.Setenv("REDISBUS_SERVER_MAX_CONNS", "20")

	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:6380", cfg.Address())
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 20, cfg.MaxConns)
	assert.Equal(t, 30*time.Second, cfg.CleanupInterval)
	assert.NoError(t, cfg.Validate())
}

func TestServerConfigValidate(t *testing.T) {
	cfg := DefaultServerConfig()
	require.NoError(t, cfg.Validate())

	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = DefaultServerConfig()
	cfg.Port = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultServerConfig()
	cfg.MaxConns = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultServerConfig()
	cfg.Port = 0
	assert.NoError(t, cfg.Validate(), "port 0 asks for a free port")
}
