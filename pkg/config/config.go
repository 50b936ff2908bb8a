// Package config provides configuration management for redisbus clients and the
// development store.
//
// Configuration is assembled from several sources with the following precedence:
//  1. Command-line flags (binaries only, highest priority)
//  2. Environment variables
//  3. A YAML file
//  4. Default values (lowest priority)
//
// Client configuration:
//   - Store address (host and port), credentials and database index
//   - Dial, read and write timeouts, retry count and pool size
//   - How long to keep trying on startup and how long unsubscribe may block
//
// Server configuration (development store):
//   - Bind address and port
//   - Log level and expiration sweep interval
//
// Example YAML file:
//
//	redis:
//	  enabled: true
//	  host: cache.internal
//	  port: 6379
//	  max_retries: 1
//	  stop_timeout: 5s
//	server:
//	  host: 127.0.0.1
//	  port: 6380
//	  log_level: debug
//
// Example usage:
//
//	cfg, err := config.LoadClientConfig("redisbus.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//	c, err := client.New(cfg, logger)
//
// Environment variables are prefixed with "REDISBUS_" and use uppercase names.
// For example, the store host can be set with REDISBUS_HOST=cache.internal.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultHost            = "localhost"
	DefaultPort            = 6379
	DefaultDialTimeout     = 5 * time.Second
	DefaultReadTimeout     = 3 * time.Second
	DefaultWriteTimeout    = 3 * time.Second
	DefaultMaxRetries      = 1
	DefaultPoolSize        = 10
	DefaultConnectTimeout  = 10 * time.Second
	DefaultStopTimeout     = 5 * time.Second
	DefaultServerHost      = "127.0.0.1"
	DefaultMaxConnections  = 1000
	DefaultCleanupInterval = time.Minute
)

// ErrDisabled is returned by constructors when the configuration turns the store access off.
var ErrDisabled = errors.New("redis access is disabled (redis.enabled=false)")

// ClientConfig holds the settings for one store connection handle.
//
// Example:
//
//	cfg := config.DefaultClientConfig()
//	cfg.Host = "cache.internal"
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
type ClientConfig struct {
	Enabled        bool          `yaml:"enabled"`         // Whether store access is wanted at all (default: true)
	Host           string        `yaml:"host"`            // Store host (default: "localhost")
	Password       string        `yaml:"password"`        // Optional AUTH password
	Port           int           `yaml:"port"`            // Store port (default: 6379)
	DB             int           `yaml:"db"`              // Database index (default: 0)
	MaxRetries     int           `yaml:"max_retries"`     // Retries after a failed request, 0 disables (default: 1)
	PoolSize       int           `yaml:"pool_size"`       // Pooled connections for ordinary requests (default: 10)
	DialTimeout    time.Duration `yaml:"dial_timeout"`    // Timeout for establishing a connection (default: 5s)
	ReadTimeout    time.Duration `yaml:"read_timeout"`    // Socket read timeout for requests (default: 3s)
	WriteTimeout   time.Duration `yaml:"write_timeout"`   // Socket write timeout for requests (default: 3s)
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // How long Open keeps retrying the first PING (default: 10s)
	StopTimeout    time.Duration `yaml:"stop_timeout"`    // Bound on waiting for a listener goroutine to exit (default: 5s)
}

// ServerConfig holds the settings of the development store.
type ServerConfig struct {
	Host            string        `yaml:"host"`             // Host address to bind to (default: "127.0.0.1")
	LogLevel        string        `yaml:"log_level"`        // Log level: debug, info, warn, error (default: "info")
	Port            int           `yaml:"port"`             // TCP port to listen on (default: 6379)
	MaxConns        int           `yaml:"max_conns"`        // Maximum concurrent connections (default: 1000)
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // Expired key sweep interval (default: 1m)
}

// fileConfig is the layout of a YAML configuration file.
type fileConfig struct {
	Redis  *ClientConfig `yaml:"redis"`
	Server *ServerConfig `yaml:"server"`
}

// DefaultClientConfig returns a ClientConfig populated with defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Enabled:        true,
		Host:           DefaultHost,
		Port:           DefaultPort,
		MaxRetries:     DefaultMaxRetries,
		PoolSize:       DefaultPoolSize,
		DialTimeout:    DefaultDialTimeout,
		ReadTimeout:    DefaultReadTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		StopTimeout:    DefaultStopTimeout,
	}
}

// DefaultServerConfig returns a ServerConfig populated with defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:            DefaultServerHost,
		Port:            DefaultPort,
		MaxConns:        DefaultMaxConnections,
		LogLevel:        "info",
		CleanupInterval: DefaultCleanupInterval,
	}
}

// LoadClientConfig builds a ClientConfig from defaults, the "redis" section of the YAML
// file at path (skipped when path is empty) and REDISBUS_* environment variables.
//
// Environment variables:
//
//	REDISBUS_ENABLED: true/false
//	REDISBUS_HOST: Store host
//	REDISBUS_PORT: Store port
//	REDISBUS_PASSWORD: AUTH password
//	REDISBUS_DB: Database index
//	REDISBUS_MAX_RETRIES: Retries after a failed request
//	REDISBUS_POOL_SIZE: Pooled connections
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()

	if path != "" {
		fc := fileConfig{Redis: cfg}
		if err := readFile(path, &fc); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("REDISBUS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Enabled = b
		}
	}

	if host := os.Getenv("REDISBUS_HOST"); host != "" {
		cfg.Host = host
	}

	if password := os.Getenv("REDISBUS_PASSWORD"); password != "" {
		cfg.Password = password
	}

	envInt("REDISBUS_PORT", &cfg.Port)
	envInt("REDISBUS_DB", &cfg.DB)
	envInt("REDISBUS_MAX_RETRIES", &cfg.MaxRetries)
	envInt("REDISBUS_POOL_SIZE", &cfg.PoolSize)

	return cfg, nil
}

// LoadServerConfig builds a ServerConfig from defaults, the "server" section of the YAML
// file at path (skipped when path is empty) and environment variables.
//
// Environment variables:
//
//	REDISBUS_SERVER_HOST: Bind address
//	REDISBUS_SERVER_PORT: Listen port
//	REDISBUS_SERVER_MAX_CONNS: Maximum concurrent connections
//	REDISBUS_LOG_LEVEL: Log level
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()

	if path != "" {
		fc := fileConfig{Server: cfg}
		if err := readFile(path, &fc); err != nil {
			return nil, err
		}
	}

	if host := os.Getenv("REDISBUS_SERVER_HOST"); host != "" {
		cfg.Host = host
	}

	if level := os.Getenv("REDISBUS_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	envInt("REDISBUS_SERVER_PORT", &cfg.Port)
	envInt("REDISBUS_SERVER_MAX_CONNS", &cfg.MaxConns)

	return cfg, nil
}

func readFile(path string, out *fileConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// envInt overwrites *dst when the variable holds a valid integer.
func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Address returns the store address in "host:port" form.
func (c *ClientConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Address returns the address the development store binds to.
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks that the ClientConfig holds usable values and returns the first
// violation found.
//
// Validation rules:
//   - Host must be non-empty
//   - Port must be between 1 and 65535
//   - DB, MaxRetries must be non-negative
//   - PoolSize must be positive
//   - All timeouts must be positive
func (c *ClientConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host must be set")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.DB < 0 {
		return fmt.Errorf("db must be non-negative: %d", c.DB)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative: %d", c.MaxRetries)
	}

	if c.PoolSize < 1 {
		return fmt.Errorf("pool size must be positive: %d", c.PoolSize)
	}

	timeouts := []struct {
		name string
		d    time.Duration
	}{
		{"dial timeout", c.DialTimeout},
		{"read timeout", c.ReadTimeout},
		{"write timeout", c.WriteTimeout},
		{"connect timeout", c.ConnectTimeout},
		{"stop timeout", c.StopTimeout},
	}
	for _, t := range timeouts {
		if t.d <= 0 {
			return fmt.Errorf("%s must be positive: %s", t.name, t.d)
		}
	}

	return nil
}

// Validate checks that the ServerConfig holds usable values.
//
// Validation rules:
//   - Port must be between 0 and 65535 (0 picks a free port)
//   - MaxConns must be positive
//   - LogLevel must be one of: debug, info, warn, error
//   - CleanupInterval must be non-negative (0 disables the sweep)
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.MaxConns < 1 {
		return fmt.Errorf("max connections must be positive: %d", c.MaxConns)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	if c.CleanupInterval < 0 {
		return fmt.Errorf("cleanup interval must be non-negative: %s", c.CleanupInterval)
	}

	return nil
}
