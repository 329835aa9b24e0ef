// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.mongo-mcp/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Pool: connection pool sizing and idle reaping
//   - Guard: response size ceiling and truncation item count
//   - Exec: command timeout, default result limit, write/admin gates
//   - Connections: named connection profiles (see profiles.go)
//
// Security: Connection URIs may embed credentials and are never logged in
// the clear; MarshalJSON and String mask them.
// Validation: Range checks with sentinel errors, fail-fast on Load.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/jagadeesh52423/mongo-mcp/internal/security"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidPoolSize indicates the pool size is out of range.
	ErrInvalidPoolSize = errors.New("invalid pool size")

	// ErrInvalidIdleTimeout indicates the idle timeout is out of range.
	ErrInvalidIdleTimeout = errors.New("invalid idle timeout")

	// ErrInvalidSweepInterval indicates the sweep interval is out of range.
	ErrInvalidSweepInterval = errors.New("invalid sweep interval")

	// ErrInvalidResponseLimit indicates the response byte ceiling is out of range.
	ErrInvalidResponseLimit = errors.New("invalid response size limit")

	// ErrInvalidMaxItems indicates the truncation item count is out of range.
	ErrInvalidMaxItems = errors.New("invalid max items")

	// ErrInvalidTimeout indicates the command timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid command timeout")

	// ErrInvalidMaxResults indicates the default result limit is out of range.
	ErrInvalidMaxResults = errors.New("invalid max results")

	// ErrUnknownProfile indicates a connection profile name is not configured.
	ErrUnknownProfile = errors.New("unknown connection profile")
)

// Defaults for the execution pipeline. These match the behavior an agent
// gets when the config file is absent.
const (
	DefaultMaxPoolSize       = 10
	DefaultIdleTimeout       = 5 * time.Minute
	DefaultSweepInterval     = 60 * time.Second
	DefaultMaxResponseBytes  = 10 * 1024 * 1024 // 10 MiB
	DefaultWarnResponseBytes = 1024 * 1024      // 1 MiB
	DefaultMaxItems          = 50
	DefaultTimeout           = 30 * time.Second
	DefaultMaxResults        = 100
)

// PoolConfig holds connection pool knobs.
type PoolConfig struct {
	MaxSize       int           `mapstructure:"max_size" json:"max_size"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout" json:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" json:"sweep_interval"`
}

// GuardConfig holds response size guard knobs.
type GuardConfig struct {
	MaxResponseBytes  int `mapstructure:"max_response_bytes" json:"max_response_bytes"`
	WarnResponseBytes int `mapstructure:"warn_response_bytes" json:"warn_response_bytes"`
	MaxItems          int `mapstructure:"max_items" json:"max_items"`
}

// ExecConfig holds command execution knobs.
type ExecConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxResults int           `mapstructure:"max_results" json:"max_results"`

	// AllowWrites permits mutating operations (insert/update/delete/...).
	// Default false: the agent gets a read-only surface.
	AllowWrites bool `mapstructure:"allow_writes" json:"allow_writes"`

	// AllowAdmin permits administrative commands (serverStatus, ...).
	AllowAdmin bool `mapstructure:"allow_admin" json:"allow_admin"`
}

// Config stores application configuration.
// SECURITY: Connection URIs are masked in MarshalJSON().
type Config struct {
	Pool  PoolConfig  `mapstructure:"pool" json:"pool"`
	Guard GuardConfig `mapstructure:"guard" json:"guard"`
	Exec  ExecConfig  `mapstructure:"exec" json:"exec"`

	// DefaultDatabase is used when a command does not name one.
	DefaultDatabase string `mapstructure:"default_database" json:"default_database"`

	// URI is the default connection string, typically supplied via the
	// MONGO_MCP_URI environment variable. SENSITIVE: masked in MarshalJSON.
	URI string `mapstructure:"uri" json:"uri"`

	// Connections maps profile names to connection URIs. Values may
	// reference environment variables with $VAR syntax (see profiles.go).
	// SENSITIVE: masked in MarshalJSON.
	Connections map[string]string `mapstructure:"connections" json:"connections"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.mongo-mcp/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".mongo-mcp")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	// Configure Viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	// Use Unmarshal to automatically map to struct (type-safe)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("pool.max_size", DefaultMaxPoolSize)
	viper.SetDefault("pool.idle_timeout", DefaultIdleTimeout)
	viper.SetDefault("pool.sweep_interval", DefaultSweepInterval)

	viper.SetDefault("guard.max_response_bytes", DefaultMaxResponseBytes)
	viper.SetDefault("guard.warn_response_bytes", DefaultWarnResponseBytes)
	viper.SetDefault("guard.max_items", DefaultMaxItems)

	viper.SetDefault("exec.timeout", DefaultTimeout)
	viper.SetDefault("exec.max_results", DefaultMaxResults)
	viper.SetDefault("exec.allow_writes", false)
	viper.SetDefault("exec.allow_admin", false)

	viper.SetDefault("default_database", "test")
}

// bindEnvVariables binds environment variable overrides explicitly.
// Explicit binds (rather than AutomaticEnv) keep the override surface
// enumerable and documented.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	// Default connection string. SENSITIVE: may embed credentials.
	mustBind("uri", "MONGO_MCP_URI")

	// Database used when a command does not name one.
	mustBind("default_database", "MONGO_MCP_DATABASE")

	// Security gates. Off by default; opt in deliberately.
	mustBind("exec.allow_writes", "MONGO_MCP_ALLOW_WRITES")
	mustBind("exec.allow_admin", "MONGO_MCP_ALLOW_ADMIN")

	// Response size ceiling override.
	mustBind("guard.max_response_bytes", "MONGO_MCP_MAX_RESPONSE_BYTES")
}

// Validate checks all configuration values against their allowed ranges.
// Returns sentinel errors wrapped with the offending value.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.Pool.MaxSize < 1 || c.Pool.MaxSize > 100 {
		return fmt.Errorf("%w: %d (must be 1-100)", ErrInvalidPoolSize, c.Pool.MaxSize)
	}
	if c.Pool.IdleTimeout < time.Second {
		return fmt.Errorf("%w: %s (must be >= 1s)", ErrInvalidIdleTimeout, c.Pool.IdleTimeout)
	}
	if c.Pool.SweepInterval < time.Second {
		return fmt.Errorf("%w: %s (must be >= 1s)", ErrInvalidSweepInterval, c.Pool.SweepInterval)
	}

	if c.Guard.MaxResponseBytes < 1024 {
		return fmt.Errorf("%w: %d (must be >= 1024)", ErrInvalidResponseLimit, c.Guard.MaxResponseBytes)
	}
	if c.Guard.WarnResponseBytes < 0 || c.Guard.WarnResponseBytes > c.Guard.MaxResponseBytes {
		return fmt.Errorf("%w: warn threshold %d exceeds ceiling %d",
			ErrInvalidResponseLimit, c.Guard.WarnResponseBytes, c.Guard.MaxResponseBytes)
	}
	if c.Guard.MaxItems < 1 {
		return fmt.Errorf("%w: %d (must be >= 1)", ErrInvalidMaxItems, c.Guard.MaxItems)
	}

	if c.Exec.Timeout < 100*time.Millisecond || c.Exec.Timeout > time.Hour {
		return fmt.Errorf("%w: %s (must be 100ms-1h)", ErrInvalidTimeout, c.Exec.Timeout)
	}
	if c.Exec.MaxResults < 0 {
		return fmt.Errorf("%w: %d (must be >= 0; 0 applies the built-in default)",
			ErrInvalidMaxResults, c.Exec.MaxResults)
	}

	return nil
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - URI (may embed credentials)
//   - Connections values (may embed credentials)
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.URI = security.MaskURI(a.URI)
	if len(a.Connections) > 0 {
		masked := make(map[string]string, len(a.Connections))
		for name, uri := range a.Connections {
			masked[name] = security.MaskURI(uri)
		}
		a.Connections = masked
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
