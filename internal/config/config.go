// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Schema   SchemaConfig   `yaml:"schema"`
	Cache    CacheConfig    `yaml:"cache"`
	Security SecurityConfig `yaml:"security"`
	Debug    DebugConfig    `yaml:"debug"`
	Errors   ErrorsConfig   `yaml:"errors"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Otel     OtelConfig     `yaml:"otel"`
}

// SchemaConfig locates the main schema-definition source. Exactly one of
// Path and SDL must be set.
type SchemaConfig struct {
	Path string `yaml:"path,omitempty"`
	SDL  string `yaml:"sdl,omitempty"`
}

// CacheConfig configures the persistent schema cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Key     string `yaml:"key"`
	Path    string `yaml:"path,omitempty"` // sqlite database file
}

// SecurityConfig configures the query validation limits. Zero means
// unlimited for the two numeric limits.
type SecurityConfig struct {
	MaxQueryDepth        int  `yaml:"max_query_depth"`
	MaxQueryComplexity   int  `yaml:"max_query_complexity"`
	DisableIntrospection bool `yaml:"disable_introspection"`
}

// DebugConfig controls diagnostic output on formatted errors. Enabled is the
// global gate: when false, Flags are ignored entirely.
type DebugConfig struct {
	Enabled bool     `yaml:"enabled"`
	Flags   []string `yaml:"flags,omitempty"` // raw_message, trace, exception
}

// ErrorsConfig configures the error-handler chain, applied to every error in
// order before formatting. Identifiers must be registered handler names.
type ErrorsConfig struct {
	Handlers []string `yaml:"handlers,omitempty"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	Pretty       bool          `yaml:"pretty"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	CORSOrigins  []string      `yaml:"cors_origins,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr,omitempty"`
}

// OtelConfig configures trace export. An empty endpoint disables tracing.
type OtelConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	Service  string `yaml:"service,omitempty"`
}

// Default returns a configuration populated with usable defaults.
func Default() *Config {
	return &Config{
		Cache:   CacheConfig{Key: "lighthouse:schema"},
		Errors:  ErrorsConfig{Handlers: []string{"report", "redact"}},
		Server:  ServerConfig{Addr: ":8080", Timeout: 10 * time.Second},
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{Addr: ":9090"},
		Otel:    OtelConfig{Service: "lighthouse"},
	}
}

// Load reads, parses and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Schema.Path != "" && c.Schema.SDL != "" {
		return fmt.Errorf("schema: path and sdl are mutually exclusive")
	}
	if c.Schema.Path == "" && c.Schema.SDL == "" {
		return fmt.Errorf("schema: one of path or sdl is required")
	}
	return c.ValidateWithoutSchema()
}

// ValidateWithoutSchema checks everything Validate does except the schema
// source requirement, for callers that supply a schema source directly.
func (c *Config) ValidateWithoutSchema() error {
	if c.Cache.Enabled {
		if c.Cache.Key == "" {
			return fmt.Errorf("cache: key is required when enabled")
		}
		if c.Cache.Path == "" {
			return fmt.Errorf("cache: path is required when enabled")
		}
	}
	if c.Security.MaxQueryDepth < 0 {
		return fmt.Errorf("security: max_query_depth must be >= 0")
	}
	if c.Security.MaxQueryComplexity < 0 {
		return fmt.Errorf("security: max_query_complexity must be >= 0")
	}
	for _, f := range c.Debug.Flags {
		switch f {
		case "raw_message", "trace", "exception":
		default:
			return fmt.Errorf("debug: unknown flag %q", f)
		}
	}
	return nil
}
