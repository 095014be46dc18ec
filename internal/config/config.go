// Package config loads the process configuration of the permission engine
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/authz-engine/permission-rules/internal/audit"
	"github.com/authz-engine/permission-rules/internal/engine"
	"github.com/authz-engine/permission-rules/internal/persistence"
	"github.com/authz-engine/permission-rules/internal/server"
)

// Config is the complete process configuration
type Config struct {
	Log         LogConfig          `yaml:"log"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Engine      engine.Config      `yaml:"engine"`
	Audit       audit.Config       `yaml:"audit"`
	Persistence persistence.Config `yaml:"persistence"`
	Server      server.Config      `yaml:"server"`
	Rules       RulesConfig        `yaml:"rules"`
	Templates   TemplatesConfig    `yaml:"templates"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level"`
	// Format: json or console
	Format string `yaml:"format"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// RulesConfig points at rule seed files
type RulesConfig struct {
	// SeedPath is a rule file or a directory of rule files. Seeds are only
	// loaded when the persistent store holds no rules.
	SeedPath string `yaml:"seed_path"`
}

// TemplatesConfig points at custom template files
type TemplatesConfig struct {
	// Dir holds custom template files; empty uses the system templates only
	Dir string `yaml:"dir"`
	// Watch reloads Dir when its files change
	Watch bool `yaml:"watch"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "permrules",
		},
		Engine:          engine.DefaultConfig(),
		Audit:           audit.DefaultConfig(),
		Persistence:     persistence.DefaultConfig(),
		Server:          server.DefaultConfig(),
		ShutdownTimeout: 30 * time.Second,
	}
}

// Load reads a YAML file over the defaults and validates the result. An empty
// path returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate validates every section and fills zero values with defaults
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "":
		c.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}
	switch c.Log.Format {
	case "":
		c.Log.Format = "json"
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Log.Format)
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "permrules"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if err := c.Persistence.Validate(); err != nil {
		return fmt.Errorf("persistence: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
