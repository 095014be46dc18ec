// Package persistence stores rules and audit entries in SQLite or PostgreSQL
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/authz-engine/permission-rules/internal/audit"
	"github.com/authz-engine/permission-rules/internal/policy"
	"github.com/authz-engine/permission-rules/pkg/types"
)

// Driver selects the storage backend
type Driver string

const (
	DriverNone     Driver = "none"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Store persists rules for the registry and audit entries for the audit log
type Store interface {
	policy.Persister
	audit.Sink

	// Ping checks that the database is reachable
	Ping(ctx context.Context) error
}

// Config configures the rule store
type Config struct {
	Driver Driver `yaml:"driver"`

	// SQLitePath is the database file for the sqlite driver
	SQLitePath string `yaml:"sqlite_path"`

	// PostgresDSN is the connection string for the postgres driver
	PostgresDSN string `yaml:"postgres_dsn"`
	// MaxOpenConns bounds the postgres connection pool
	MaxOpenConns int `yaml:"max_open_conns"`

	// AuditSink also writes audit entries to the database
	AuditSink bool `yaml:"audit_sink"`
}

// DefaultConfig returns a configuration with persistence disabled
func DefaultConfig() Config {
	return Config{
		Driver:       DriverNone,
		SQLitePath:   "permission-rules.db",
		MaxOpenConns: 10,
		AuditSink:    true,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Driver {
	case "", DriverNone:
		c.Driver = DriverNone
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres dsn is required for the postgres driver")
		}
		if c.MaxOpenConns <= 0 {
			c.MaxOpenConns = 10
		}
	default:
		return fmt.Errorf("invalid persistence driver: %s (must be none, sqlite, or postgres)", c.Driver)
	}
	return nil
}

// Open opens the configured store. It returns nil, nil for DriverNone.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case DriverSQLite:
		return NewSQLiteStore(cfg.SQLitePath, logger)
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN, cfg.MaxOpenConns, logger)
	default:
		return nil, nil
	}
}

// ruleRow is the indexed projection of a rule stored next to its document
type ruleRow struct {
	id        string
	name      string
	status    string
	priority  int
	document  []byte
	createdAt time.Time
	updatedAt time.Time
}

func encodeRule(rule *types.PermissionRule) (*ruleRow, error) {
	doc, err := json.Marshal(rule)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule %s: %w", rule.ID, err)
	}
	return &ruleRow{
		id:        rule.ID,
		name:      rule.Name,
		status:    string(rule.Status),
		priority:  rule.Priority,
		document:  doc,
		createdAt: rule.CreatedAt.UTC(),
		updatedAt: rule.UpdatedAt.UTC(),
	}, nil
}

func decodeRule(id string, doc []byte) (*types.PermissionRule, error) {
	var rule types.PermissionRule
	if err := json.Unmarshal(doc, &rule); err != nil {
		return nil, fmt.Errorf("failed to decode rule %s: %w", id, err)
	}
	rule.ID = id
	return &rule, nil
}

// encodeChanges returns nil for entries without a diff
func encodeChanges(changes map[string]types.FieldChange) (interface{}, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit changes: %w", err)
	}
	return string(data), nil
}
