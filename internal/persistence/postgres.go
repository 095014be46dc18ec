package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/authz-engine/permission-rules/internal/db"
	"github.com/authz-engine/permission-rules/pkg/types"
)

// PostgresStore persists rules as JSONB documents in PostgreSQL
type PostgresStore struct {
	db        *sql.DB
	migrator  *db.MigrationRunner
	logger    *zap.Logger
	closeOnce sync.Once
	closeErr  error
}

// NewPostgresStore connects to PostgreSQL and applies pending migrations
func NewPostgresStore(ctx context.Context, dsn string, maxOpenConns int, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpenConns > 0 {
		conn.SetMaxOpenConns(maxOpenConns)
	}
	conn.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	migrator, err := db.NewMigrationRunner(conn, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		migrator.Close()
		return nil, err
	}

	logger.Info("Connected to postgres rule store")
	return &PostgresStore{db: conn, migrator: migrator, logger: logger}, nil
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LoadAllRules returns every stored rule in first-insertion order
func (s *PostgresStore) LoadAllRules(ctx context.Context) ([]*types.PermissionRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document FROM permission_rules ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	defer rows.Close()

	var rules []*types.PermissionRule
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rule, err := decodeRule(id, doc)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Persist upserts a rule; seq is assigned by the column default on insert
func (s *PostgresStore) Persist(ctx context.Context, rule *types.PermissionRule) error {
	row, err := encodeRule(rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO permission_rules (id, name, status, priority, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
	`

	// lib/pq sends []byte as bytea, so the document goes as text
	_, err = s.db.ExecContext(ctx, query,
		row.id,
		row.name,
		row.status,
		row.priority,
		string(row.document),
		row.createdAt,
		row.updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to persist rule %s: %w", rule.ID, err)
	}
	return nil
}

// Delete removes a rule; deleting an unknown id is not an error
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM permission_rules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}
	return nil
}

// Write stores an audit entry
func (s *PostgresStore) Write(ctx context.Context, entry *types.AuditLogEntry) error {
	changes, err := encodeChanges(entry.Changes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rule_audit_log (
			id, user_id, user_name, action, rule_id,
			rule_name, target_type, target_id, changes, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.UserName,
		string(entry.Action),
		entry.RuleID,
		entry.RuleName,
		entry.TargetType,
		entry.TargetID,
		changes,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write audit entry %s: %w", entry.ID, err)
	}
	return nil
}

// AuditEntries returns the most recent stored entries for a rule, oldest
// first. An empty ruleID returns entries for all rules.
func (s *PostgresStore) AuditEntries(ctx context.Context, ruleID string, limit int) ([]*types.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			id, user_id, user_name, action, rule_id,
			rule_name, target_type, target_id, changes, timestamp
		FROM rule_audit_log
		WHERE $1::text = '' OR rule_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*types.AuditLogEntry
	for rows.Next() {
		var e types.AuditLogEntry
		var action string
		var changes []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserName, &action, &e.RuleID,
			&e.RuleName, &e.TargetType, &e.TargetID, &changes, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = types.AuditAction(action)
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &e.Changes); err != nil {
				return nil, fmt.Errorf("failed to decode audit changes: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reverse(entries)
	return entries, nil
}

// Close closes the migration driver and the database. It is safe to call
// more than once.
func (s *PostgresStore) Close() error {
	s.closeOnce.Do(func() {
		// the migration driver owns the database handle
		s.closeErr = s.migrator.Close()
	})
	return s.closeErr
}
