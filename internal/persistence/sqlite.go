package persistence

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/authz-engine/permission-rules/pkg/types"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// sqliteTime is fixed width so text order is chronological
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore persists rules and audit entries in a local SQLite file
type SQLiteStore struct {
	db        *sql.DB
	logger    *zap.Logger
	closeOnce sync.Once
	closeErr  error
}

// NewSQLiteStore opens (or creates) a SQLite database and applies the schema
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// modernc applies each _pragma to every new connection
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// one writer, one reader
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logger.Info("Opened sqlite rule store", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LoadAllRules returns every stored rule in first-insertion order
func (s *SQLiteStore) LoadAllRules(ctx context.Context) ([]*types.PermissionRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document FROM permission_rules ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	defer rows.Close()

	var rules []*types.PermissionRule
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rule, err := decodeRule(id, []byte(doc))
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Persist inserts or replaces a rule. A new rule takes the next sequence
// number; updates keep it.
func (s *SQLiteStore) Persist(ctx context.Context, rule *types.PermissionRule) error {
	row, err := encodeRule(rule)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO permission_rules (id, seq, name, status, priority, document, created_at, updated_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM permission_rules), ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			priority = excluded.priority,
			document = excluded.document,
			updated_at = excluded.updated_at`,
		row.id, row.name, row.status, row.priority, string(row.document),
		row.createdAt.Format(sqliteTime), row.updatedAt.Format(sqliteTime),
	)
	if err != nil {
		return fmt.Errorf("failed to persist rule %s: %w", rule.ID, err)
	}
	return nil
}

// Delete removes a rule; deleting an unknown id is not an error
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM permission_rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}
	return nil
}

// Write stores an audit entry
func (s *SQLiteStore) Write(ctx context.Context, entry *types.AuditLogEntry) error {
	changes, err := encodeChanges(entry.Changes)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO rule_audit_log
			(id, user_id, user_name, action, rule_id, rule_name, target_type, target_id, changes, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.UserName, string(entry.Action), entry.RuleID, entry.RuleName,
		entry.TargetType, entry.TargetID, changes, entry.Timestamp.UTC().Format(sqliteTime),
	)
	if err != nil {
		return fmt.Errorf("failed to write audit entry %s: %w", entry.ID, err)
	}
	return nil
}

// AuditEntries returns the most recent stored entries for a rule, oldest
// first. An empty ruleID returns entries for all rules.
func (s *SQLiteStore) AuditEntries(ctx context.Context, ruleID string, limit int) ([]*types.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, user_name, action, rule_id, rule_name, target_type, target_id, changes, timestamp
		FROM rule_audit_log
		WHERE ? = '' OR rule_id = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?`, ruleID, ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*types.AuditLogEntry
	for rows.Next() {
		var e types.AuditLogEntry
		var action, ts string
		var changes sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserName, &action, &e.RuleID, &e.RuleName,
			&e.TargetType, &e.TargetID, &changes, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = types.AuditAction(action)
		if e.Timestamp, err = time.Parse(sqliteTime, ts); err != nil {
			return nil, fmt.Errorf("invalid audit timestamp %q: %w", ts, err)
		}
		if changes.Valid {
			if err := json.Unmarshal([]byte(changes.String), &e.Changes); err != nil {
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

// Close closes the database. It is safe to call more than once, since the
// store is usually registered both as persister and as audit sink.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

func reverse(entries []*types.AuditLogEntry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
