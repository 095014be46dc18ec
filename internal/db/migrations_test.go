package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMigrations(t *testing.T) {
	migrations, err := ListMigrations()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"000001_create_permission_rules.down.sql",
		"000001_create_permission_rules.up.sql",
		"000002_create_rule_audit_log.down.sql",
		"000002_create_rule_audit_log.up.sql",
		"000003_add_rule_sequence.down.sql",
		"000003_add_rule_sequence.up.sql",
	}, migrations)
}

func TestMigrationsReferenceSchemaTables(t *testing.T) {
	rules, err := migrationsFS.ReadFile("migrations/000001_create_permission_rules.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(rules), TableRules)
	assert.Contains(t, string(rules), ColDocument)

	audit, err := migrationsFS.ReadFile("migrations/000002_create_rule_audit_log.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(audit), TableAuditLog)
	assert.Contains(t, string(audit), ColChanges)
}

func TestRuleSequenceMigration(t *testing.T) {
	up, err := migrationsFS.ReadFile("migrations/000003_add_rule_sequence.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), TableRules)
	assert.Contains(t, string(up), ColSeq)
	assert.Contains(t, string(up), "SET NOT NULL")
}
