package db

// Table names
const (
	TableRules      = "permission_rules"
	TableAuditLog   = "rule_audit_log"
	MigrationsTable = "permrules_schema_migrations"
)

// Rule columns
const (
	ColID        = "id"
	ColSeq       = "seq"
	ColName      = "name"
	ColStatus    = "status"
	ColPriority  = "priority"
	ColDocument  = "document"
	ColCreatedAt = "created_at"
	ColUpdatedAt = "updated_at"
)

// Audit columns
const (
	ColUserID     = "user_id"
	ColUserName   = "user_name"
	ColAction     = "action"
	ColRuleID     = "rule_id"
	ColRuleName   = "rule_name"
	ColTargetType = "target_type"
	ColTargetID   = "target_id"
	ColChanges    = "changes"
	ColTimestamp  = "timestamp"
)
