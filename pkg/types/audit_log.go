package types

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction is an administrative operation recorded in the audit log
type AuditAction string

const (
	AuditCreate     AuditAction = "create"
	AuditUpdate     AuditAction = "update"
	AuditDelete     AuditAction = "delete"
	AuditActivate   AuditAction = "activate"
	AuditDeactivate AuditAction = "deactivate"
)

// AuditTargetRule is the target type for rule mutations
const AuditTargetRule = "rule"

// FieldChange is the before/after value of one changed field
type FieldChange struct {
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}

// AuditLogEntry is an immutable record of one administrative mutation to a rule
type AuditLogEntry struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"userId"`
	UserName   string                 `json:"userName"`
	Action     AuditAction            `json:"action"`
	RuleID     string                 `json:"ruleId"`
	RuleName   string                 `json:"ruleName"`
	TargetType string                 `json:"targetType"`
	TargetID   string                 `json:"targetId"`
	Changes    map[string]FieldChange `json:"changes,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// NewAuditLogEntry creates an entry for a mutation of rule by actor
func NewAuditLogEntry(actor Actor, action AuditAction, rule *PermissionRule) *AuditLogEntry {
	return &AuditLogEntry{
		ID:         uuid.NewString(),
		UserID:     actor.ID,
		UserName:   actor.Name,
		Action:     action,
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		TargetType: AuditTargetRule,
		TargetID:   rule.ID,
		Timestamp:  time.Now().UTC(),
	}
}

// WithChanges attaches the field diff of an update
func (e *AuditLogEntry) WithChanges(changes map[string]FieldChange) *AuditLogEntry {
	e.Changes = changes
	return e
}
