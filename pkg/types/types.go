// Package types provides shared types for the permission rule engine
package types

// RuleStatus represents the lifecycle state of a rule
type RuleStatus string

const (
	StatusDraft    RuleStatus = "draft"
	StatusActive   RuleStatus = "active"
	StatusInactive RuleStatus = "inactive"
)

// Valid reports whether s is a known status
func (s RuleStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusInactive:
		return true
	}
	return false
}

// Operator is a condition comparison operator
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpContains           Operator = "contains"
	OpNotContains        Operator = "not_contains"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not_in"
	OpGreaterThan        Operator = "greater_than"
	OpLessThan           Operator = "less_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpIsEmpty            Operator = "is_empty"
	OpIsNotEmpty         Operator = "is_not_empty"
	OpStartsWith         Operator = "starts_with"
	OpEndsWith           Operator = "ends_with"
)

var knownOperators = map[Operator]bool{
	OpEquals: true, OpNotEquals: true, OpContains: true, OpNotContains: true,
	OpIn: true, OpNotIn: true, OpGreaterThan: true, OpLessThan: true,
	OpGreaterThanOrEqual: true, OpLessThanOrEqual: true, OpIsEmpty: true,
	OpIsNotEmpty: true, OpStartsWith: true, OpEndsWith: true,
}

// Valid reports whether op is a known operator
func (op Operator) Valid() bool {
	return knownOperators[op]
}

// IgnoresValue reports whether the operator ignores the condition value
func (op Operator) IgnoresValue() bool {
	return op == OpIsEmpty || op == OpIsNotEmpty
}

// RequiresList reports whether the operator expects a list value
func (op Operator) RequiresList() bool {
	return op == OpIn || op == OpNotIn
}

// LogicalOperator joins a condition to the fold result of its predecessors
type LogicalOperator string

const (
	LogicAnd LogicalOperator = "AND"
	LogicOr  LogicalOperator = "OR"
)

// Valid reports whether l is AND or OR
func (l LogicalOperator) Valid() bool {
	return l == LogicAnd || l == LogicOr
}

// ActionType is the effect a rule action has
type ActionType string

const (
	ActionAllow             ActionType = "allow"
	ActionDeny              ActionType = "deny"
	ActionSetFileVisibility ActionType = "setFileVisibility"
	ActionGrantAccess       ActionType = "grantAccess"
	ActionRevokeAccess      ActionType = "revokeAccess"
	ActionSetFieldEditable  ActionType = "setFieldEditable"
	ActionSetFieldReadOnly  ActionType = "setFieldReadOnly"
)

// Valid reports whether t is a known action type
func (t ActionType) Valid() bool {
	switch t {
	case ActionAllow, ActionDeny, ActionSetFileVisibility, ActionGrantAccess,
		ActionRevokeAccess, ActionSetFieldEditable, ActionSetFieldReadOnly:
		return true
	}
	return false
}

// Grants reports whether the action type resolves to an allow decision
func (t ActionType) Grants() bool {
	return t == ActionAllow || t == ActionSetFileVisibility || t == ActionGrantAccess
}

// RequiresPermissions reports whether the action must carry a permission set
func (t ActionType) RequiresPermissions() bool {
	return t == ActionAllow || t == ActionGrantAccess
}

// ActionTarget is who an action applies to
type ActionTarget string

const (
	TargetAnyUser        ActionTarget = "any_user"
	TargetSpecificUser   ActionTarget = "specific_user"
	TargetRole           ActionTarget = "role"
	TargetCompany        ActionTarget = "company"
	TargetProjectMembers ActionTarget = "project_members"
	TargetClients        ActionTarget = "clients"
)

// Valid reports whether t is a known target
func (t ActionTarget) Valid() bool {
	switch t {
	case TargetAnyUser, TargetSpecificUser, TargetRole, TargetCompany,
		TargetProjectMembers, TargetClients:
		return true
	}
	return false
}

// Entity types observed in rule actions
const (
	EntityFile        = "file"
	EntityProject     = "project"
	EntityCompany     = "company"
	EntityContact     = "contact"
	EntityOpportunity = "opportunity"
	EntityInvoice     = "invoice"
	EntityEstimate    = "estimate"
	EntityMessage     = "message"
	EntityEmail       = "email"
)

// Permission tags
const (
	PermView     = "view"
	PermEdit     = "edit"
	PermDelete   = "delete"
	PermShare    = "share"
	PermDownload = "download"
	PermUpload   = "upload"
	PermComment  = "comment"
	PermApprove  = "approve"
)

// Actor identifies who performed an administrative operation
type Actor struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// SystemActor is used for mutations not initiated by a person
var SystemActor = Actor{ID: "system", Name: "System"}
