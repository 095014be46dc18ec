package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/authz-engine/permission-rules/internal/condition"
	"github.com/authz-engine/permission-rules/pkg/types"
)

var (
	// ErrRuleNotFound is returned when operating on an unknown rule id
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleExists is returned when adding a rule whose id is taken
	ErrRuleExists = errors.New("rule already exists")

	// ErrValidation is matched by every *ValidationError
	ErrValidation = errors.New("rule validation failed")
)

// ValidationError describes one invalid field of a rule
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrValidation
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidateRule checks the structure of a rule: known operators, action types
// and targets, list values for in/not_in, permissions for granting actions
func ValidateRule(rule *types.PermissionRule) error {
	if rule == nil {
		return invalid("rule", "rule cannot be nil")
	}
	if strings.TrimSpace(rule.Name) == "" {
		return invalid("name", "rule name is required")
	}
	if rule.Status != "" && !rule.Status.Valid() {
		return invalid("status", "unknown status %q", rule.Status)
	}

	for i, c := range rule.Conditions {
		if err := validateCondition(c, fmt.Sprintf("conditions[%d]", i)); err != nil {
			return err
		}
	}
	for i, a := range rule.Actions {
		if err := validateAction(a, fmt.Sprintf("actions[%d]", i)); err != nil {
			return err
		}
	}
	for i, a := range rule.ElseActions {
		if err := validateAction(a, fmt.Sprintf("elseActions[%d]", i)); err != nil {
			return err
		}
	}

	if rule.IsActive() {
		return ValidateActivation(rule)
	}
	return nil
}

// ValidateActivation enforces that an active rule has at least one condition
// and at least one action
func ValidateActivation(rule *types.PermissionRule) error {
	if len(rule.Conditions) == 0 {
		return invalid("conditions", "rule %q needs at least one condition to be activated", rule.Name)
	}
	if len(rule.Actions) == 0 {
		return invalid("actions", "rule %q needs at least one action to be activated", rule.Name)
	}
	return nil
}

func validateCondition(c *types.RuleCondition, field string) error {
	if c == nil {
		return invalid(field, "condition cannot be nil")
	}
	if strings.TrimSpace(c.Field) == "" {
		return invalid(field+".field", "field path is required")
	}
	if !c.Operator.Valid() {
		return invalid(field+".operator", "unknown operator %q", c.Operator)
	}
	if c.LogicalOperator != "" && !c.LogicalOperator.Valid() {
		return invalid(field+".logicalOperator", "must be AND or OR, got %q", c.LogicalOperator)
	}
	if c.GroupLogic != "" && !c.GroupLogic.Valid() {
		return invalid(field+".groupLogic", "must be AND or OR, got %q", c.GroupLogic)
	}
	if c.Operator.RequiresList() {
		if _, ok := condition.AsList(c.Value); !ok {
			return invalid(field+".value", "operator %s requires a list value", c.Operator)
		}
	}
	return nil
}

func validateAction(a *types.RuleAction, field string) error {
	if a == nil {
		return invalid(field, "action cannot be nil")
	}
	if !a.Type.Valid() {
		return invalid(field+".type", "unknown action type %q", a.Type)
	}
	if a.Target != "" && !a.Target.Valid() {
		return invalid(field+".target", "unknown target %q", a.Target)
	}
	if a.Type.RequiresPermissions() && len(a.Permissions) == 0 {
		return invalid(field+".permissions", "%s action requires permissions", a.Type)
	}
	return nil
}
