// Package policy provides permission rule storage and administration
package policy

import (
	"context"

	"github.com/authz-engine/permission-rules/pkg/types"
)

// Store is the read side of the rule registry used by the decision engine
type Store interface {
	// Get retrieves a copy of a rule by id
	Get(id string) (*types.PermissionRule, error)

	// List returns copies of all rules in insertion order
	List() []*types.PermissionRule

	// ActiveRules returns the active rules ordered by priority (highest
	// first, insertion order for ties). The returned rules are shared and
	// must not be modified.
	ActiveRules() []*types.PermissionRule

	// Generation changes whenever the rule set changes
	Generation() uint64

	// Fingerprint identifies the active rule snapshot independently of the
	// process, so it can scope decisions in a shared cache
	Fingerprint() string

	// Count returns the number of rules
	Count() int
}

// Persister is the durable storage collaborator of the registry. Persist and
// Delete are called after each successful mutation; their errors never fail
// the mutation.
type Persister interface {
	LoadAllRules(ctx context.Context) ([]*types.PermissionRule, error)
	Persist(ctx context.Context, rule *types.PermissionRule) error
	Delete(ctx context.Context, id string) error
}

// RulePatch describes an update. Nil fields are left unchanged; a non-nil
// empty slice clears the field.
type RulePatch struct {
	Name          *string                `json:"name,omitempty" yaml:"name,omitempty"`
	Description   *string                `json:"description,omitempty" yaml:"description,omitempty"`
	Status        *types.RuleStatus      `json:"status,omitempty" yaml:"status,omitempty"`
	Priority      *int                   `json:"priority,omitempty" yaml:"priority,omitempty"`
	Conditions    []*types.RuleCondition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Actions       []*types.RuleAction    `json:"actions,omitempty" yaml:"actions,omitempty"`
	ElseActions   []*types.RuleAction    `json:"elseActions,omitempty" yaml:"elseActions,omitempty"`
	AssignedRoles []string               `json:"assignedRoles,omitempty" yaml:"assignedRoles,omitempty"`
	AssignedUsers []string               `json:"assignedUsers,omitempty" yaml:"assignedUsers,omitempty"`
}

// apply returns a copy of rule with the patch merged in
func (p *RulePatch) apply(rule *types.PermissionRule) *types.PermissionRule {
	out := rule.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.Conditions != nil {
		out.Conditions = (&types.PermissionRule{Conditions: p.Conditions}).Clone().Conditions
	}
	if p.Actions != nil {
		// replacing THEN actions keeps existing else actions unless patched
		out.Actions = (&types.PermissionRule{Actions: p.Actions}).Clone().Actions
	}
	if p.ElseActions != nil {
		out.ElseActions = (&types.PermissionRule{ElseActions: p.ElseActions}).Clone().ElseActions
	}
	if p.AssignedRoles != nil {
		out.AssignedRoles = append([]string{}, p.AssignedRoles...)
	}
	if p.AssignedUsers != nil {
		out.AssignedUsers = append([]string{}, p.AssignedUsers...)
	}
	return out
}
