package types

import (
	"sort"
	"time"
)

// PermissionRule is the unit of policy: IF conditions THEN actions ELSE elseActions
type PermissionRule struct {
	ID             string           `json:"id" yaml:"id"`
	Name           string           `json:"name" yaml:"name"`
	Description    string           `json:"description,omitempty" yaml:"description,omitempty"`
	Status         RuleStatus       `json:"status" yaml:"status"`
	Priority       int              `json:"priority" yaml:"priority"`
	Conditions     []*RuleCondition `json:"conditions" yaml:"conditions"`
	Actions        []*RuleAction    `json:"actions" yaml:"actions"`
	ElseActions    []*RuleAction    `json:"elseActions,omitempty" yaml:"elseActions,omitempty"`
	AssignedRoles  []string         `json:"assignedRoles,omitempty" yaml:"assignedRoles,omitempty"`
	AssignedUsers  []string         `json:"assignedUsers,omitempty" yaml:"assignedUsers,omitempty"`
	CreatedBy      string           `json:"createdBy,omitempty" yaml:"createdBy,omitempty"`
	LastModifiedBy string           `json:"lastModifiedBy,omitempty" yaml:"lastModifiedBy,omitempty"`
	CreatedAt      time.Time        `json:"createdAt" yaml:"createdAt,omitempty"`
	UpdatedAt      time.Time        `json:"updatedAt" yaml:"updatedAt,omitempty"`
}

// RuleCondition is a single predicate over a dotted field path
type RuleCondition struct {
	ID               string          `json:"id,omitempty" yaml:"id,omitempty"`
	Field            string          `json:"field" yaml:"field"`
	Operator         Operator        `json:"operator" yaml:"operator"`
	Value            interface{}     `json:"value,omitempty" yaml:"value,omitempty"`
	LogicalOperator  LogicalOperator `json:"logicalOperator,omitempty" yaml:"logicalOperator,omitempty"`
	ConditionGroupID string          `json:"conditionGroupId,omitempty" yaml:"conditionGroupId,omitempty"`
	GroupLogic       LogicalOperator `json:"groupLogic,omitempty" yaml:"groupLogic,omitempty"`
}

// RuleAction is a single effect of a rule
type RuleAction struct {
	ID             string       `json:"id,omitempty" yaml:"id,omitempty"`
	Type           ActionType   `json:"type" yaml:"type"`
	Target         ActionTarget `json:"target" yaml:"target"`
	TargetID       string       `json:"targetId,omitempty" yaml:"targetId,omitempty"`
	EntityType     string       `json:"entityType,omitempty" yaml:"entityType,omitempty"`
	EntityID       string       `json:"entityId,omitempty" yaml:"entityId,omitempty"`
	Permissions    []string     `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	ActionSequence int          `json:"actionSequence,omitempty" yaml:"actionSequence,omitempty"`
	IsElseAction   bool         `json:"isElseAction,omitempty" yaml:"isElseAction,omitempty"`
}

// IsActive returns true if the rule participates in decisions
func (r *PermissionRule) IsActive() bool {
	return r.Status == StatusActive
}

// AppliesToRole reports whether the rule's role scope admits role
func (r *PermissionRule) AppliesToRole(role string) bool {
	return len(r.AssignedRoles) == 0 || containsString(r.AssignedRoles, role)
}

// AppliesToUser reports whether the rule's user scope admits userID
func (r *PermissionRule) AppliesToUser(userID string) bool {
	return len(r.AssignedUsers) == 0 || containsString(r.AssignedUsers, userID)
}

// NormalizeActions moves actions flagged as else actions out of Actions and
// orders both lists by ActionSequence, keeping authored order for ties.
func (r *PermissionRule) NormalizeActions() {
	var then, otherwise []*RuleAction
	for _, a := range r.Actions {
		if a == nil {
			continue
		}
		if a.IsElseAction {
			otherwise = append(otherwise, a)
		} else {
			then = append(then, a)
		}
	}
	for _, a := range r.ElseActions {
		if a == nil {
			continue
		}
		otherwise = append(otherwise, a)
	}

	bySequence := func(list []*RuleAction) {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].ActionSequence < list[j].ActionSequence
		})
	}
	bySequence(then)
	bySequence(otherwise)

	r.Actions = then
	r.ElseActions = otherwise
}

// Clone returns a deep copy of the rule
func (r *PermissionRule) Clone() *PermissionRule {
	if r == nil {
		return nil
	}
	out := *r
	out.Conditions = cloneConditions(r.Conditions)
	out.Actions = cloneActions(r.Actions)
	out.ElseActions = cloneActions(r.ElseActions)
	out.AssignedRoles = cloneStrings(r.AssignedRoles)
	out.AssignedUsers = cloneStrings(r.AssignedUsers)
	return &out
}

// Clone returns a deep copy of the condition
func (c *RuleCondition) Clone() *RuleCondition {
	if c == nil {
		return nil
	}
	out := *c
	out.Value = CloneValue(c.Value)
	return &out
}

// Clone returns a deep copy of the action
func (a *RuleAction) Clone() *RuleAction {
	if a == nil {
		return nil
	}
	out := *a
	out.Permissions = cloneStrings(a.Permissions)
	return &out
}

func cloneConditions(in []*RuleCondition) []*RuleCondition {
	if in == nil {
		return nil
	}
	out := make([]*RuleCondition, 0, len(in))
	for _, c := range in {
		out = append(out, c.Clone())
	}
	return out
}

func cloneActions(in []*RuleAction) []*RuleAction {
	if in == nil {
		return nil
	}
	out := make([]*RuleAction, 0, len(in))
	for _, a := range in {
		out = append(out, a.Clone())
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// CloneValue deep-copies list and map literals used as condition values
func CloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case []string:
		return cloneStrings(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = CloneValue(item)
		}
		return out
	default:
		return v
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
