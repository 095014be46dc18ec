package types

// RuleBody is a rule without identity or timestamps, as embedded in a template
type RuleBody struct {
	Name          string           `json:"name" yaml:"name"`
	Description   string           `json:"description,omitempty" yaml:"description,omitempty"`
	Priority      int              `json:"priority" yaml:"priority"`
	Conditions    []*RuleCondition `json:"conditions" yaml:"conditions"`
	Actions       []*RuleAction    `json:"actions" yaml:"actions"`
	ElseActions   []*RuleAction    `json:"elseActions,omitempty" yaml:"elseActions,omitempty"`
	AssignedRoles []string         `json:"assignedRoles,omitempty" yaml:"assignedRoles,omitempty"`
	AssignedUsers []string         `json:"assignedUsers,omitempty" yaml:"assignedUsers,omitempty"`
}

// PermissionTemplate is a named, reusable seed for a rule
type PermissionTemplate struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string   `json:"category" yaml:"category"`
	Rule        RuleBody `json:"rule" yaml:"rule"`
	UsageCount  int      `json:"usageCount" yaml:"usageCount,omitempty"`
	IsSystem    bool     `json:"isSystem" yaml:"isSystem,omitempty"`
}

// ToRule builds a fresh rule from the body
func (b *RuleBody) ToRule() *PermissionRule {
	r := &PermissionRule{
		Name:          b.Name,
		Description:   b.Description,
		Priority:      b.Priority,
		Conditions:    b.Conditions,
		Actions:       b.Actions,
		ElseActions:   b.ElseActions,
		AssignedRoles: b.AssignedRoles,
		AssignedUsers: b.AssignedUsers,
	}
	return r.Clone()
}

// BodyOf extracts the template body of a rule
func BodyOf(r *PermissionRule) RuleBody {
	c := r.Clone()
	return RuleBody{
		Name:          c.Name,
		Description:   c.Description,
		Priority:      c.Priority,
		Conditions:    c.Conditions,
		Actions:       c.Actions,
		ElseActions:   c.ElseActions,
		AssignedRoles: c.AssignedRoles,
		AssignedUsers: c.AssignedUsers,
	}
}

// Clone returns a deep copy of the template
func (t *PermissionTemplate) Clone() *PermissionTemplate {
	if t == nil {
		return nil
	}
	out := *t
	out.Rule = BodyOf(t.Rule.ToRule())
	return &out
}
