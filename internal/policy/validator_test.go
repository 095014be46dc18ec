package policy

import (
	"errors"
	"strings"
	"testing"

	"github.com/authz-engine/permission-rules/pkg/types"
)

func TestValidateRule(t *testing.T) {
	valid := func() *types.PermissionRule { return adminFileRule("valid", 1) }

	tests := []struct {
		name      string
		mutate    func(r *types.PermissionRule)
		wantField string
	}{
		{name: "valid rule", mutate: func(r *types.PermissionRule) {}},
		{name: "missing name", mutate: func(r *types.PermissionRule) { r.Name = "  " }, wantField: "name"},
		{name: "unknown status", mutate: func(r *types.PermissionRule) { r.Status = "archived" }, wantField: "status"},
		{
			name:      "missing field path",
			mutate:    func(r *types.PermissionRule) { r.Conditions[0].Field = "" },
			wantField: "conditions[0].field",
		},
		{
			name:      "unknown operator",
			mutate:    func(r *types.PermissionRule) { r.Conditions[0].Operator = "regex" },
			wantField: "conditions[0].operator",
		},
		{
			name:      "bad logical operator",
			mutate:    func(r *types.PermissionRule) { r.Conditions[0].LogicalOperator = "XOR" },
			wantField: "conditions[0].logicalOperator",
		},
		{
			name: "in needs a list",
			mutate: func(r *types.PermissionRule) {
				r.Conditions[0].Operator = types.OpIn
				r.Conditions[0].Value = "admin"
			},
			wantField: "conditions[0].value",
		},
		{
			name: "in with a list",
			mutate: func(r *types.PermissionRule) {
				r.Conditions[0].Operator = types.OpIn
				r.Conditions[0].Value = []interface{}{"admin", "project_manager"}
			},
		},
		{
			name: "in with a numeric list",
			mutate: func(r *types.PermissionRule) {
				r.Conditions[0].Field = "invoice.amount"
				r.Conditions[0].Operator = types.OpIn
				r.Conditions[0].Value = []int{100, 200}
			},
		},
		{
			name: "not_in with a float list",
			mutate: func(r *types.PermissionRule) {
				r.Conditions[0].Field = "invoice.amount"
				r.Conditions[0].Operator = types.OpNotIn
				r.Conditions[0].Value = []float64{0.5}
			},
		},
		{
			name: "in with a map",
			mutate: func(r *types.PermissionRule) {
				r.Conditions[0].Operator = types.OpIn
				r.Conditions[0].Value = map[string]interface{}{"admin": true}
			},
			wantField: "conditions[0].value",
		},
		{
			name:      "unknown action type",
			mutate:    func(r *types.PermissionRule) { r.Actions[0].Type = "escalate" },
			wantField: "actions[0].type",
		},
		{
			name:      "unknown target",
			mutate:    func(r *types.PermissionRule) { r.Actions[0].Target = "everyone" },
			wantField: "actions[0].target",
		},
		{
			name:      "allow without permissions",
			mutate:    func(r *types.PermissionRule) { r.Actions[0].Permissions = nil },
			wantField: "actions[0].permissions",
		},
		{
			name: "deny without permissions",
			mutate: func(r *types.PermissionRule) {
				r.Actions[0].Type = types.ActionDeny
				r.Actions[0].Permissions = nil
			},
		},
		{
			name: "invalid else action",
			mutate: func(r *types.PermissionRule) {
				r.ElseActions = []*types.RuleAction{{Type: types.ActionGrantAccess, Target: types.TargetRole}}
			},
			wantField: "elseActions[0].permissions",
		},
		{
			name: "active without conditions",
			mutate: func(r *types.PermissionRule) {
				r.Status = types.StatusActive
				r.Conditions = nil
			},
			wantField: "conditions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := valid()
			tt.mutate(rule)

			err := ValidateRule(rule)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, verr.Field)
			}
			if !errors.Is(err, ErrValidation) {
				t.Error("expected error to match ErrValidation")
			}
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := ValidateActivation(&types.PermissionRule{Name: "Empty"})
	if err == nil {
		t.Fatal("expected activation error")
	}
	if !strings.Contains(err.Error(), `rule "Empty" needs at least one condition`) {
		t.Errorf("unexpected message: %s", err)
	}
}

func TestDiffRules(t *testing.T) {
	before := adminFileRule("a", 1)
	after := before.Clone()
	after.AssignedRoles = []string{}
	after.Description = "now described"

	changes := diffRules(before, after)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %v", changes)
	}
	if changes["description"].To != "now described" {
		t.Errorf("unexpected description change: %+v", changes["description"])
	}

	after.Conditions[0].Value = "client"
	changes = diffRules(before, after)
	if _, ok := changes["conditions"]; !ok {
		t.Error("expected nested condition change to be detected")
	}
}
