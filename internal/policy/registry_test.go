package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authz-engine/permission-rules/internal/audit"
	"github.com/authz-engine/permission-rules/pkg/types"
)

var admin = types.Actor{ID: "admin-1", Name: "Admin"}

func adminFileRule(name string, priority int) *types.PermissionRule {
	return &types.PermissionRule{
		Name:     name,
		Priority: priority,
		Conditions: []*types.RuleCondition{
			{Field: "user.role", Operator: types.OpEquals, Value: "admin"},
		},
		Actions: []*types.RuleAction{
			{
				Type:        types.ActionAllow,
				Target:      types.TargetAnyUser,
				EntityType:  types.EntityFile,
				Permissions: []string{types.PermView, types.PermEdit},
			},
		},
	}
}

// memoryPersister records persistence hook calls
type memoryPersister struct {
	mu        sync.Mutex
	persisted map[string]*types.PermissionRule
	deleted   []string
	fail      bool
}

func newMemoryPersister() *memoryPersister {
	return &memoryPersister{persisted: make(map[string]*types.PermissionRule)}
}

func (p *memoryPersister) LoadAllRules(ctx context.Context) ([]*types.PermissionRule, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*types.PermissionRule
	for _, r := range p.persisted {
		out = append(out, r)
	}
	return out, nil
}

func (p *memoryPersister) Persist(ctx context.Context, rule *types.PermissionRule) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("disk full")
	}
	p.persisted[rule.ID] = rule
	return nil
}

func (p *memoryPersister) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("disk full")
	}
	delete(p.persisted, id)
	p.deleted = append(p.deleted, id)
	return nil
}

func TestRegistry_Add(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	rule, err := r.Add(ctx, admin, adminFileRule("Admin files", 100))
	require.NoError(t, err)

	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, types.StatusDraft, rule.Status)
	assert.Equal(t, "admin-1", rule.CreatedBy)
	assert.Equal(t, "admin-1", rule.LastModifiedBy)
	assert.False(t, rule.CreatedAt.IsZero())
	assert.Equal(t, rule.CreatedAt, rule.UpdatedAt)
	assert.Equal(t, 1, r.Count())

	entries := r.AuditLog().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, types.AuditCreate, entries[0].Action)
	assert.Equal(t, rule.ID, entries[0].RuleID)
	assert.Equal(t, "Admin", entries[0].UserName)
}

func TestRegistry_AddRejectsInvalidRules(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	bad := adminFileRule("Bad", 1)
	bad.Conditions[0].Operator = "matches"

	_, err := r.Add(ctx, admin, bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "conditions[0].operator", verr.Field)

	assert.Zero(t, r.Count())
	assert.Zero(t, r.AuditLog().Len(), "failed mutations are not audited")
}

func TestRegistry_AddDuplicateID(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	rule := adminFileRule("Seeded", 1)
	rule.ID = "rule-seed"
	_, err := r.Add(ctx, admin, rule)
	require.NoError(t, err)

	_, err = r.Add(ctx, admin, rule)
	assert.ErrorIs(t, err, ErrRuleExists)
}

func TestRegistry_AddNormalizesCombinedActions(t *testing.T) {
	r := NewRegistry(nil, nil)

	rule := adminFileRule("Combined", 1)
	rule.Actions = []*types.RuleAction{
		{Type: types.ActionDeny, Target: types.TargetAnyUser, ActionSequence: 2, IsElseAction: true},
		{Type: types.ActionAllow, Target: types.TargetAnyUser, Permissions: []string{"edit"}, ActionSequence: 2},
		{Type: types.ActionAllow, Target: types.TargetAnyUser, Permissions: []string{"view"}, ActionSequence: 1},
	}

	added, err := r.Add(context.Background(), admin, rule)
	require.NoError(t, err)

	require.Len(t, added.Actions, 2)
	assert.Equal(t, []string{"view"}, added.Actions[0].Permissions)
	assert.Equal(t, []string{"edit"}, added.Actions[1].Permissions)
	require.Len(t, added.ElseActions, 1)
	assert.Equal(t, types.ActionDeny, added.ElseActions[0].Type)
}

func TestRegistry_AddLeavesExplicitElseActionsUnchanged(t *testing.T) {
	r := NewRegistry(nil, nil)

	elseActions := []*types.RuleAction{
		{Type: types.ActionDeny, Target: types.TargetAnyUser, EntityType: types.EntityFile},
	}
	rule := adminFileRule("Explicit else", 1)
	rule.ElseActions = elseActions

	added, err := r.Add(context.Background(), admin, rule)
	require.NoError(t, err)
	assert.Equal(t, elseActions, added.ElseActions)
	assert.False(t, added.ElseActions[0].IsElseAction)
}

func TestRegistry_Update(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	rule, err := r.Add(ctx, admin, adminFileRule("Admin files", 100))
	require.NoError(t, err)

	name := "Admin file access"
	priority := 200
	editor := types.Actor{ID: "admin-2", Name: "Editor"}
	updated, err := r.Update(ctx, editor, rule.ID, RulePatch{Name: &name, Priority: &priority})
	require.NoError(t, err)

	assert.Equal(t, name, updated.Name)
	assert.Equal(t, 200, updated.Priority)
	assert.Equal(t, "admin-2", updated.LastModifiedBy)
	assert.Equal(t, "admin-1", updated.CreatedBy)
	assert.False(t, updated.UpdatedAt.Before(rule.UpdatedAt))

	entries := r.AuditLog().Query(audit.Filter{Actions: []types.AuditAction{types.AuditUpdate}})
	require.Len(t, entries, 1)
	changes := entries[0].Changes
	assert.Len(t, changes, 2, "only changed fields are recorded")
	assert.Equal(t, types.FieldChange{From: "Admin files", To: name}, changes["name"])
	assert.Equal(t, types.FieldChange{From: 100, To: 200}, changes["priority"])
}

func TestRegistry_UpdateToActiveEnforcesInvariant(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	rule, err := r.Add(ctx, admin, &types.PermissionRule{Name: "Empty"})
	require.NoError(t, err)

	active := types.StatusActive
	_, err = r.Update(ctx, admin, rule.ID, RulePatch{Status: &active})
	assert.ErrorIs(t, err, ErrValidation)

	got, err := r.Get(rule.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDraft, got.Status)
}

func TestRegistry_UpdateActiveRuleCannotDropConditions(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	rule, err := r.Add(ctx, admin, adminFileRule("Admin files", 100))
	require.NoError(t, err)
	_, err = r.Activate(ctx, admin, rule.ID)
	require.NoError(t, err)

	_, err = r.Update(ctx, admin, rule.ID, RulePatch{Conditions: []*types.RuleCondition{}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRegistry_NotFound(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrRuleNotFound)

	_, err = r.Update(ctx, admin, "missing", RulePatch{})
	assert.ErrorIs(t, err, ErrRuleNotFound)

	assert.ErrorIs(t, r.Remove(ctx, admin, "missing"), ErrRuleNotFound)

	_, err = r.Activate(ctx, admin, "missing")
	assert.ErrorIs(t, err, ErrRuleNotFound)

	_, err = r.Deactivate(ctx, admin, "missing")
	assert.ErrorIs(t, err, ErrRuleNotFound)

	_, err = r.Duplicate(ctx, admin, "missing")
	assert.ErrorIs(t, err, ErrRuleNotFound)

	assert.Zero(t, r.AuditLog().Len())
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	rule, err := r.Add(ctx, admin, adminFileRule("Admin files", 100))
	require.NoError(t, err)
	assert.Empty(t, r.ActiveRules())

	activated, err := r.Activate(ctx, admin, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, activated.Status)
	assert.Len(t, r.ActiveRules(), 1)

	deactivated, err := r.Deactivate(ctx, admin, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInactive, deactivated.Status)
	assert.Empty(t, r.ActiveRules())

	_, err = r.Activate(ctx, admin, rule.ID)
	require.NoError(t, err)

	require.NoError(t, r.Remove(ctx, admin, rule.ID))
	assert.Zero(t, r.Count())
	assert.Empty(t, r.ActiveRules())

	var actions []types.AuditAction
	for _, e := range r.AuditLog().Entries() {
		assert.Equal(t, rule.ID, e.RuleID)
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []types.AuditAction{
		types.AuditCreate,
		types.AuditActivate,
		types.AuditDeactivate,
		types.AuditActivate,
		types.AuditDelete,
	}, actions, "one entry per mutation and history survives deletion")
}

func TestRegistry_ActivateRequiresConditionsAndActions(t *testing.T) {
	tests := []struct {
		name  string
		rule  *types.PermissionRule
		field string
	}{
		{
			name:  "no conditions",
			rule:  &types.PermissionRule{Name: "No conditions", Actions: adminFileRule("x", 1).Actions},
			field: "conditions",
		},
		{
			name:  "no actions",
			rule:  &types.PermissionRule{Name: "No actions", Conditions: adminFileRule("x", 1).Conditions},
			field: "actions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(nil, nil)
			ctx := context.Background()

			rule, err := r.Add(ctx, admin, tt.rule)
			require.NoError(t, err)

			_, err = r.Activate(ctx, admin, rule.ID)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)

			got, _ := r.Get(rule.ID)
			assert.Equal(t, types.StatusDraft, got.Status)
			assert.Equal(t, 1, r.AuditLog().Len())
		})
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	original, err := r.Add(ctx, admin, adminFileRule("Admin files", 100))
	require.NoError(t, err)
	_, err = r.Activate(ctx, admin, original.ID)
	require.NoError(t, err)

	copied, err := r.Duplicate(ctx, types.Actor{ID: "admin-2"}, original.ID)
	require.NoError(t, err)

	assert.NotEqual(t, original.ID, copied.ID)
	assert.Equal(t, "Admin files (Copy)", copied.Name)
	assert.Equal(t, types.StatusDraft, copied.Status)
	assert.Equal(t, "admin-2", copied.CreatedBy)
	assert.Equal(t, original.Conditions, copied.Conditions)
	assert.Equal(t, original.Actions, copied.Actions)

	after, err := r.Get(original.ID)
	require.NoError(t, err)
	assert.Equal(t, "Admin files", after.Name)
	assert.Equal(t, types.StatusActive, after.Status)

	last := r.AuditLog().Entries()[r.AuditLog().Len()-1]
	assert.Equal(t, types.AuditCreate, last.Action)
	assert.Equal(t, copied.ID, last.RuleID)
}

func TestRegistry_ActiveRulesOrder(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	add := func(name string, priority int) string {
		rule, err := r.Add(ctx, admin, adminFileRule(name, priority))
		require.NoError(t, err)
		_, err = r.Activate(ctx, admin, rule.ID)
		require.NoError(t, err)
		return rule.ID
	}

	add("low", 10)
	add("high-a", 100)
	add("mid", 50)
	add("high-b", 100)

	var names []string
	for _, rule := range r.ActiveRules() {
		names = append(names, rule.Name)
	}
	assert.Equal(t, []string{"high-a", "high-b", "mid", "low"}, names, "ties keep insertion order")
}

func TestRegistry_RoleAndUserScopes(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	add := func(name string, roles, users []string) {
		rule := adminFileRule(name, 1)
		rule.AssignedRoles = roles
		rule.AssignedUsers = users
		rule.Status = types.StatusActive
		_, err := r.Add(ctx, admin, rule)
		require.NoError(t, err)
	}

	add("everyone", nil, nil)
	add("admins", []string{"admin"}, nil)
	add("alice", nil, []string{"user-alice"})

	draft := adminFileRule("draft for admins", 1)
	draft.AssignedRoles = []string{"admin"}
	_, err := r.Add(ctx, admin, draft)
	require.NoError(t, err)

	names := func(rules []*types.PermissionRule) []string {
		var out []string
		for _, rule := range rules {
			out = append(out, rule.Name)
		}
		return out
	}

	assert.Equal(t, []string{"everyone", "admins", "alice"}, names(r.GetRulesForRole("admin")))
	assert.Equal(t, []string{"everyone", "alice"}, names(r.GetRulesForRole("client")))
	assert.Equal(t, []string{"everyone", "admins", "alice"}, names(r.GetRulesForUser("user-alice")))
	assert.Equal(t, []string{"everyone", "admins"}, names(r.GetRulesForUser("user-bob")))
}

func TestRegistry_ListAndStatus(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	a, _ := r.Add(ctx, admin, adminFileRule("a", 1))
	_, _ = r.Add(ctx, admin, adminFileRule("b", 1))
	_, err := r.Activate(ctx, admin, a.ID)
	require.NoError(t, err)

	all := r.List()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name)
	assert.Len(t, r.ListByStatus(types.StatusActive), 1)
	assert.Len(t, r.ListByStatus(types.StatusDraft), 1)
	assert.Empty(t, r.ListByStatus(types.StatusInactive))
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	r := NewRegistry(nil, nil)
	rule, err := r.Add(context.Background(), admin, adminFileRule("a", 1))
	require.NoError(t, err)

	rule.Name = "mutated"
	rule.Conditions[0].Value = "client"

	got, err := r.Get(rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, "admin", got.Conditions[0].Value)
}

func TestRegistry_GenerationChangesOnMutation(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	g0 := r.Generation()
	rule, _ := r.Add(ctx, admin, adminFileRule("a", 1))
	g1 := r.Generation()
	_, _ = r.Activate(ctx, admin, rule.ID)
	g2 := r.Generation()
	_, _ = r.Get(rule.ID)

	assert.Greater(t, g1, g0)
	assert.Greater(t, g2, g1)
	assert.Equal(t, g2, r.Generation(), "reads do not change the generation")
}

func TestRegistry_PersistenceHooks(t *testing.T) {
	r := NewRegistry(nil, nil)
	p := newMemoryPersister()
	r.SetPersister(p)
	ctx := context.Background()

	rule, err := r.Add(ctx, admin, adminFileRule("a", 1))
	require.NoError(t, err)
	_, err = r.Activate(ctx, admin, rule.ID)
	require.NoError(t, err)

	require.Contains(t, p.persisted, rule.ID)
	assert.Equal(t, types.StatusActive, p.persisted[rule.ID].Status)

	require.NoError(t, r.Remove(ctx, admin, rule.ID))
	assert.NotContains(t, p.persisted, rule.ID)
	assert.Equal(t, []string{rule.ID}, p.deleted)
}

func TestRegistry_PersistenceFailureDoesNotFailMutation(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.SetPersister(&memoryPersister{persisted: map[string]*types.PermissionRule{}, fail: true})
	ctx := context.Background()

	rule, err := r.Add(ctx, admin, adminFileRule("a", 1))
	require.NoError(t, err)
	require.NoError(t, r.Remove(ctx, admin, rule.ID))
	assert.Equal(t, 2, r.AuditLog().Len())
}

func TestRegistry_Restore(t *testing.T) {
	r := NewRegistry(nil, nil)

	stored := adminFileRule("stored", 5)
	stored.ID = "rule-1"
	stored.Status = types.StatusActive
	draft := adminFileRule("draft", 9)
	draft.ID = "rule-2"
	draft.Status = types.StatusDraft

	require.NoError(t, r.Restore([]*types.PermissionRule{stored, draft}))

	assert.Equal(t, 2, r.Count())
	require.Len(t, r.ActiveRules(), 1)
	assert.Equal(t, "rule-1", r.ActiveRules()[0].ID)
	assert.Zero(t, r.AuditLog().Len(), "restore is not audited")

	assert.ErrorIs(t, r.Restore([]*types.PermissionRule{{Name: "no id"}}), ErrValidation)
}

func TestRegistry_AuditCap(t *testing.T) {
	r := NewRegistry(audit.NewInMemory(audit.DefaultCapacity), nil)
	ctx := context.Background()

	rule, err := r.Add(ctx, admin, adminFileRule("a", 1))
	require.NoError(t, err)

	for i := 0; i < audit.DefaultCapacity+10; i++ {
		p := i
		_, err := r.Update(ctx, admin, rule.ID, RulePatch{Priority: &p})
		require.NoError(t, err)
	}

	entries := r.AuditLog().Entries()
	require.Len(t, entries, audit.DefaultCapacity)
	assert.Equal(t, types.AuditUpdate, entries[0].Action, "create entry was evicted")
	assert.Equal(t, uint64(11), r.AuditLog().Evicted())
}

func TestRegistry_ConcurrentMutationsAndReads(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				rule := adminFileRule(fmt.Sprintf("rule-%d-%d", n, j), j)
				rule.Status = types.StatusActive
				added, err := r.Add(ctx, admin, rule)
				if err != nil {
					t.Error(err)
					return
				}
				if j%2 == 0 {
					_, _ = r.Deactivate(ctx, admin, added.ID)
				}
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				for _, rule := range r.ActiveRules() {
					if !rule.IsActive() {
						t.Error("snapshot holds an inactive rule")
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, r.Count())
	assert.Len(t, r.ActiveRules(), 8*12)
	assert.Equal(t, 200+8*13, r.AuditLog().Len())
}

func TestRegistry_FingerprintTracksActiveSnapshot(t *testing.T) {
	ctx := context.Background()
	rule := adminFileRule("a", 1)
	rule.ID = "rule-a"
	rule.Status = types.StatusActive

	first := NewRegistry(nil, nil)
	second := NewRegistry(nil, nil)
	assert.Equal(t, first.Fingerprint(), second.Fingerprint(), "empty registries agree")

	require.NoError(t, first.Restore([]*types.PermissionRule{rule}))
	require.NoError(t, second.Restore([]*types.PermissionRule{rule}))
	assert.Equal(t, first.Fingerprint(), second.Fingerprint(), "same rules, same fingerprint")

	before := first.Fingerprint()
	_, err := first.Deactivate(ctx, admin, "rule-a")
	require.NoError(t, err)
	assert.NotEqual(t, before, first.Fingerprint())
	assert.NotEqual(t, first.Fingerprint(), second.Fingerprint())

	// Drafts are not evaluated and leave the fingerprint alone
	after := second.Fingerprint()
	_, err = second.Add(ctx, admin, adminFileRule("draft", 5))
	require.NoError(t, err)
	assert.Equal(t, after, second.Fingerprint())
}
