package engine

import (
	"fmt"

	"github.com/authz-engine/permission-rules/pkg/types"
)

// Reason formats
const (
	reasonMatched     = "Matched rule: %s"
	reasonMatchedElse = "Matched else branch of rule: %s"
)

// Matches reports whether an action applies to the requested entity and user.
// Unset entityType/entityId match anything; a specific_user target with a
// targetId only matches that user.
func Matches(action *types.RuleAction, ctx *types.EvaluationContext) bool {
	if action == nil {
		return false
	}
	if action.EntityType != "" && action.EntityType != ctx.Entity.Type {
		return false
	}
	if action.EntityID != "" && action.EntityID != ctx.Entity.ID {
		return false
	}
	if action.Target == types.TargetSpecificUser && action.TargetID != "" && action.TargetID != ctx.User.ID {
		return false
	}
	return true
}

// FirstMatch returns the first action in order that matches ctx, or nil
func FirstMatch(actions []*types.RuleAction, ctx *types.EvaluationContext) *types.RuleAction {
	for _, action := range actions {
		if Matches(action, ctx) {
			return action
		}
	}
	return nil
}

// Decide builds the decision of a matched action. allow, setFileVisibility and
// grantAccess grant; every other type denies.
func Decide(rule *types.PermissionRule, action *types.RuleAction, elseBranch bool) *types.EvaluationResult {
	reason := fmt.Sprintf(reasonMatched, rule.Name)
	if elseBranch {
		reason = fmt.Sprintf(reasonMatchedElse, rule.Name)
	}

	var granted []string
	if len(action.Permissions) > 0 {
		granted = append([]string(nil), action.Permissions...)
	}

	return &types.EvaluationResult{
		Allowed:            action.Type.Grants(),
		Reason:             reason,
		MatchedRule:        rule.ID,
		MatchedRuleName:    rule.Name,
		ElseBranch:         elseBranch,
		GrantedPermissions: granted,
	}
}
