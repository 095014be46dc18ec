package condition

import "github.com/authz-engine/permission-rules/pkg/types"

// Mode selects how a condition sequence is folded
type Mode string

const (
	// ModeFlat folds strictly left to right, ignoring group metadata
	ModeFlat Mode = "flat"
	// ModeGrouped folds each run of conditions sharing a group id first
	ModeGrouped Mode = "grouped"
)

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	return m == ModeFlat || m == ModeGrouped
}

// Fold reduces a rule's conditions to one boolean. Each condition after the
// first joins the accumulated result through its own logical operator, with
// no precedence: A AND B OR C is (A AND B) OR C. An empty list is true.
func Fold(conditions []*types.RuleCondition, ctx map[string]interface{}) bool {
	if len(conditions) == 0 {
		return true
	}

	acc := Evaluate(conditions[0], ctx)
	for _, c := range conditions[1:] {
		acc = join(acc, c.LogicalOperator, Evaluate(c, ctx))
	}
	return acc
}

// FoldGrouped is Fold with group metadata honoured. A contiguous run of
// conditions with the same non-empty ConditionGroupID is reduced with the
// group's GroupLogic, and that result joins the outer fold through the
// first member's LogicalOperator.
func FoldGrouped(conditions []*types.RuleCondition, ctx map[string]interface{}) bool {
	if len(conditions) == 0 {
		return true
	}

	var acc bool
	for i := 0; i < len(conditions); {
		head := conditions[i]
		end := i + 1
		if head.ConditionGroupID != "" {
			for end < len(conditions) && conditions[end].ConditionGroupID == head.ConditionGroupID {
				end++
			}
		}

		value := foldGroup(conditions[i:end], head.GroupLogic, ctx)
		if i == 0 {
			acc = value
		} else {
			acc = join(acc, head.LogicalOperator, value)
		}
		i = end
	}
	return acc
}

// FoldWith dispatches on mode; unknown modes fold flat
func FoldWith(mode Mode, conditions []*types.RuleCondition, ctx map[string]interface{}) bool {
	if mode == ModeGrouped {
		return FoldGrouped(conditions, ctx)
	}
	return Fold(conditions, ctx)
}

func foldGroup(group []*types.RuleCondition, logic types.LogicalOperator, ctx map[string]interface{}) bool {
	acc := Evaluate(group[0], ctx)
	for _, c := range group[1:] {
		acc = join(acc, logic, Evaluate(c, ctx))
	}
	return acc
}

func join(acc bool, op types.LogicalOperator, value bool) bool {
	if op == types.LogicOr {
		return acc || value
	}
	return acc && value
}
