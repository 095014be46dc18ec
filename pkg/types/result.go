package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ReasonNoMatch is the reason carried by a decision when no rule matched
const ReasonNoMatch = "No matching rule found"

// EvaluationResult is the outcome of a permission evaluation
type EvaluationResult struct {
	Allowed            bool         `json:"allowed"`
	Reason             string       `json:"reason"`
	MatchedRule        string       `json:"matchedRule,omitempty"`
	MatchedRuleName    string       `json:"matchedRuleName,omitempty"`
	ElseBranch         bool         `json:"elseBranch,omitempty"`
	GrantedPermissions []string     `json:"grantedPermissions,omitempty"`
	Trace              []*RuleTrace `json:"trace,omitempty"`
	CacheHit           bool         `json:"cacheHit,omitempty"`
}

// HasPermission reports whether perm was granted by the decision
func (r *EvaluationResult) HasPermission(perm string) bool {
	return r.Allowed && containsString(r.GrantedPermissions, perm)
}

// Clone returns a copy safe to hand out from a cache
func (r *EvaluationResult) Clone() *EvaluationResult {
	if r == nil {
		return nil
	}
	out := *r
	out.GrantedPermissions = cloneStrings(r.GrantedPermissions)
	if r.Trace != nil {
		out.Trace = make([]*RuleTrace, len(r.Trace))
		for i, t := range r.Trace {
			tc := *t
			out.Trace[i] = &tc
		}
	}
	return &out
}

// TraceOutcome explains what happened to a candidate rule during evaluation
type TraceOutcome string

const (
	TraceRoleScope   TraceOutcome = "role_scope_excluded"
	TraceUserScope   TraceOutcome = "user_scope_excluded"
	TraceConditions  TraceOutcome = "conditions_false"
	TraceNoAction    TraceOutcome = "no_action_matched"
	TraceMatched     TraceOutcome = "matched"
	TraceMatchedElse TraceOutcome = "matched_else"
)

// RuleTrace records the evaluation of one candidate rule
type RuleTrace struct {
	RuleID   string       `json:"ruleId"`
	RuleName string       `json:"ruleName"`
	Priority int          `json:"priority"`
	Outcome  TraceOutcome `json:"outcome"`
}

// CacheKey returns a stable hash of the context for decision caching. It
// reports false when the context cannot be encoded (NaN, funcs or channels in
// an attribute map); such contexts must not be cached.
func (c *EvaluationContext) CacheKey() (string, bool) {
	// encoding/json sorts map keys, so equal contexts encode identically
	data, err := json.Marshal(c)
	if err != nil {
		return "", false
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16]), true
}
