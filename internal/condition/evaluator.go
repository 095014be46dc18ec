package condition

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/authz-engine/permission-rules/pkg/types"
)

// Evaluate evaluates one condition against a context map. It never fails:
// malformed conditions and missing fields degrade to a conservative result.
func Evaluate(c *types.RuleCondition, ctx map[string]interface{}) bool {
	if c == nil {
		return false
	}
	field := Resolve(c.Field, ctx)

	if field == nil {
		switch c.Operator {
		case types.OpNotEquals:
			return c.Value != nil
		case types.OpIsEmpty:
			return true
		default:
			return false
		}
	}

	switch c.Operator {
	case types.OpEquals:
		return Equal(field, c.Value)
	case types.OpNotEquals:
		return !Equal(field, c.Value)

	case types.OpContains:
		return contains(field, c.Value)
	case types.OpNotContains:
		return !contains(field, c.Value)
	case types.OpStartsWith:
		return c.Value != nil && strings.HasPrefix(Stringify(field), Stringify(c.Value))
	case types.OpEndsWith:
		return c.Value != nil && strings.HasSuffix(Stringify(field), Stringify(c.Value))

	case types.OpIn:
		list, ok := AsList(c.Value)
		if !ok {
			return false
		}
		return member(list, field)
	case types.OpNotIn:
		list, ok := AsList(c.Value)
		if !ok {
			return true
		}
		return !member(list, field)

	case types.OpGreaterThan:
		return compare(field, c.Value, func(a, b float64) bool { return a > b })
	case types.OpLessThan:
		return compare(field, c.Value, func(a, b float64) bool { return a < b })
	case types.OpGreaterThanOrEqual:
		return compare(field, c.Value, func(a, b float64) bool { return a >= b })
	case types.OpLessThanOrEqual:
		return compare(field, c.Value, func(a, b float64) bool { return a <= b })

	case types.OpIsEmpty:
		return IsEmpty(field)
	case types.OpIsNotEmpty:
		return !IsEmpty(field)
	}

	return false
}

// Equal compares two values strictly. Numbers compare by value regardless of
// their Go representation; everything else must match in kind and value.
func Equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, ok := numeric(a); ok {
		nb, ok := numeric(b)
		return ok && na == nb
	}
	if _, ok := numeric(b); ok {
		return false
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return reflect.DeepEqual(a, b)
}

// Stringify renders a value the way string operators see it
func Stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = Stringify(item)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(val, ",")
	}
	return fmt.Sprint(v)
}

// AsList returns v as a list if it is one
func AsList(v interface{}) ([]interface{}, bool) {
	switch val := v.(type) {
	case []interface{}:
		return val, true
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]interface{}, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

// IsEmpty reports whether v is nil, a blank string or an empty collection
func IsEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case map[string]interface{}:
		return len(val) == 0
	}
	if list, ok := AsList(v); ok {
		return len(list) == 0
	}
	return false
}

// ToNumber coerces a value to a float64 the way numeric operators do.
// Non-numeric strings, booleans and collections fail.
func ToNumber(v interface{}) (float64, bool) {
	if n, ok := numeric(v); ok {
		return n, !math.IsNaN(n)
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(n) {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func compare(field, value interface{}, cmp func(a, b float64) bool) bool {
	a, ok := ToNumber(field)
	if !ok {
		return false
	}
	b, ok := ToNumber(value)
	if !ok {
		return false
	}
	return cmp(a, b)
}

func contains(field, value interface{}) bool {
	if value == nil {
		return false
	}
	if list, ok := AsList(field); ok {
		return member(list, value)
	}
	return strings.Contains(Stringify(field), Stringify(value))
}

func member(list []interface{}, v interface{}) bool {
	for _, item := range list {
		if Equal(item, v) {
			return true
		}
	}
	return false
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
