// Package condition resolves field paths and evaluates rule conditions
package condition

import "strings"

// Resolve walks a dotted path through nested maps and returns the value at the
// end of it. Missing segments and non-indexable intermediate values yield nil.
func Resolve(path string, ctx map[string]interface{}) interface{} {
	if path == "" || ctx == nil {
		return nil
	}

	var current interface{} = ctx
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			v, ok := node[segment]
			if !ok {
				return nil
			}
			current = v
		case map[string]string:
			v, ok := node[segment]
			if !ok {
				return nil
			}
			current = v
		default:
			return nil
		}
	}
	return current
}
