package policy

import (
	"reflect"

	"github.com/authz-engine/permission-rules/pkg/types"
)

// diffRules returns the before/after values of every field an update changed
func diffRules(before, after *types.PermissionRule) map[string]types.FieldChange {
	changes := make(map[string]types.FieldChange)

	record := func(field string, from, to interface{}) {
		if !reflect.DeepEqual(from, to) {
			changes[field] = types.FieldChange{From: from, To: to}
		}
	}

	record("name", before.Name, after.Name)
	record("description", before.Description, after.Description)
	record("status", before.Status, after.Status)
	record("priority", before.Priority, after.Priority)
	record("conditions", emptyAsNil(before.Conditions), emptyAsNil(after.Conditions))
	record("actions", emptyAsNil(before.Actions), emptyAsNil(after.Actions))
	record("elseActions", emptyAsNil(before.ElseActions), emptyAsNil(after.ElseActions))
	record("assignedRoles", emptyAsNil(before.AssignedRoles), emptyAsNil(after.AssignedRoles))
	record("assignedUsers", emptyAsNil(before.AssignedUsers), emptyAsNil(after.AssignedUsers))

	return changes
}

// emptyAsNil makes nil and empty slices compare equal
func emptyAsNil(v interface{}) interface{} {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Len() == 0 {
		return nil
	}
	return v
}
