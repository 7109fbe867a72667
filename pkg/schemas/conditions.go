package schemas

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
)

var conditionKeys = map[string][]string{
	"choice_equals": {"type", "property_name", "choice"},
	"user_equals":   {"type", "property_name", "user_id", "component_uuid"},
	"bool_equals":   {"type", "property_name", "value"},
	"object_equals": {"type", "property_name", "object_id", "component_uuid"},
	"any":           {"type", "conditions"},
	"all":           {"type", "conditions"},
	"not":           {"type", "condition"},
}

// ValidateConditionSchema checks a condition attached to the property
// propertyName of objectSchema. Conditions may only refer to sibling
// properties other than the property itself.
func ValidateConditionSchema(cond map[string]any, objectSchema map[string]any, propertyName string, path []string) error {
	t, _ := cond["type"].(string)
	keys, ok := conditionKeys[t]
	if !ok {
		return errorf(path, fmt.Sprintf("unknown condition type %v", cond["type"]))
	}
	for key := range cond {
		if !containsKey(keys, key) {
			return errorf(path, "unknown condition key "+quote(key))
		}
	}

	switch t {
	case "any", "all":
		subs, ok := cond["conditions"].([]any)
		if !ok {
			return errorf(path, t+" condition requires a list of conditions")
		}
		for i, s := range subs {
			sub, ok := s.(map[string]any)
			if !ok {
				return errorf(path, fmt.Sprintf("condition %d must be a mapping", i))
			}
			if err := ValidateConditionSchema(sub, objectSchema, propertyName, path); err != nil {
				return err
			}
		}
		return nil
	case "not":
		sub, ok := cond["condition"].(map[string]any)
		if !ok {
			return errorf(path, "not condition requires a condition")
		}
		return ValidateConditionSchema(sub, objectSchema, propertyName, path)
	}

	target, ok := cond["property_name"].(string)
	if !ok {
		return errorf(path, "condition requires a property_name")
	}
	if target == propertyName {
		return errorf(path, "a property cannot depend on itself")
	}
	props, _ := objectSchema["properties"].(map[string]any)
	targetSchema, ok := props[target].(map[string]any)
	if !ok {
		return errorf(path, "unknown condition property "+quote(target))
	}
	targetType, _ := targetSchema["type"].(string)

	switch t {
	case "choice_equals":
		choices, ok := targetSchema["choices"].([]any)
		if targetType != "text" || !ok {
			return errorf(path, "choice_equals requires a text property with choices")
		}
		choice, ok := cond["choice"]
		if !ok {
			return errorf(path, "choice_equals requires a choice")
		}
		for _, c := range choices {
			if localizedEqual(c, choice) {
				return nil
			}
		}
		return errorf(path, "unknown choice")
	case "user_equals":
		if targetType != "user" {
			return errorf(path, "user_equals requires a user property")
		}
		return validateOptionalID(cond, "user_id", path)
	case "bool_equals":
		if targetType != "bool" {
			return errorf(path, "bool_equals requires a bool property")
		}
		if _, ok := cond["value"].(bool); !ok {
			return errorf(path, "bool_equals requires a boolean value")
		}
	case "object_equals":
		if !isObjectReferenceType(targetType) {
			return errorf(path, "object_equals requires an object reference property")
		}
		return validateOptionalID(cond, "object_id", path)
	}
	return nil
}

// IsConditionFulfilled evaluates a condition against the data of the object
// containing the conditional property.
func IsConditionFulfilled(cond map[string]any, siblings map[string]any) bool {
	return isConditionFulfilled(cond, siblings, "")
}

// isConditionFulfilled treats references without a component_uuid, in the
// condition and in the data, as ids of the owner component. An empty owner
// is the local instance.
func isConditionFulfilled(cond map[string]any, siblings map[string]any, owner string) bool {
	t, _ := cond["type"].(string)
	switch t {
	case "any":
		subs, _ := cond["conditions"].([]any)
		for _, s := range subs {
			if sub, ok := s.(map[string]any); ok && isConditionFulfilled(sub, siblings, owner) {
				return true
			}
		}
		return false
	case "all":
		subs, _ := cond["conditions"].([]any)
		for _, s := range subs {
			if sub, ok := s.(map[string]any); !ok || !isConditionFulfilled(sub, siblings, owner) {
				return false
			}
		}
		return true
	case "not":
		sub, ok := cond["condition"].(map[string]any)
		return ok && !isConditionFulfilled(sub, siblings, owner)
	}

	name, _ := cond["property_name"].(string)
	value, _ := siblings[name].(map[string]any)

	switch t {
	case "choice_equals":
		return value != nil && localizedEqual(value["text"], cond["choice"])
	case "user_equals":
		return idEquals(value, cond, "user_id", owner)
	case "bool_equals":
		if value == nil {
			return false
		}
		got, ok := value["value"].(bool)
		want, _ := cond["value"].(bool)
		return ok && got == want
	case "object_equals":
		return idEquals(value, cond, "object_id", owner)
	}
	return false
}

// AreConditionsFulfilled reports whether every condition in the list holds.
// A missing or empty list is always fulfilled.
func AreConditionsFulfilled(conditions any, siblings map[string]any) bool {
	return areConditionsFulfilled(conditions, siblings, "")
}

func areConditionsFulfilled(conditions any, siblings map[string]any, owner string) bool {
	list, _ := conditions.([]any)
	for _, c := range list {
		cond, ok := c.(map[string]any)
		if !ok || !isConditionFulfilled(cond, siblings, owner) {
			return false
		}
	}
	return true
}

// idEquals compares a reference leaf with the id expected by cond. A nil
// expectation matches an unset reference. Both ids must belong to the same
// component.
func idEquals(value, cond map[string]any, key, owner string) bool {
	var got any
	if value != nil {
		got = value[key]
	}
	expected := cond[key]
	if expected == nil {
		return got == nil
	}
	if !strings.EqualFold(referenceComponent(value, owner), referenceComponent(cond, owner)) {
		return false
	}
	want, ok := Integer(expected)
	if !ok {
		return false
	}
	id, ok := Integer(got)
	return ok && id == want
}

func referenceComponent(m map[string]any, owner string) string {
	if u, ok := m["component_uuid"].(string); ok && u != "" {
		return u
	}
	return owner
}

func validateOptionalID(cond map[string]any, key string, path []string) error {
	v, ok := cond[key]
	if !ok {
		return errorf(path, "condition requires "+key)
	}
	if v == nil {
		return nil
	}
	if id, ok := Integer(v); !ok || id < 0 {
		return errorf(path, key+" must be a non-negative integer or null")
	}
	if c, ok := cond["component_uuid"]; ok {
		s, isString := c.(string)
		if !isString {
			return errorf(path, "component_uuid must be a string")
		}
		if _, err := uuid.Parse(s); err != nil {
			return errorf(path, "invalid component_uuid "+quote(s))
		}
	}
	return nil
}

func localizedEqual(a, b any) bool {
	return reflect.DeepEqual(normalizeLocalized(a), normalizeLocalized(b))
}

func normalizeLocalized(v any) any {
	if s, ok := v.(string); ok {
		return map[string]any{"en": s}
	}
	return v
}

func isObjectReferenceType(t string) bool {
	return t == "object_reference" || t == "sample" || t == "measurement"
}
