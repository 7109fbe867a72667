package schemas

import (
	"fmt"
	"regexp"
	"time"
)

// DatetimeLayout is the layout of datetime leaf values.
const DatetimeLayout = "2006-01-02 15:04:05"

var commonKeys = []string{"type", "title", "note", "conditions", "may_copy", "tooltip", "style"}

var typeKeys = map[string][]string{
	"object":           {"properties", "required", "propertyOrder", "displayProperties", "batch", "batch_name_format", "default"},
	"array":            {"items", "minItems", "maxItems", "default"},
	"text":             {"default", "minLength", "maxLength", "choices", "pattern", "markdown", "multiline", "placeholder", "languages"},
	"bool":             {"default"},
	"quantity":         {"units", "default", "placeholder", "display_digits", "min_magnitude", "max_magnitude"},
	"datetime":         {"default"},
	"user":             {"default"},
	"object_reference": {"action_type_id", "action_id"},
	"sample":           {},
	"measurement":      {},
	"tags":             {"default"},
	"hazards":          {},
	"timeseries":       {"units", "display_digits"},
	"plotly_chart":     {},
	"file":             {"extensions", "preview"},
}

// IsKnownType reports whether t is a supported schema type tag.
func IsKnownType(t string) bool {
	_, ok := typeKeys[t]
	return ok
}

// ValidateSchema checks a top-level object schema. The top level must be an
// object with a title and a required text property "name".
func ValidateSchema(schema map[string]any) error {
	if schema == nil {
		return errorf(nil, "schema must be a mapping")
	}
	if t, _ := schema["type"].(string); t != "object" {
		return errorf(nil, "top-level schema must be of type object")
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return errorf(nil, "top-level schema must define properties")
	}
	name, ok := props["name"].(map[string]any)
	if !ok {
		return errorf([]string{"name"}, "top-level schema must define a name property")
	}
	if t, _ := name["type"].(string); t != "text" {
		return errorf([]string{"name"}, "name property must be of type text")
	}
	if !containsString(schema["required"], "name") {
		return errorf(nil, "name must be a required property")
	}
	return ValidateSubSchema(schema, nil)
}

// ValidateSubSchema checks any schema node and everything below it.
func ValidateSubSchema(schema map[string]any, path []string) error {
	return walk(&Node{Path: path, Schema: schema}, Callbacks{"*": validateSchemaNode})
}

func validateSchemaNode(n *Node) error {
	s := n.Schema
	rawType, present := s["type"]
	if !present {
		return errorf(n.Path, "missing type")
	}
	t, ok := rawType.(string)
	if !ok || !IsKnownType(t) {
		return errorf(n.Path, fmt.Sprintf("invalid type %v", rawType))
	}
	if err := checkKeys(s, n.Path, typeKeys[t]); err != nil {
		return err
	}
	title, ok := s["title"]
	if !ok {
		return errorf(n.Path, "missing title")
	}
	if err := validateLocalized(title, appendPath(n.Path, "title"), true); err != nil {
		return err
	}
	if note, ok := s["note"]; ok {
		if err := validateLocalized(note, appendPath(n.Path, "note"), false); err != nil {
			return err
		}
	}

	switch t {
	case "object":
		return validateObjectSchema(n)
	case "array":
		return validateArraySchema(n)
	case "text":
		return validateTextSchema(n)
	case "bool":
		if d, ok := s["default"]; ok {
			if _, ok := d.(bool); !ok {
				return errorf(appendPath(n.Path, "default"), "default must be a boolean")
			}
		}
	case "quantity", "timeseries":
		if err := validateUnits(s["units"], appendPath(n.Path, "units")); err != nil {
			return err
		}
		if d, ok := s["default"]; ok {
			if _, ok := Number(d); !ok {
				return errorf(appendPath(n.Path, "default"), "default must be a number")
			}
		}
	case "datetime":
		if d, ok := s["default"]; ok {
			str, ok := d.(string)
			if !ok {
				return errorf(appendPath(n.Path, "default"), "default must be a datetime string")
			}
			if _, err := time.Parse(DatetimeLayout, str); err != nil {
				return errorf(appendPath(n.Path, "default"), "invalid datetime default")
			}
		}
	case "object_reference":
		for _, key := range []string{"action_type_id", "action_id"} {
			if v, ok := s[key]; ok && v != nil {
				if err := validateIDOrIDList(v, appendPath(n.Path, key)); err != nil {
					return err
				}
			}
		}
	case "tags":
		if d, ok := s["default"]; ok {
			if _, err := stringList(d, appendPath(n.Path, "default")); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateObjectSchema(n *Node) error {
	props, ok := n.Schema["properties"].(map[string]any)
	if !ok {
		return errorf(n.Path, "properties must be a mapping")
	}
	for name, p := range props {
		if name == "" {
			return errorf(n.Path, "property names must not be empty")
		}
		if _, ok := p.(map[string]any); !ok {
			return errorf(appendPath(n.Path, name), "property schema must be a mapping")
		}
	}
	if req, ok := n.Schema["required"]; ok {
		names, err := stringList(req, appendPath(n.Path, "required"))
		if err != nil {
			return err
		}
		for _, name := range names {
			if _, ok := props[name]; !ok {
				return errorf(appendPath(n.Path, "required"), "unknown required property "+quote(name))
			}
		}
	}
	if order, ok := n.Schema["propertyOrder"]; ok {
		names, err := stringList(order, appendPath(n.Path, "propertyOrder"))
		if err != nil {
			return err
		}
		for _, name := range names {
			if _, ok := props[name]; !ok {
				return errorf(appendPath(n.Path, "propertyOrder"), "unknown property "+quote(name))
			}
		}
	}
	for _, name := range sortedKeys(props) {
		prop := props[name].(map[string]any)
		raw, ok := prop["conditions"]
		if !ok {
			continue
		}
		conds, ok := raw.([]any)
		if !ok {
			return errorf(appendPath(n.Path, name), "conditions must be a list")
		}
		for i, c := range conds {
			cond, ok := c.(map[string]any)
			if !ok {
				return errorf(appendPath(n.Path, name), fmt.Sprintf("condition %d must be a mapping", i))
			}
			if err := ValidateConditionSchema(cond, n.Schema, name, appendPath(n.Path, name)); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateArraySchema(n *Node) error {
	if _, ok := n.Schema["items"].(map[string]any); !ok {
		return errorf(n.Path, "items must be a schema mapping")
	}
	minItems, hasMin, err := optionalNonNegative(n.Schema, "minItems", n.Path)
	if err != nil {
		return err
	}
	maxItems, hasMax, err := optionalNonNegative(n.Schema, "maxItems", n.Path)
	if err != nil {
		return err
	}
	if hasMin && hasMax && minItems > maxItems {
		return errorf(n.Path, "minItems must not exceed maxItems")
	}
	return nil
}

func validateTextSchema(n *Node) error {
	s := n.Schema
	minLen, hasMin, err := optionalNonNegative(s, "minLength", n.Path)
	if err != nil {
		return err
	}
	maxLen, hasMax, err := optionalNonNegative(s, "maxLength", n.Path)
	if err != nil {
		return err
	}
	if hasMin && hasMax && minLen > maxLen {
		return errorf(n.Path, "minLength must not exceed maxLength")
	}
	for _, key := range []string{"markdown", "multiline"} {
		if v, ok := s[key]; ok {
			if _, ok := v.(bool); !ok {
				return errorf(appendPath(n.Path, key), key+" must be a boolean")
			}
		}
	}
	if p, ok := s["pattern"]; ok {
		str, ok := p.(string)
		if !ok {
			return errorf(appendPath(n.Path, "pattern"), "pattern must be a string")
		}
		if _, err := regexp.Compile(str); err != nil {
			return errorf(appendPath(n.Path, "pattern"), "invalid pattern")
		}
	}
	for _, key := range []string{"default", "placeholder"} {
		if v, ok := s[key]; ok {
			if err := validateLocalized(v, appendPath(n.Path, key), false); err != nil {
				return err
			}
		}
	}
	if c, ok := s["choices"]; ok {
		choices, ok := c.([]any)
		if !ok || len(choices) == 0 {
			return errorf(appendPath(n.Path, "choices"), "choices must be a non-empty list")
		}
		for i, choice := range choices {
			if err := validateLocalized(choice, appendPath(n.Path, "choices", fmt.Sprint(i)), false); err != nil {
				return err
			}
		}
	}
	if l, ok := s["languages"]; ok {
		if l == "all" {
			return nil
		}
		codes, err := stringList(l, appendPath(n.Path, "languages"))
		if err != nil {
			return err
		}
		for _, code := range codes {
			if !ValidLanguageCode(code) {
				return errorf(appendPath(n.Path, "languages"), "invalid language code "+quote(code))
			}
		}
	}
	return nil
}

func validateUnits(v any, path []string) error {
	switch u := v.(type) {
	case string:
		if u == "" {
			return errorf(path, "units must not be empty")
		}
		return nil
	case []any:
		if len(u) == 0 {
			return errorf(path, "units must not be empty")
		}
		_, err := stringList(u, path)
		return err
	}
	return errorf(path, "units must be a string or a list of strings")
}

func validateIDOrIDList(v any, path []string) error {
	if list, ok := v.([]any); ok {
		for _, item := range list {
			if id, ok := Integer(item); !ok || id < 0 {
				return errorf(path, "must be a list of ids")
			}
		}
		return nil
	}
	if id, ok := Integer(v); !ok || id < 0 {
		return errorf(path, "must be an id or a list of ids")
	}
	return nil
}

func checkKeys(s map[string]any, path []string, extra []string) error {
	for key := range s {
		if !containsKey(commonKeys, key) && !containsKey(extra, key) {
			return errorf(path, "unknown schema key "+quote(key))
		}
	}
	return nil
}

func optionalNonNegative(s map[string]any, key string, path []string) (int64, bool, error) {
	v, ok := s[key]
	if !ok {
		return 0, false, nil
	}
	i, ok := Integer(v)
	if !ok || i < 0 {
		return 0, false, errorf(appendPath(path, key), key+" must be a non-negative integer")
	}
	return i, true, nil
}

func stringList(v any, path []string) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, errorf(path, "must be a list of strings")
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, errorf(path, "must be a list of strings")
		}
		out = append(out, s)
	}
	return out, nil
}

func containsString(v any, want string) bool {
	list, ok := v.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		if s, ok := item.(string); ok && s == want {
			return true
		}
	}
	return false
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
