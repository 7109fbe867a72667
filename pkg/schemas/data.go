package schemas

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TimeseriesLayout is the layout of timestamps in timeseries rows.
const TimeseriesLayout = "2006-01-02 15:04:05.000000"

var dataKeys = map[string][]string{
	"text":             {"_type", "text", "is_markdown"},
	"bool":             {"_type", "value"},
	"quantity":         {"_type", "units", "dimensionality", "magnitude_in_base_units", "magnitude"},
	"datetime":         {"_type", "utc_datetime"},
	"user":             {"_type", "user_id", "component_uuid", "eln_source_url", "eln_user_url"},
	"object_reference": {"_type", "object_id", "component_uuid", "eln_source_url", "eln_object_url"},
	"sample":           {"_type", "object_id", "component_uuid", "eln_source_url", "eln_object_url"},
	"measurement":      {"_type", "object_id", "component_uuid", "eln_source_url", "eln_object_url"},
	"tags":             {"_type", "tags"},
	"hazards":          {"_type", "hazards"},
	"timeseries":       {"_type", "units", "data"},
	"plotly_chart":     {"_type", "plotly"},
	"file":             {"_type", "file_id"},
}

// ReferenceIDKey returns the id field of a reference leaf type, or "" if the
// type does not carry a reference.
func ReferenceIDKey(schemaType string) string {
	switch schemaType {
	case "user":
		return "user_id"
	case "object_reference", "sample", "measurement":
		return "object_id"
	}
	return ""
}

// ValidateData checks data against a schema that has already been validated.
func ValidateData(data any, schema map[string]any) error {
	return ValidateDataFor(data, schema, "")
}

// ValidateDataFor validates data received from the component ownerUUID.
// References in the data and in conditions that carry no component_uuid are
// ids of that component.
func ValidateDataFor(data any, schema map[string]any, ownerUUID string) error {
	return Walk(schema, data, true, Callbacks{"*": func(n *Node) error {
		return validateDataNode(n, ownerUUID)
	}})
}

func validateDataNode(n *Node, owner string) error {
	if !n.HasData {
		return SkipChildren
	}
	t := n.Type()
	switch t {
	case "object":
		return validateObjectData(n, owner)
	case "array":
		return validateArrayData(n)
	}

	value, ok := n.Data.(map[string]any)
	if !ok {
		return errorf(n.Path, "must be a mapping")
	}
	if typ, _ := value["_type"].(string); typ != t {
		return errorf(n.Path, fmt.Sprintf("expected _type %q", t))
	}
	if err := checkDataKeys(value, n.Path, dataKeys[t]); err != nil {
		return err
	}

	switch t {
	case "text":
		return validateTextData(n, value)
	case "bool":
		if _, ok := value["value"].(bool); !ok {
			return errorf(n.Path, "value must be a boolean")
		}
	case "quantity":
		if _, ok := value["units"].(string); !ok {
			return errorf(n.Path, "units must be a string")
		}
		if d, ok := value["dimensionality"]; ok {
			if _, ok := d.(string); !ok {
				return errorf(n.Path, "dimensionality must be a string")
			}
		}
		_, hasBase := value["magnitude_in_base_units"]
		_, hasMagnitude := value["magnitude"]
		if !hasBase && !hasMagnitude {
			return errorf(n.Path, "missing magnitude")
		}
		for _, key := range []string{"magnitude_in_base_units", "magnitude"} {
			if v, ok := value[key]; ok {
				if _, ok := Number(v); !ok {
					return errorf(n.Path, key+" must be a number")
				}
			}
		}
	case "datetime":
		s, ok := value["utc_datetime"].(string)
		if !ok {
			return errorf(n.Path, "utc_datetime must be a string")
		}
		if _, err := time.Parse(DatetimeLayout, s); err != nil {
			return errorf(n.Path, "invalid datetime "+quote(s))
		}
	case "user", "object_reference", "sample", "measurement":
		return validateReferenceData(n, value, ReferenceIDKey(t))
	case "tags":
		tags, err := stringList(value["tags"], n.Path)
		if err != nil {
			return err
		}
		seen := map[string]bool{}
		for _, tag := range tags {
			if tag == "" {
				return errorf(n.Path, "tags must not be empty")
			}
			if seen[tag] {
				return errorf(n.Path, "duplicate tag "+quote(tag))
			}
			seen[tag] = true
		}
	case "hazards":
		list, ok := value["hazards"].([]any)
		if !ok {
			return errorf(n.Path, "hazards must be a list")
		}
		seen := map[int64]bool{}
		for _, h := range list {
			id, ok := Integer(h)
			if !ok || id < 1 || id > 9 || seen[id] {
				return errorf(n.Path, "hazards must be distinct GHS pictogram numbers from 1 to 9")
			}
			seen[id] = true
		}
	case "timeseries":
		return validateTimeseriesData(n, value)
	case "plotly_chart":
		if _, ok := value["plotly"].(map[string]any); !ok {
			return errorf(n.Path, "plotly must be a mapping")
		}
	case "file":
		if id, ok := Integer(value["file_id"]); !ok || id < 0 {
			return errorf(n.Path, "file_id must be a non-negative integer")
		}
	}
	return nil
}

func validateObjectData(n *Node, owner string) error {
	data, ok := n.Data.(map[string]any)
	if !ok {
		return errorf(n.Path, "must be a mapping")
	}
	props, _ := n.Schema["properties"].(map[string]any)
	for key := range data {
		if _, ok := props[key]; !ok {
			return errorf(appendPath(n.Path, key), "unknown property")
		}
	}
	for _, name := range sortedKeys(props) {
		prop, _ := props[name].(map[string]any)
		_, present := data[name]
		fulfilled := areConditionsFulfilled(prop["conditions"], data, owner)
		if present && !fulfilled {
			return errorf(appendPath(n.Path, name), "property must be absent while its conditions are not fulfilled")
		}
		if !present && fulfilled && containsString(n.Schema["required"], name) {
			return errorf(appendPath(n.Path, name), "missing required property")
		}
	}
	return nil
}

func validateArrayData(n *Node) error {
	list, ok := n.Data.([]any)
	if !ok {
		return errorf(n.Path, "must be a list")
	}
	if v, ok := n.Schema["minItems"]; ok {
		if minItems, _ := Integer(v); int64(len(list)) < minItems {
			return errorf(n.Path, fmt.Sprintf("must contain at least %d items", minItems))
		}
	}
	if v, ok := n.Schema["maxItems"]; ok {
		if maxItems, _ := Integer(v); int64(len(list)) > maxItems {
			return errorf(n.Path, fmt.Sprintf("must contain at most %d items", maxItems))
		}
	}
	return nil
}

func validateTextData(n *Node, value map[string]any) error {
	if m, ok := value["is_markdown"]; ok {
		if _, ok := m.(bool); !ok {
			return errorf(n.Path, "is_markdown must be a boolean")
		}
	}
	text, ok := value["text"]
	if !ok {
		return errorf(n.Path, "missing text")
	}
	var texts []string
	switch t := text.(type) {
	case string:
		texts = []string{t}
	case map[string]any:
		for code, v := range t {
			if !ValidLanguageCode(code) {
				return errorf(n.Path, "invalid language code "+quote(code))
			}
			s, ok := v.(string)
			if !ok {
				return errorf(appendPath(n.Path, code), "translation must be a string")
			}
			texts = append(texts, s)
		}
	default:
		return errorf(n.Path, "text must be a string or a mapping of language codes to strings")
	}

	if choices, ok := n.Schema["choices"].([]any); ok {
		for _, c := range choices {
			if localizedEqual(c, text) {
				return nil
			}
		}
		return errorf(n.Path, "text must be one of the choices")
	}

	var pattern *regexp.Regexp
	if p, ok := n.Schema["pattern"].(string); ok {
		pattern = regexp.MustCompile(p)
	}
	minLen, hasMin := Integer(n.Schema["minLength"])
	maxLen, hasMax := Integer(n.Schema["maxLength"])
	for _, s := range texts {
		length := int64(utf8.RuneCountInString(s))
		if hasMin && length < minLen {
			return errorf(n.Path, fmt.Sprintf("text must be at least %d characters long", minLen))
		}
		if hasMax && length > maxLen {
			return errorf(n.Path, fmt.Sprintf("text must be at most %d characters long", maxLen))
		}
		if pattern != nil && !pattern.MatchString(s) {
			return errorf(n.Path, "text does not match pattern")
		}
	}
	return nil
}

// validateReferenceData accepts an unset reference (no id) or an id with an
// optional component uuid.
func validateReferenceData(n *Node, value map[string]any, idKey string) error {
	rawID, hasID := value[idKey]
	rawUUID, hasUUID := value["component_uuid"]
	if hasID && rawID != nil {
		if id, ok := Integer(rawID); !ok || id < 0 {
			return errorf(n.Path, idKey+" must be a non-negative integer")
		}
	} else if hasUUID && rawUUID != nil {
		return errorf(n.Path, "component_uuid given without "+idKey)
	}
	if hasUUID && rawUUID != nil {
		s, ok := rawUUID.(string)
		if !ok {
			return errorf(n.Path, "component_uuid must be a string")
		}
		if _, err := uuid.Parse(s); err != nil {
			return errorf(n.Path, "invalid component_uuid "+quote(s))
		}
	}
	for _, key := range []string{"eln_source_url", "eln_user_url", "eln_object_url"} {
		if v, ok := value[key]; ok && v != nil {
			if _, ok := v.(string); !ok {
				return errorf(n.Path, key+" must be a string")
			}
		}
	}
	return nil
}

func validateTimeseriesData(n *Node, value map[string]any) error {
	if _, ok := value["units"].(string); !ok {
		return errorf(n.Path, "units must be a string")
	}
	rows, ok := value["data"].([]any)
	if !ok {
		return errorf(n.Path, "data must be a list")
	}
	for i, r := range rows {
		row, ok := r.([]any)
		if !ok || len(row) < 2 || len(row) > 3 {
			return errorf(n.Path, fmt.Sprintf("row %d must contain a timestamp and one or two magnitudes", i))
		}
		ts, ok := row[0].(string)
		if !ok {
			return errorf(n.Path, fmt.Sprintf("row %d: timestamp must be a string", i))
		}
		if _, err := time.Parse(TimeseriesLayout, ts); err != nil {
			return errorf(n.Path, fmt.Sprintf("row %d: invalid timestamp", i))
		}
		for _, m := range row[1:] {
			if _, ok := Number(m); !ok {
				return errorf(n.Path, fmt.Sprintf("row %d: magnitude must be a number", i))
			}
		}
	}
	return nil
}

func checkDataKeys(value map[string]any, path []string, allowed []string) error {
	for key := range value {
		if !containsKey(allowed, key) {
			return errorf(path, "unknown key "+quote(key))
		}
	}
	return nil
}
