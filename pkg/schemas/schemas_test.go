package schemas

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

const sampleSchema = `{
  "type": "object",
  "title": {"en": "Sample", "de": "Probe"},
  "properties": {
    "name": {"type": "text", "title": "Name", "minLength": 1},
    "kind": {"type": "text", "title": "Kind", "choices": [{"en": "solid"}, {"en": "liquid"}]},
    "volume": {
      "type": "quantity", "title": "Volume", "units": "ml",
      "conditions": [{"type": "choice_equals", "property_name": "kind", "choice": {"en": "liquid"}}]
    },
    "operator": {"type": "user", "title": "Operator"},
    "checked": {"type": "bool", "title": "Checked"},
    "tags": {"type": "tags", "title": "Tags"},
    "description": {"type": "text", "title": "Description", "markdown": true},
    "parts": {
      "type": "array", "title": "Parts", "maxItems": 3,
      "items": {
        "type": "object", "title": "Part",
        "properties": {
          "label": {"type": "text", "title": "Label"},
          "source": {"type": "sample", "title": "Source"}
        },
        "required": ["label"]
      }
    }
  },
  "required": ["name"],
  "propertyOrder": ["name", "kind", "volume"]
}`

const sampleData = `{
  "name": {"_type": "text", "text": {"en": "Example"}},
  "kind": {"_type": "text", "text": {"en": "liquid"}},
  "volume": {"_type": "quantity", "units": "ml", "dimensionality": "[length] ** 3", "magnitude_in_base_units": 0.001},
  "operator": {"_type": "user", "user_id": 3, "component_uuid": "6b6b2c5f-0d0e-4a57-9e0f-2a4c9d3a1f10"},
  "checked": {"_type": "bool", "value": true},
  "tags": {"_type": "tags", "tags": ["a", "b"]},
  "description": {"_type": "text", "text": "![x](/markdown_images/abc.png)"},
  "parts": [
    {"label": {"_type": "text", "text": "first"}, "source": {"_type": "sample", "object_id": 4}},
    {"label": {"_type": "text", "text": "second"}, "source": {"_type": "sample"}}
  ]
}`

func TestValidateSchemaAcceptsSample(t *testing.T) {
	require.NoError(t, ValidateSchema(decode(t, sampleSchema)))
}

func TestValidateSchemaTopLevelRules(t *testing.T) {
	tests := []struct {
		name   string
		schema string
	}{
		{"not an object", `{"type": "text", "title": "x"}`},
		{"missing title", `{"type": "object", "properties": {"name": {"type": "text", "title": "Name"}}, "required": ["name"]}`},
		{"missing name", `{"type": "object", "title": "x", "properties": {}, "required": []}`},
		{"name not text", `{"type": "object", "title": "x", "properties": {"name": {"type": "bool", "title": "Name"}}, "required": ["name"]}`},
		{"name not required", `{"type": "object", "title": "x", "properties": {"name": {"type": "text", "title": "Name"}}}`},
		{"unknown required", `{"type": "object", "title": "x", "properties": {"name": {"type": "text", "title": "Name"}}, "required": ["name", "other"]}`},
		{"unknown type", `{"type": "object", "title": "x", "properties": {"name": {"type": "text", "title": "Name"}, "v": {"type": "color", "title": "V"}}, "required": ["name"]}`},
		{"unknown key", `{"type": "object", "title": "x", "properties": {"name": {"type": "text", "title": "Name", "colour": 1}}, "required": ["name"]}`},
		{"title without english", `{"type": "object", "title": {"de": "x"}, "properties": {"name": {"type": "text", "title": "Name"}}, "required": ["name"]}`},
		{"bad language code", `{"type": "object", "title": {"en": "x", "": "y"}, "properties": {"name": {"type": "text", "title": "Name"}}, "required": ["name"]}`},
		{"array without items", `{"type": "object", "title": "x", "properties": {"name": {"type": "text", "title": "Name"}, "a": {"type": "array", "title": "A"}}, "required": ["name"]}`},
		{"min over max", `{"type": "object", "title": "x", "properties": {"name": {"type": "text", "title": "Name", "minLength": 5, "maxLength": 1}}, "required": ["name"]}`},
		{"quantity without units", `{"type": "object", "title": "x", "properties": {"name": {"type": "text", "title": "Name"}, "q": {"type": "quantity", "title": "Q"}}, "required": ["name"]}`},
		{"self condition", `{"type": "object", "title": "x", "properties": {"name": {"type": "text", "title": "Name"}, "b": {"type": "bool", "title": "B", "conditions": [{"type": "bool_equals", "property_name": "b", "value": true}]}}, "required": ["name"]}`},
		{"condition on wrong type", `{"type": "object", "title": "x", "properties": {"name": {"type": "text", "title": "Name"}, "b": {"type": "bool", "title": "B", "conditions": [{"type": "user_equals", "property_name": "name", "user_id": 1}]}}, "required": ["name"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchema(decode(t, tt.schema))
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestValidateDataAcceptsSample(t *testing.T) {
	schema := decode(t, sampleSchema)
	require.NoError(t, ValidateData(decode(t, sampleData), schema))
}

func TestValidateDataRejects(t *testing.T) {
	schema := decode(t, sampleSchema)
	tests := []struct {
		name   string
		mutate func(d map[string]any)
		path   string
	}{
		{"missing name", func(d map[string]any) { delete(d, "name") }, "name"},
		{"unknown property", func(d map[string]any) { d["colour"] = map[string]any{"_type": "text", "text": "red"} }, "colour"},
		{"wrong _type", func(d map[string]any) { d["checked"] = map[string]any{"_type": "text", "text": "yes"} }, "checked"},
		{"bool value", func(d map[string]any) { d["checked"] = map[string]any{"_type": "bool", "value": "yes"} }, "checked"},
		{"empty name", func(d map[string]any) { d["name"] = map[string]any{"_type": "text", "text": ""} }, "name"},
		{"unknown choice", func(d map[string]any) {
			d["kind"] = map[string]any{"_type": "text", "text": map[string]any{"en": "gas"}}
			delete(d, "volume")
		}, "kind"},
		{"condition unfulfilled", func(d map[string]any) { d["kind"] = map[string]any{"_type": "text", "text": map[string]any{"en": "solid"}} }, "volume"},
		{"negative user id", func(d map[string]any) { d["operator"] = map[string]any{"_type": "user", "user_id": -1.0} }, "operator"},
		{"bad component uuid", func(d map[string]any) {
			d["operator"] = map[string]any{"_type": "user", "user_id": 1.0, "component_uuid": "nope"}
		}, "operator"},
		{"uuid without id", func(d map[string]any) {
			d["operator"] = map[string]any{"_type": "user", "component_uuid": "6b6b2c5f-0d0e-4a57-9e0f-2a4c9d3a1f10"}
		}, "operator"},
		{"duplicate tags", func(d map[string]any) { d["tags"] = map[string]any{"_type": "tags", "tags": []any{"a", "a"}} }, "tags"},
		{"too many parts", func(d map[string]any) {
			part := map[string]any{"label": map[string]any{"_type": "text", "text": "x"}}
			d["parts"] = []any{part, part, part, part}
		}, "parts"},
		{"nested required", func(d map[string]any) { d["parts"] = []any{map[string]any{}} }, "parts.0.label"},
		{"parts not a list", func(d map[string]any) { d["parts"] = map[string]any{} }, "parts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := decode(t, sampleData)
			tt.mutate(data)
			err := ValidateData(data, schema)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.path, verr.PathString())
		})
	}
}

func TestValidateDataIgnoresUnknownLanguages(t *testing.T) {
	schema := decode(t, sampleSchema)
	data := decode(t, sampleData)
	data["name"] = map[string]any{"_type": "text", "text": map[string]any{"en": "Example", "se": "Exempel"}}
	assert.NoError(t, ValidateData(data, schema))
}

func TestConditions(t *testing.T) {
	siblings := map[string]any{
		"kind":     map[string]any{"_type": "text", "text": map[string]any{"en": "liquid"}},
		"checked":  map[string]any{"_type": "bool", "value": true},
		"operator": map[string]any{"_type": "user", "user_id": 3.0},
		"source":   map[string]any{"_type": "sample", "object_id": 7.0},
	}
	tests := []struct {
		name string
		cond string
		want bool
	}{
		{"choice equals", `{"type": "choice_equals", "property_name": "kind", "choice": {"en": "liquid"}}`, true},
		{"choice differs", `{"type": "choice_equals", "property_name": "kind", "choice": "solid"}`, false},
		{"bool equals", `{"type": "bool_equals", "property_name": "checked", "value": true}`, true},
		{"bool missing", `{"type": "bool_equals", "property_name": "other", "value": false}`, false},
		{"user equals", `{"type": "user_equals", "property_name": "operator", "user_id": 3}`, true},
		{"user null", `{"type": "user_equals", "property_name": "missing", "user_id": null}`, true},
		{"object equals", `{"type": "object_equals", "property_name": "source", "object_id": 7}`, true},
		{"object differs", `{"type": "object_equals", "property_name": "source", "object_id": 8}`, false},
		{"not", `{"type": "not", "condition": {"type": "bool_equals", "property_name": "checked", "value": true}}`, false},
		{"any", `{"type": "any", "conditions": [
			{"type": "bool_equals", "property_name": "checked", "value": false},
			{"type": "user_equals", "property_name": "operator", "user_id": 3}]}`, true},
		{"any empty", `{"type": "any", "conditions": []}`, false},
		{"all", `{"type": "all", "conditions": [
			{"type": "bool_equals", "property_name": "checked", "value": true},
			{"type": "object_equals", "property_name": "source", "object_id": 8}]}`, false},
		{"all empty", `{"type": "all", "conditions": []}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConditionFulfilled(decode(t, tt.cond), siblings))
		})
	}
}

func TestConditionsAcrossComponents(t *testing.T) {
	const owner = "6b6b2c5f-0d0e-4a57-9e0f-2a4c9d3a1f10"
	const other = "0f4ed7a2-3c55-4f0e-8d2b-6f6a0e7c9b21"
	siblings := map[string]any{
		"operator": map[string]any{"_type": "user", "user_id": 3.0, "component_uuid": owner},
		"source":   map[string]any{"_type": "sample", "object_id": 7.0},
	}
	tests := []struct {
		name string
		cond string
		want bool
	}{
		{"same component", `{"type": "user_equals", "property_name": "operator", "user_id": 3, "component_uuid": "` + owner + `"}`, true},
		{"component case differs", `{"type": "user_equals", "property_name": "operator", "user_id": 3, "component_uuid": "` + strings.ToUpper(owner) + `"}`, true},
		{"implicit owner", `{"type": "user_equals", "property_name": "operator", "user_id": 3}`, true},
		{"other component", `{"type": "user_equals", "property_name": "operator", "user_id": 3, "component_uuid": "` + other + `"}`, false},
		{"object of owner", `{"type": "object_equals", "property_name": "source", "object_id": 7, "component_uuid": "` + owner + `"}`, true},
		{"object of other component", `{"type": "object_equals", "property_name": "source", "object_id": 7, "component_uuid": "` + other + `"}`, false},
		{"null ignores component", `{"type": "user_equals", "property_name": "missing", "user_id": null}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isConditionFulfilled(decode(t, tt.cond), siblings, owner))
		})
	}

	// without an owner, a leaf of another component never equals a local id
	assert.False(t, IsConditionFulfilled(decode(t,
		`{"type": "user_equals", "property_name": "operator", "user_id": 3}`), siblings))
}

func TestValidateDataForOwner(t *testing.T) {
	const owner = "6b6b2c5f-0d0e-4a57-9e0f-2a4c9d3a1f10"
	schema := decode(t, `{
		"type": "object", "title": "x",
		"properties": {
			"name": {"type": "text", "title": "Name"},
			"operator": {"type": "user", "title": "Operator"},
			"remark": {"type": "text", "title": "Remark",
				"conditions": [{"type": "user_equals", "property_name": "operator", "user_id": 3, "component_uuid": "`+owner+`"}]}
		},
		"required": ["name"]
	}`)
	require.NoError(t, ValidateSchema(schema))
	data := decode(t, `{
		"name": {"_type": "text", "text": "Example"},
		"operator": {"_type": "user", "user_id": 3, "component_uuid": "`+owner+`"},
		"remark": {"_type": "text", "text": "only for user 3"}
	}`)
	assert.NoError(t, ValidateDataFor(data, schema, owner))
	assert.NoError(t, ValidateData(data, schema), "explicit components match without an owner")

	delete(data["operator"].(map[string]any), "component_uuid")
	assert.NoError(t, ValidateDataFor(data, schema, owner))
	err := ValidateData(data, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remark")
}

func TestVisitConditionReferences(t *testing.T) {
	schema := decode(t, `{
		"type": "object", "title": "x",
		"properties": {
			"name": {"type": "text", "title": "Name"},
			"operator": {"type": "user", "title": "Operator"},
			"parts": {"type": "array", "title": "Parts", "items": {
				"type": "object", "title": "Part",
				"properties": {
					"source": {"type": "sample", "title": "Source"},
					"note": {"type": "text", "title": "Note", "conditions": [
						{"type": "not", "condition": {"type": "object_equals", "property_name": "source", "object_id": 4}}
					]}
				}
			}},
			"remark": {"type": "text", "title": "Remark", "conditions": [
				{"type": "any", "conditions": [
					{"type": "user_equals", "property_name": "operator", "user_id": 3},
					{"type": "bool_equals", "property_name": "name", "value": true}
				]}
			]}
		},
		"required": ["name"]
	}`)
	var seen []string
	err := VisitConditionReferences(schema, func(cond map[string]any, idKey string) error {
		seen = append(seen, idKey)
		cond[idKey] = 10.0
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"object_id", "user_id"}, seen)

	note := schema["properties"].(map[string]any)["parts"].(map[string]any)["items"].(map[string]any)["properties"].(map[string]any)["note"].(map[string]any)
	inner := note["conditions"].([]any)[0].(map[string]any)["condition"].(map[string]any)
	assert.Equal(t, 10.0, inner["object_id"])
}

func TestValidateConditionSchema(t *testing.T) {
	schema := decode(t, sampleSchema)
	ok := decode(t, `{"type": "all", "conditions": [{"type": "bool_equals", "property_name": "checked", "value": true}]}`)
	assert.NoError(t, ValidateConditionSchema(ok, schema, "volume", nil))
	withComponent := decode(t, `{"type": "user_equals", "property_name": "operator", "user_id": 1, "component_uuid": "6b6b2c5f-0d0e-4a57-9e0f-2a4c9d3a1f10"}`)
	assert.NoError(t, ValidateConditionSchema(withComponent, schema, "volume", nil))

	for _, bad := range []string{
		`{"type": "maybe"}`,
		`{"type": "bool_equals", "property_name": "checked"}`,
		`{"type": "choice_equals", "property_name": "kind", "choice": "gas"}`,
		`{"type": "object_equals", "property_name": "operator", "object_id": 1}`,
		`{"type": "not"}`,
		`{"type": "bool_equals", "property_name": "checked", "value": true, "extra": 1}`,
		`{"type": "user_equals", "property_name": "operator", "user_id": 1, "component_uuid": "peer"}`,
		`{"type": "user_equals", "property_name": "operator", "user_id": 1, "component_uuid": 7}`,
		`{"type": "bool_equals", "property_name": "checked", "value": true, "component_uuid": "6b6b2c5f-0d0e-4a57-9e0f-2a4c9d3a1f10"}`,
	} {
		assert.Error(t, ValidateConditionSchema(decode(t, bad), schema, "volume", nil), bad)
	}
}

func TestWalkVisitsInSortedOrder(t *testing.T) {
	schema := decode(t, sampleSchema)
	var paths []string
	err := Walk(schema, decode(t, sampleData), true, Callbacks{"*": func(n *Node) error {
		if n.HasData {
			paths = append(paths, n.PathString())
		}
		return nil
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"", "checked", "description", "kind", "name", "operator",
		"parts", "parts.0", "parts.0.label", "parts.0.source",
		"parts.1", "parts.1.label", "parts.1.source",
		"tags", "volume",
	}, paths)
}

func TestCollectTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, CollectTags(decode(t, sampleSchema), decode(t, sampleData)))
	assert.Empty(t, CollectTags(decode(t, sampleSchema), nil))
}

func TestVisitReferencesCanRewrite(t *testing.T) {
	schema := decode(t, sampleSchema)
	data := decode(t, sampleData)
	var seen []string
	err := VisitReferences(schema, data, func(n *Node, leaf map[string]any, idKey string) error {
		seen = append(seen, n.PathString()+":"+idKey)
		if _, ok := leaf[idKey]; ok {
			leaf[idKey] = 100.0
			delete(leaf, "component_uuid")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"operator:user_id", "parts.0.source:object_id", "parts.1.source:object_id"}, seen)
	assert.Equal(t, map[string]any{"_type": "user", "user_id": 100.0}, data["operator"])
	assert.NoError(t, ValidateData(data, schema))
}

func TestVisitMarkdown(t *testing.T) {
	var texts []any
	err := VisitMarkdown(decode(t, sampleSchema), decode(t, sampleData), func(n *Node, leaf map[string]any) error {
		texts = append(texts, leaf["text"])
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"![x](/markdown_images/abc.png)"}, texts)
}

func TestInteger(t *testing.T) {
	tests := []struct {
		in   any
		want int64
		ok   bool
	}{
		{3.0, 3, true},
		{json.Number("7"), 7, true},
		{int64(5), 5, true},
		{2, 2, true},
		{1.5, 0, false},
		{9223372036854775808.0, 0, false},
		{-9223372036854775808.0, -1 << 63, true},
		{true, 0, false},
		{"1", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := Integer(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}
