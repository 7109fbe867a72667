package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

func scanJSON(value any, dest any) error {
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSON column: %T", value)
	}
	return json.Unmarshal(bytes, dest)
}

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// JSONAny is a custom GORM type for map[string]any stored as JSON.
type JSONAny map[string]any

// Scan implements the sql.Scanner interface for JSONAny.
func (m *JSONAny) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	return scanJSON(value, m)
}

// Value implements the driver.Valuer interface for JSONAny.
func (m JSONAny) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return jsonValue(m)
}

// JSONStringMap is a string to string map stored as JSON. Used for user extra
// fields and localized texts (language code to text).
type JSONStringMap map[string]string

// Scan implements the sql.Scanner interface for JSONStringMap.
func (m *JSONStringMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	return scanJSON(value, m)
}

// Value implements the driver.Valuer interface for JSONStringMap.
func (m JSONStringMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return jsonValue(m)
}

// Translations maps a language code to the translated fields of an entity,
// e.g. {"en": {"name": "XRD", "description": "..."}}.
type Translations map[string]map[string]string

// Scan implements the sql.Scanner interface for Translations.
func (t *Translations) Scan(value any) error {
	if value == nil {
		*t = nil
		return nil
	}
	return scanJSON(value, t)
}

// Value implements the driver.Valuer interface for Translations.
func (t Translations) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return jsonValue(t)
}
