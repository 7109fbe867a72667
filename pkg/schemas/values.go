package schemas

import (
	"encoding/json"
	"math"
	"strings"

	"golang.org/x/text/language"
)

// Integer converts a decoded JSON number to int64. Booleans, strings and
// non-integral numbers are rejected.
func Integer(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return 0, false
		}
		// float64(math.MaxInt64) rounds up to 2^63
		if n >= math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// Number converts a decoded JSON number to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// ValidLanguageCode reports whether code is a well-formed BCP 47 tag.
func ValidLanguageCode(code string) bool {
	if strings.TrimSpace(code) == "" || code != strings.TrimSpace(code) {
		return false
	}
	_, err := language.Parse(code)
	return err == nil
}

// validateLocalized accepts either a plain string or a language map with
// string values. When requireEnglish is set, a language map must contain "en".
func validateLocalized(v any, path []string, requireEnglish bool) error {
	switch t := v.(type) {
	case string:
		return nil
	case map[string]any:
		for code, text := range t {
			if !ValidLanguageCode(code) {
				return errorf(path, "invalid language code "+quote(code))
			}
			if _, ok := text.(string); !ok {
				return errorf(appendPath(path, code), "translation must be a string")
			}
		}
		if requireEnglish {
			if _, ok := t["en"]; !ok {
				return errorf(path, "missing english translation")
			}
		}
		return nil
	}
	return errorf(path, "must be a string or a mapping of language codes to strings")
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
