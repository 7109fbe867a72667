// Package permissions stores object permission grants for users, groups,
// projects and all users.
package permissions

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Level is a permission level. Levels are totally ordered: None < Read < Write < Grant.
type Level int

const (
	None Level = iota
	Read
	Write
	Grant
)

var levelNames = [...]string{"none", "read", "write", "grant"}

func (l Level) String() string {
	if l < None || l > Grant {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel parses a case-insensitive level name.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return None, fmt.Errorf("unknown permission level %q", s)
}

// Min returns the lesser of two levels.
func Min(a, b Level) Level {
	if a < b {
		return a
	}
	return b
}

// Value implements driver.Valuer; levels are stored by name.
func (l Level) Value() (driver.Value, error) { return l.String(), nil }

// Scan implements sql.Scanner.
func (l *Level) Scan(value any) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case nil:
		*l = None
		return nil
	default:
		return fmt.Errorf("unsupported type for permission level: %T", value)
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
