package store

import "strings"

// Kind names a federated entity table. The value doubles as the table name used
// in export reference worklists.
type Kind string

const (
	KindObject                   Kind = "objects"
	KindUser                     Kind = "users"
	KindAction                   Kind = "actions"
	KindActionType               Kind = "action_types"
	KindInstrument               Kind = "instruments"
	KindLocation                 Kind = "locations"
	KindLocationType             Kind = "location_types"
	KindComment                  Kind = "comments"
	KindFile                     Kind = "files"
	KindObjectLocationAssignment Kind = "object_location_assignments"
	KindComponent                Kind = "components"
)

// FederatedKinds lists every kind that carries a (fed_id, component_id) identity,
// in dependency order (referenced kinds first).
var FederatedKinds = []Kind{
	KindUser,
	KindActionType,
	KindInstrument,
	KindLocationType,
	KindLocation,
	KindAction,
	KindObject,
	KindComment,
	KindFile,
	KindObjectLocationAssignment,
}

var singular = map[Kind]string{
	KindObject:                   "object",
	KindUser:                     "user",
	KindAction:                   "action",
	KindActionType:               "action_type",
	KindInstrument:               "instrument",
	KindLocation:                 "location",
	KindLocationType:             "location_type",
	KindComment:                  "comment",
	KindFile:                     "file",
	KindObjectLocationAssignment: "object_location_assignment",
	KindComponent:                "component",
}

// Singular returns the singular snake_case name, e.g. "action_type".
func (k Kind) Singular() string {
	if s, ok := singular[k]; ok {
		return s
	}
	return strings.TrimSuffix(string(k), "s")
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := singular[k]
	return ok
}

// ParseKind accepts either the plural table name or the singular name.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	if k.Valid() {
		return k, true
	}
	for kind, name := range singular {
		if name == s {
			return kind, true
		}
	}
	return "", false
}

// Ref is a (table, local id) pair collected by outbound preprocessors.
type Ref struct {
	Kind Kind
	ID   int64
}
