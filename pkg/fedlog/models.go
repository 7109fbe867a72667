// Package fedlog records the federation history of every federated entity:
// imports, updates, shares and placeholder creations, per peer component.
package fedlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/sampledb/sampledb/pkg/store"
)

// Action is the verb part of an entry type.
type Action string

const (
	ActionImport      Action = "IMPORT"
	ActionUpdate      Action = "UPDATE"
	ActionShare       Action = "SHARE"
	ActionUpdateShare Action = "UPDATE_SHARE"
	ActionCreateRef   Action = "CREATE_REF"
)

var actions = []Action{ActionImport, ActionUpdate, ActionShare, ActionUpdateShare, ActionCreateRef}

// EntryType is the full entry type, e.g. IMPORT_OBJECT or CREATE_REF_ACTION_TYPE.
type EntryType string

// TypeOf returns the entry type for an action on an entity kind.
func TypeOf(action Action, kind store.Kind) EntryType {
	return EntryType(string(action) + "_" + strings.ToUpper(kind.Singular()))
}

// Action splits the verb off the entry type.
func (t EntryType) Action() Action {
	// longest prefix first so UPDATE_SHARE is not read as UPDATE
	var best Action
	for _, a := range actions {
		if strings.HasPrefix(string(t), string(a)+"_") && len(a) > len(best) {
			best = a
		}
	}
	return best
}

// Entry is one immutable row of a per-kind federation log table.
type Entry struct {
	ID          int64         `gorm:"primaryKey;column:id" json:"id"`
	Type        EntryType     `gorm:"column:type;type:varchar(64);not null" json:"type"`
	EntityID    int64         `gorm:"column:entity_id;not null" json:"entityId"`
	ComponentID int64         `gorm:"column:component_id;not null" json:"componentId"`
	Data        store.JSONAny `gorm:"column:data;type:text" json:"data,omitempty"`
	UTCDatetime time.Time     `gorm:"column:utc_datetime;not null" json:"utcDatetime"`
	UserID      *int64        `gorm:"column:user_id" json:"userId,omitempty"`

	Kind store.Kind `gorm:"-" json:"kind"`
}

// TableFor returns the log table of a kind, e.g. fed_object_log_entries.
func TableFor(kind store.Kind) string {
	return fmt.Sprintf("fed_%s_log_entries", kind.Singular())
}
