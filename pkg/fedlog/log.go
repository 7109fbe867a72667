package fedlog

import (
	"fmt"
	"sort"
	"time"

	"github.com/sampledb/sampledb/pkg/store"
)

// Log appends and lists federation log entries. It is bound to a store; use
// WithStore to log inside a transaction.
type Log struct {
	store *store.Store
	now   func() time.Time
}

// New creates a Log on top of st.
func New(st *store.Store) *Log {
	return &Log{store: st, now: time.Now}
}

// WithStore returns a copy of the log writing through st.
func (l *Log) WithStore(st *store.Store) *Log {
	return &Log{store: st, now: l.now}
}

// WithClock returns a copy of the log using now for entry timestamps.
func (l *Log) WithClock(now func() time.Time) *Log {
	return &Log{store: l.store, now: now}
}

// AutoMigrate creates one log table per federated kind.
func (l *Log) AutoMigrate() error {
	db := l.store.DB()
	for _, kind := range store.FederatedKinds {
		table := TableFor(kind)
		if err := db.Table(table).AutoMigrate(&Entry{}); err != nil {
			return fmt.Errorf("auto-migrate %s: %w", table, err)
		}
		index := "idx_" + table + "_subject"
		if db.Migrator().HasIndex(table, index) {
			continue
		}
		stmt := fmt.Sprintf("CREATE INDEX %s ON %s (entity_id, component_id)", index, table)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index %s: %w", index, err)
		}
	}
	return nil
}

// Record appends an entry for entityID. Both the entity and the component must
// exist; otherwise the matching DoesNotExistError is returned and nothing is
// written.
func (l *Log) Record(kind store.Kind, entityID, componentID int64, action Action, data map[string]any, userID *int64) error {
	if err := l.store.MustExist(kind, entityID); err != nil {
		return err
	}
	if err := l.store.MustExist(store.KindComponent, componentID); err != nil {
		return err
	}
	entry := &Entry{
		Type:        TypeOf(action, kind),
		EntityID:    entityID,
		ComponentID: componentID,
		Data:        data,
		UTCDatetime: l.now().UTC(),
		UserID:      userID,
	}
	if err := l.store.DB().Table(TableFor(kind)).Create(entry).Error; err != nil {
		return fmt.Errorf("append %s: %w", entry.Type, err)
	}
	return nil
}

// EntriesFor lists the entries of one entity, newest first, optionally
// restricted to one component. A missing entity or component is reported as
// a DoesNotExistError even when there would be no entries.
func (l *Log) EntriesFor(kind store.Kind, entityID int64, componentID *int64) ([]Entry, error) {
	if err := l.store.MustExist(kind, entityID); err != nil {
		return nil, err
	}
	query := l.store.DB().Table(TableFor(kind)).Where("entity_id = ?", entityID)
	if componentID != nil {
		if err := l.store.MustExist(store.KindComponent, *componentID); err != nil {
			return nil, err
		}
		query = query.Where("component_id = ?", *componentID)
	}
	var entries []Entry
	if err := query.Order("utc_datetime DESC, id DESC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list %s log entries: %w", kind.Singular(), err)
	}
	for i := range entries {
		entries[i].Kind = kind
	}
	return entries, nil
}

// EntriesForComponent lists the entries of every kind for a component, newest first.
func (l *Log) EntriesForComponent(componentID int64) ([]Entry, error) {
	if err := l.store.MustExist(store.KindComponent, componentID); err != nil {
		return nil, err
	}
	var all []Entry
	for _, kind := range store.FederatedKinds {
		var entries []Entry
		err := l.store.DB().Table(TableFor(kind)).
			Where("component_id = ?", componentID).
			Order("utc_datetime DESC, id DESC").
			Find(&entries).Error
		if err != nil {
			return nil, fmt.Errorf("list %s log entries: %w", kind.Singular(), err)
		}
		for i := range entries {
			entries[i].Kind = kind
		}
		all = append(all, entries...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].UTCDatetime.After(all[j].UTCDatetime)
	})
	return all, nil
}

// HasEntry reports whether an entity already has an entry with the given action
// for a component.
func (l *Log) HasEntry(kind store.Kind, entityID, componentID int64, action Action) (bool, error) {
	var count int64
	err := l.store.DB().Table(TableFor(kind)).
		Where("entity_id = ? AND component_id = ? AND type = ?", entityID, componentID, TypeOf(action, kind)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count %s log entries: %w", kind.Singular(), err)
	}
	return count > 0, nil
}
