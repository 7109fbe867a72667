package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store is the persistence layer consumed by the federation engine. A Store
// bound to a transaction is obtained through Transaction; nested imports share
// that transaction.
type Store struct {
	db        *gorm.DB
	localUUID string
}

// New creates a Store. federationUUID is the UUID of this instance; entities
// referencing it are local and never resolved through the component registry.
func New(db *gorm.DB, federationUUID string) *Store {
	return &Store{db: db, localUUID: canonicalUUID(federationUUID)}
}

// DB returns the underlying gorm handle.
func (s *Store) DB() *gorm.DB { return s.db }

// LocalUUID returns the federation UUID of this instance.
func (s *Store) LocalUUID() string { return s.localUUID }

// IsLocalUUID reports whether u denotes this instance.
func (s *Store) IsLocalUUID(u string) bool {
	return s.localUUID != "" && canonicalUUID(u) == s.localUUID
}

// AutoMigrate creates or updates all entity tables.
func (s *Store) AutoMigrate() error {
	models := []any{
		&Component{},
		&User{},
		&ActionType{},
		&Instrument{},
		&Action{},
		&LocationType{},
		&Location{},
		&LocationResponsibleUser{},
		&Object{},
		&ObjectVersion{},
		&Tag{},
		&Comment{},
		&File{},
		&ObjectLocationAssignment{},
		&MarkdownImage{},
		&ObjectShare{},
		&Group{},
		&Project{},
	}
	for _, m := range models {
		if err := s.db.AutoMigrate(m); err != nil {
			return fmt.Errorf("auto-migrate %T: %w", m, err)
		}
	}
	return nil
}

// Transaction runs fn inside a database transaction. Calling Transaction on a
// Store that is already bound to a transaction creates a savepoint.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, localUUID: s.localUUID})
	})
}

// WithDB returns a copy of the store using db, e.g. a transaction handle owned
// by another package.
func (s *Store) WithDB(db *gorm.DB) *Store {
	return &Store{db: db, localUUID: s.localUUID}
}

func canonicalUUID(u string) string {
	parsed, err := uuid.Parse(strings.TrimSpace(u))
	if err != nil {
		return ""
	}
	return parsed.String()
}

func newModel(kind Kind) (any, error) {
	switch kind {
	case KindObject:
		return &Object{}, nil
	case KindUser:
		return &User{}, nil
	case KindAction:
		return &Action{}, nil
	case KindActionType:
		return &ActionType{}, nil
	case KindInstrument:
		return &Instrument{}, nil
	case KindLocation:
		return &Location{}, nil
	case KindLocationType:
		return &LocationType{}, nil
	case KindComment:
		return &Comment{}, nil
	case KindFile:
		return &File{}, nil
	case KindObjectLocationAssignment:
		return &ObjectLocationAssignment{}, nil
	case KindComponent:
		return &Component{}, nil
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

// Exists reports whether a row of the given kind exists.
func (s *Store) Exists(kind Kind, id int64) (bool, error) {
	m, err := newModel(kind)
	if err != nil {
		return false, err
	}
	var count int64
	if err := s.db.Model(m).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check %s exists: %w", kind.Singular(), err)
	}
	return count > 0, nil
}

// MustExist returns a DoesNotExistError if the row is missing.
func (s *Store) MustExist(kind Kind, id int64) error {
	ok, err := s.Exists(kind, id)
	if err != nil {
		return err
	}
	if !ok {
		return NotFound(kind, id)
	}
	return nil
}

// LocalID maps a federated identity to the local id. Returns nil, nil when no
// row carries that identity.
func (s *Store) LocalID(kind Kind, fedID, componentID int64) (*int64, error) {
	m, err := newModel(kind)
	if err != nil {
		return nil, err
	}
	var ids []int64
	err = s.db.Model(m).
		Where("fed_id = ? AND component_id = ?", fedID, componentID).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("lookup %s by federation id: %w", kind.Singular(), err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return &ids[0], nil
}

// FederationIdentity returns the (fed_id, component_id) pair of a row. Both
// are nil for entities created on this instance.
func (s *Store) FederationIdentity(kind Kind, id int64) (fedID, componentID *int64, err error) {
	m, err := newModel(kind)
	if err != nil {
		return nil, nil, err
	}
	var row struct {
		FedID       *int64
		ComponentID *int64
	}
	res := s.db.Model(m).Select("fed_id", "component_id").Where("id = ?", id).Limit(1).Scan(&row)
	if res.Error != nil {
		return nil, nil, fmt.Errorf("get %s federation identity: %w", kind.Singular(), res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil, NotFound(kind, id)
	}
	return row.FedID, row.ComponentID, nil
}

// CreateStub inserts an id-only placeholder row for a federated identity.
// Comments, files and assignments cannot be stubbed since they require an object.
func (s *Store) CreateStub(kind Kind, fedID, componentID int64) (int64, error) {
	switch kind {
	case KindComment, KindFile, KindObjectLocationAssignment:
		return 0, fmt.Errorf("cannot create placeholder %s", kind.Singular())
	}
	m, err := newModel(kind)
	if err != nil {
		return 0, err
	}
	f, ok := m.(federated)
	if !ok {
		return 0, fmt.Errorf("kind %q has no federation identity", kind)
	}
	f.setFederation(fedID, componentID)
	if err := s.db.Create(m).Error; err != nil {
		return 0, fmt.Errorf("create placeholder %s: %w", kind.Singular(), err)
	}
	return f.localID(), nil
}

// get loads a row by primary key, returning a DoesNotExistError if missing.
func get[T any](db *gorm.DB, kind Kind, id int64) (*T, error) {
	var row T
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound(kind, id)
		}
		return nil, fmt.Errorf("get %s: %w", kind.Singular(), err)
	}
	return &row, nil
}

// getByFedID loads a row by federated identity. Returns nil, nil if missing.
func getByFedID[T any](db *gorm.DB, kind Kind, fedID, componentID int64) (*T, error) {
	var row T
	err := db.Where("fed_id = ? AND component_id = ?", fedID, componentID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s by federation id: %w", kind.Singular(), err)
	}
	return &row, nil
}

// save inserts the row when its primary key is zero, updates it otherwise.
func save[T any](db *gorm.DB, kind Kind, row *T) error {
	if err := db.Save(row).Error; err != nil {
		return fmt.Errorf("save %s: %w", kind.Singular(), err)
	}
	return nil
}

func (s *Store) GetUser(id int64) (*User, error) { return get[User](s.db, KindUser, id) }
func (s *Store) GetUserByFedID(fedID, componentID int64) (*User, error) {
	return getByFedID[User](s.db, KindUser, fedID, componentID)
}
func (s *Store) SaveUser(u *User) error { return save(s.db, KindUser, u) }

func (s *Store) GetActionType(id int64) (*ActionType, error) {
	return get[ActionType](s.db, KindActionType, id)
}
func (s *Store) GetActionTypeByFedID(fedID, componentID int64) (*ActionType, error) {
	return getByFedID[ActionType](s.db, KindActionType, fedID, componentID)
}
func (s *Store) SaveActionType(a *ActionType) error { return save(s.db, KindActionType, a) }

func (s *Store) GetInstrument(id int64) (*Instrument, error) {
	return get[Instrument](s.db, KindInstrument, id)
}
func (s *Store) GetInstrumentByFedID(fedID, componentID int64) (*Instrument, error) {
	return getByFedID[Instrument](s.db, KindInstrument, fedID, componentID)
}
func (s *Store) SaveInstrument(i *Instrument) error { return save(s.db, KindInstrument, i) }

func (s *Store) GetAction(id int64) (*Action, error) { return get[Action](s.db, KindAction, id) }
func (s *Store) GetActionByFedID(fedID, componentID int64) (*Action, error) {
	return getByFedID[Action](s.db, KindAction, fedID, componentID)
}
func (s *Store) SaveAction(a *Action) error { return save(s.db, KindAction, a) }

func (s *Store) GetLocationType(id int64) (*LocationType, error) {
	return get[LocationType](s.db, KindLocationType, id)
}
func (s *Store) GetLocationTypeByFedID(fedID, componentID int64) (*LocationType, error) {
	return getByFedID[LocationType](s.db, KindLocationType, fedID, componentID)
}
func (s *Store) SaveLocationType(l *LocationType) error { return save(s.db, KindLocationType, l) }

func (s *Store) GetComment(id int64) (*Comment, error) { return get[Comment](s.db, KindComment, id) }
func (s *Store) GetCommentByFedID(fedID, componentID int64) (*Comment, error) {
	return getByFedID[Comment](s.db, KindComment, fedID, componentID)
}
func (s *Store) SaveComment(c *Comment) error { return save(s.db, KindComment, c) }

// GetComments returns the comments of an object ordered by creation time.
func (s *Store) GetComments(objectID int64) ([]Comment, error) {
	var rows []Comment
	if err := s.db.Where("object_id = ?", objectID).Order("utc_datetime ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return rows, nil
}

func (s *Store) GetFile(id int64) (*File, error) { return get[File](s.db, KindFile, id) }
func (s *Store) GetFileByFedID(fedID, componentID int64) (*File, error) {
	return getByFedID[File](s.db, KindFile, fedID, componentID)
}
func (s *Store) SaveFile(f *File) error { return save(s.db, KindFile, f) }

// GetFiles returns the files of an object ordered by upload time.
func (s *Store) GetFiles(objectID int64) ([]File, error) {
	var rows []File
	if err := s.db.Where("object_id = ?", objectID).Order("utc_datetime ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return rows, nil
}

func (s *Store) GetObjectLocationAssignment(id int64) (*ObjectLocationAssignment, error) {
	return get[ObjectLocationAssignment](s.db, KindObjectLocationAssignment, id)
}
func (s *Store) GetObjectLocationAssignmentByFedID(fedID, componentID int64) (*ObjectLocationAssignment, error) {
	return getByFedID[ObjectLocationAssignment](s.db, KindObjectLocationAssignment, fedID, componentID)
}
func (s *Store) SaveObjectLocationAssignment(a *ObjectLocationAssignment) error {
	return save(s.db, KindObjectLocationAssignment, a)
}

// GetObjectLocationAssignments returns the assignments of an object, oldest first.
func (s *Store) GetObjectLocationAssignments(objectID int64) ([]ObjectLocationAssignment, error) {
	var rows []ObjectLocationAssignment
	if err := s.db.Where("object_id = ?", objectID).Order("utc_datetime ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list object location assignments: %w", err)
	}
	return rows, nil
}

// CreateGroup creates a basic group.
func (s *Store) CreateGroup(name string) (*Group, error) {
	g := &Group{Name: name}
	if err := s.db.Create(g).Error; err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

// GetGroup returns nil, nil when the group does not exist.
func (s *Store) GetGroup(id int64) (*Group, error) {
	var g Group
	if err := s.db.First(&g, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &g, nil
}

// CreateProject creates a project; ceiling may be nil.
func (s *Store) CreateProject(name string, ceiling *string) (*Project, error) {
	p := &Project{Name: name, PermissionCeiling: ceiling}
	if err := s.db.Create(p).Error; err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

// GetProject returns nil, nil when the project does not exist.
func (s *Store) GetProject(id int64) (*Project, error) {
	var p Project
	if err := s.db.First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}
