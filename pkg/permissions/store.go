package permissions

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserObjectPermission grants a user a level on an object.
type UserObjectPermission struct {
	ObjectID int64 `gorm:"primaryKey;column:object_id"`
	UserID   int64 `gorm:"primaryKey;column:user_id"`
	Level    Level `gorm:"column:level;type:varchar(8);not null"`
}

// TableName returns the GORM table name.
func (UserObjectPermission) TableName() string { return "user_object_permissions" }

// GroupObjectPermission grants the members of a group a level on an object.
type GroupObjectPermission struct {
	ObjectID int64 `gorm:"primaryKey;column:object_id"`
	GroupID  int64 `gorm:"primaryKey;column:group_id"`
	Level    Level `gorm:"column:level;type:varchar(8);not null"`
}

// TableName returns the GORM table name.
func (GroupObjectPermission) TableName() string { return "group_object_permissions" }

// ProjectObjectPermission grants the members of a project a level on an object.
type ProjectObjectPermission struct {
	ObjectID  int64 `gorm:"primaryKey;column:object_id"`
	ProjectID int64 `gorm:"primaryKey;column:project_id"`
	Level     Level `gorm:"column:level;type:varchar(8);not null"`
}

// TableName returns the GORM table name.
func (ProjectObjectPermission) TableName() string { return "project_object_permissions" }

// AllUserObjectPermission grants every signed-in user a level on an object.
type AllUserObjectPermission struct {
	ObjectID int64 `gorm:"primaryKey;column:object_id"`
	Level    Level `gorm:"column:level;type:varchar(8);not null"`
}

// TableName returns the GORM table name.
func (AllUserObjectPermission) TableName() string { return "all_user_object_permissions" }

// ObjectGrants is the full set of explicit grants on one object.
type ObjectGrants struct {
	Users    map[int64]Level
	Groups   map[int64]Level
	Projects map[int64]Level
	AllUsers Level
}

// Store persists object permissions.
type Store struct {
	db *gorm.DB
}

// NewStore creates a permission store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithDB returns a store bound to db, e.g. a transaction.
func (s *Store) WithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates the permission tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&UserObjectPermission{},
		&GroupObjectPermission{},
		&ProjectObjectPermission{},
		&AllUserObjectPermission{},
	)
}

// set upserts row, or deletes the matching row when level is None.
func (s *Store) set(row any, level Level, keys []string, where string, args ...any) error {
	if level == None {
		return s.db.Where(where, args...).Delete(row).Error
	}
	cols := make([]clause.Column, len(keys))
	for i, k := range keys {
		cols[i] = clause.Column{Name: k}
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   cols,
		DoUpdates: clause.AssignmentColumns([]string{"level"}),
	}).Create(row).Error
}

// SetUserObjectPermissions sets the level of a user on an object.
func (s *Store) SetUserObjectPermissions(objectID, userID int64, level Level) error {
	row := &UserObjectPermission{ObjectID: objectID, UserID: userID, Level: level}
	if err := s.set(row, level, []string{"object_id", "user_id"}, "object_id = ? AND user_id = ?", objectID, userID); err != nil {
		return fmt.Errorf("set user object permissions: %w", err)
	}
	return nil
}

// SetGroupObjectPermissions sets the level of a group on an object.
func (s *Store) SetGroupObjectPermissions(objectID, groupID int64, level Level) error {
	row := &GroupObjectPermission{ObjectID: objectID, GroupID: groupID, Level: level}
	if err := s.set(row, level, []string{"object_id", "group_id"}, "object_id = ? AND group_id = ?", objectID, groupID); err != nil {
		return fmt.Errorf("set group object permissions: %w", err)
	}
	return nil
}

// SetProjectObjectPermissions sets the level of a project on an object.
func (s *Store) SetProjectObjectPermissions(objectID, projectID int64, level Level) error {
	row := &ProjectObjectPermission{ObjectID: objectID, ProjectID: projectID, Level: level}
	if err := s.set(row, level, []string{"object_id", "project_id"}, "object_id = ? AND project_id = ?", objectID, projectID); err != nil {
		return fmt.Errorf("set project object permissions: %w", err)
	}
	return nil
}

// SetAllUserObjectPermissions sets the level every user has on an object.
func (s *Store) SetAllUserObjectPermissions(objectID int64, level Level) error {
	row := &AllUserObjectPermission{ObjectID: objectID, Level: level}
	if err := s.set(row, level, []string{"object_id"}, "object_id = ?", objectID); err != nil {
		return fmt.Errorf("set all user object permissions: %w", err)
	}
	return nil
}

// GetUserObjectPermissions returns the explicit level of a user, None if unset.
func (s *Store) GetUserObjectPermissions(objectID, userID int64) (Level, error) {
	var row UserObjectPermission
	err := s.db.Where("object_id = ? AND user_id = ?", objectID, userID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return None, nil
		}
		return None, fmt.Errorf("get user object permissions: %w", err)
	}
	return row.Level, nil
}

// GetObjectGrants returns all explicit grants on an object.
func (s *Store) GetObjectGrants(objectID int64) (*ObjectGrants, error) {
	grants := &ObjectGrants{
		Users:    map[int64]Level{},
		Groups:   map[int64]Level{},
		Projects: map[int64]Level{},
	}

	var users []UserObjectPermission
	if err := s.db.Where("object_id = ?", objectID).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list user object permissions: %w", err)
	}
	for _, u := range users {
		grants.Users[u.UserID] = u.Level
	}

	var groups []GroupObjectPermission
	if err := s.db.Where("object_id = ?", objectID).Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("list group object permissions: %w", err)
	}
	for _, g := range groups {
		grants.Groups[g.GroupID] = g.Level
	}

	var projects []ProjectObjectPermission
	if err := s.db.Where("object_id = ?", objectID).Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("list project object permissions: %w", err)
	}
	for _, p := range projects {
		grants.Projects[p.ProjectID] = p.Level
	}

	var all AllUserObjectPermission
	err := s.db.Where("object_id = ?", objectID).First(&all).Error
	switch {
	case err == nil:
		grants.AllUsers = all.Level
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("get all user object permissions: %w", err)
	}
	return grants, nil
}
