package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// GetComponent returns the component with the given local id.
func (s *Store) GetComponent(id int64) (*Component, error) {
	return get[Component](s.db, KindComponent, id)
}

// GetComponentByUUID returns the component registered under uuid.
// Malformed UUIDs yield ErrInvalidComponentUUID.
func (s *Store) GetComponentByUUID(componentUUID string) (*Component, error) {
	canonical := canonicalUUID(componentUUID)
	if canonical == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidComponentUUID, componentUUID)
	}
	var c Component
	if err := s.db.Where("uuid = ?", canonical).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &DoesNotExistError{Kind: KindComponent, UUID: canonical}
		}
		return nil, fmt.Errorf("get component by uuid: %w", err)
	}
	return &c, nil
}

// AddComponent registers a new peer. The local instance cannot be registered.
func (s *Store) AddComponent(componentUUID string, name, address *string, description string) (*Component, error) {
	canonical := canonicalUUID(componentUUID)
	if canonical == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidComponentUUID, componentUUID)
	}
	if canonical == s.localUUID {
		return nil, fmt.Errorf("%w: %s is the local federation uuid", ErrInvalidComponentUUID, canonical)
	}
	c := &Component{
		UUID:        canonical,
		Name:        name,
		Address:     address,
		Description: description,
	}
	if err := s.db.Create(c).Error; err != nil {
		return nil, fmt.Errorf("add component: %w", err)
	}
	return c, nil
}

// GetOrAddComponent returns the component registered under uuid, adding a
// bare entry if the peer is not yet known.
func (s *Store) GetOrAddComponent(componentUUID string) (*Component, error) {
	c, err := s.GetComponentByUUID(componentUUID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrComponentDoesNotExist) {
		return nil, err
	}
	return s.AddComponent(componentUUID, nil, nil, "")
}

// UpdateComponent changes the descriptive fields of a component.
func (s *Store) UpdateComponent(id int64, name, address *string, description string) error {
	result := s.db.Model(&Component{}).Where("id = ?", id).Updates(map[string]any{
		"name":        name,
		"address":     address,
		"description": description,
	})
	if result.Error != nil {
		return fmt.Errorf("update component: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return NotFound(KindComponent, id)
	}
	return nil
}

// TouchComponentSync records the time of the last successful update batch.
func (s *Store) TouchComponentSync(id int64, at time.Time) error {
	if err := s.db.Model(&Component{}).Where("id = ?", id).Update("last_sync_timestamp", at).Error; err != nil {
		return fmt.Errorf("update component sync timestamp: %w", err)
	}
	return nil
}

// ListComponents returns all registered components ordered by id.
func (s *Store) ListComponents() ([]Component, error) {
	var rows []Component
	if err := s.db.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	return rows, nil
}

// ComponentUUID returns the UUID for an optional component id; nil means the
// local instance.
func (s *Store) ComponentUUID(componentID *int64) (string, error) {
	if componentID == nil {
		return s.localUUID, nil
	}
	c, err := s.GetComponent(*componentID)
	if err != nil {
		return "", err
	}
	return c.UUID, nil
}
