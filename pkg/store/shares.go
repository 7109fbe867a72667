package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertObjectShare creates or replaces the share of an object with a component.
// It reports whether the share already existed.
func (s *Store) UpsertObjectShare(share *ObjectShare) (bool, error) {
	existing, err := s.GetObjectShare(share.ObjectID, share.ComponentID)
	if err != nil {
		return false, err
	}
	if share.UTCDatetime.IsZero() {
		share.UTCDatetime = time.Now().UTC()
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "object_id"}, {Name: "component_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"policy", "utc_datetime", "user_id"}),
	}).Create(share).Error
	if err != nil {
		return false, fmt.Errorf("upsert object share: %w", err)
	}
	return existing != nil, nil
}

// GetObjectShare returns nil, nil if the object is not shared with the component.
func (s *Store) GetObjectShare(objectID, componentID int64) (*ObjectShare, error) {
	var share ObjectShare
	err := s.db.Where("object_id = ? AND component_id = ?", objectID, componentID).First(&share).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get object share: %w", err)
	}
	return &share, nil
}

// ListObjectSharesForComponent returns all shares with a component, by object id.
func (s *Store) ListObjectSharesForComponent(componentID int64) ([]ObjectShare, error) {
	var rows []ObjectShare
	if err := s.db.Where("component_id = ?", componentID).Order("object_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list object shares: %w", err)
	}
	return rows, nil
}
