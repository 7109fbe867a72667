package store

import (
	"fmt"
)

func (s *Store) GetLocation(id int64) (*Location, error) { return get[Location](s.db, KindLocation, id) }
func (s *Store) GetLocationByFedID(fedID, componentID int64) (*Location, error) {
	return getByFedID[Location](s.db, KindLocation, fedID, componentID)
}
func (s *Store) SaveLocation(l *Location) error { return save(s.db, KindLocation, l) }

// ParentLocationID returns the parent of a persisted location, nil for roots.
func (s *Store) ParentLocationID(id int64) (*int64, error) {
	var ids []*int64
	if err := s.db.Model(&Location{}).Where("id = ?", id).Pluck("parent_location_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("get parent location: %w", err)
	}
	if len(ids) == 0 {
		return nil, NotFound(KindLocation, id)
	}
	return ids[0], nil
}

// SetLocationResponsibleUsers replaces the responsible users of a location.
func (s *Store) SetLocationResponsibleUsers(locationID int64, userIDs []int64) error {
	if err := s.db.Where("location_id = ?", locationID).Delete(&LocationResponsibleUser{}).Error; err != nil {
		return fmt.Errorf("clear responsible users: %w", err)
	}
	seen := make(map[int64]bool, len(userIDs))
	for _, uid := range userIDs {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		if err := s.db.Create(&LocationResponsibleUser{LocationID: locationID, UserID: uid}).Error; err != nil {
			return fmt.Errorf("add responsible user: %w", err)
		}
	}
	return nil
}

// GetLocationResponsibleUsers returns the responsible user ids, ascending.
func (s *Store) GetLocationResponsibleUsers(locationID int64) ([]int64, error) {
	var ids []int64
	err := s.db.Model(&LocationResponsibleUser{}).
		Where("location_id = ?", locationID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list responsible users: %w", err)
	}
	return ids, nil
}
