package store

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/zeebo/blake3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) GetObject(id int64) (*Object, error) { return get[Object](s.db, KindObject, id) }
func (s *Store) GetObjectByFedID(fedID, componentID int64) (*Object, error) {
	return getByFedID[Object](s.db, KindObject, fedID, componentID)
}
func (s *Store) SaveObject(o *Object) error { return save(s.db, KindObject, o) }

// CreateObject creates a local object with an initial version 0.
func (s *Store) CreateObject(actionID *int64, data, schema JSONAny, userID *int64, at time.Time) (*Object, error) {
	obj := &Object{ActionID: actionID}
	if err := s.db.Create(obj).Error; err != nil {
		return nil, fmt.Errorf("create object: %w", err)
	}
	at = at.UTC()
	version := &ObjectVersion{
		ObjectID:    obj.ID,
		VersionID:   0,
		Data:        data,
		Schema:      schema,
		UserID:      userID,
		UTCDatetime: &at,
	}
	if _, err := s.PutObjectVersion(version); err != nil {
		return nil, err
	}
	return s.GetObject(obj.ID)
}

// VersionDigest returns the blake3 digest over the content of a version.
func VersionDigest(v *ObjectVersion) string {
	content := map[string]any{
		"data":    v.Data,
		"schema":  v.Schema,
		"user_id": v.UserID,
	}
	if v.UTCDatetime != nil {
		content["utc_datetime"] = v.UTCDatetime.UTC().Format(time.RFC3339Nano)
	}
	// map keys are marshalled in sorted order, so the encoding is canonical
	b, _ := json.Marshal(content)
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// GetObjectVersions returns all versions of an object sorted by version_id.
func (s *Store) GetObjectVersions(objectID int64) ([]ObjectVersion, error) {
	if err := s.MustExist(KindObject, objectID); err != nil {
		return nil, err
	}
	var rows []ObjectVersion
	if err := s.db.Where("object_id = ?", objectID).Order("version_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list object versions: %w", err)
	}
	return rows, nil
}

// GetObjectVersion returns nil, nil if the version does not exist.
func (s *Store) GetObjectVersion(objectID, versionID int64) (*ObjectVersion, error) {
	var v ObjectVersion
	err := s.db.Where("object_id = ? AND version_id = ?", objectID, versionID).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get object version: %w", err)
	}
	return &v, nil
}

// GetCurrentObjectVersion returns the version with the highest version_id, or
// nil if the object has no versions (e.g. a placeholder).
func (s *Store) GetCurrentObjectVersion(objectID int64) (*ObjectVersion, error) {
	obj, err := s.GetObject(objectID)
	if err != nil {
		return nil, err
	}
	if obj.CurrentVersionID == nil {
		return nil, nil
	}
	return s.GetObjectVersion(objectID, *obj.CurrentVersionID)
}

// PutObjectVersion inserts a version or replaces the content of an existing
// version with the same version_id. It reports whether anything changed; an
// identical re-import is a no-op. The object's current pointer is moved to
// the highest version_id afterwards, so out-of-order arrivals never lower it.
func (s *Store) PutObjectVersion(v *ObjectVersion) (bool, error) {
	v.ContentDigest = VersionDigest(v)

	existing, err := s.GetObjectVersion(v.ObjectID, v.VersionID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		if existing.ContentDigest == v.ContentDigest {
			*v = *existing
			return false, nil
		}
		v.ID = existing.ID
	}
	if err := s.db.Save(v).Error; err != nil {
		return false, fmt.Errorf("save object version: %w", err)
	}

	var maxVersion int64
	if err := s.db.Model(&ObjectVersion{}).
		Where("object_id = ?", v.ObjectID).
		Select("MAX(version_id)").
		Scan(&maxVersion).Error; err != nil {
		return false, fmt.Errorf("find current object version: %w", err)
	}
	if err := s.db.Model(&Object{}).Where("id = ?", v.ObjectID).
		Update("current_version_id", maxVersion).Error; err != nil {
		return false, fmt.Errorf("update current object version: %w", err)
	}
	return true, nil
}

// AdjustTagUsage moves tag usage counters from the before set to the after set.
// Tags present in both are left untouched.
func (s *Store) AdjustTagUsage(before, after []string) error {
	old := mapset.NewSet(before...)
	cur := mapset.NewSet(after...)

	for _, name := range cur.Difference(old).ToSlice() {
		err := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]any{"uses": gorm.Expr("tags.uses + 1")}),
		}).Create(&Tag{Name: name, Uses: 1}).Error
		if err != nil {
			return fmt.Errorf("increment tag %q: %w", name, err)
		}
	}
	for _, name := range old.Difference(cur).ToSlice() {
		err := s.db.Model(&Tag{}).
			Where("name = ? AND uses > 0", name).
			Update("uses", gorm.Expr("uses - 1")).Error
		if err != nil {
			return fmt.Errorf("decrement tag %q: %w", name, err)
		}
	}
	return nil
}

// TagUses returns the usage counter of a tag, 0 if unknown.
func (s *Store) TagUses(name string) (int64, error) {
	var tag Tag
	if err := s.db.First(&tag, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get tag: %w", err)
	}
	return tag.Uses, nil
}
