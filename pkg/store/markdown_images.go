package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoreMarkdownImage saves image content under fileName, replacing any previous
// content with the same name.
func (s *Store) StoreMarkdownImage(fileName string, content []byte, userID *int64, at time.Time, permanent bool) error {
	img := &MarkdownImage{
		FileName:    fileName,
		Content:     content,
		UserID:      userID,
		UTCDatetime: at.UTC(),
		Permanent:   permanent,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "user_id", "utc_datetime", "permanent"}),
	}).Create(img).Error
	if err != nil {
		return fmt.Errorf("store markdown image: %w", err)
	}
	return nil
}

// GetMarkdownImage returns nil, nil if no image with that name exists.
func (s *Store) GetMarkdownImage(fileName string) (*MarkdownImage, error) {
	var img MarkdownImage
	if err := s.db.First(&img, "file_name = ?", fileName).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get markdown image: %w", err)
	}
	return &img, nil
}

// MarkMarkdownImagesPermanent flags the named images as referenced.
func (s *Store) MarkMarkdownImagesPermanent(fileNames []string) error {
	if len(fileNames) == 0 {
		return nil
	}
	if err := s.db.Model(&MarkdownImage{}).Where("file_name IN ?", fileNames).Update("permanent", true).Error; err != nil {
		return fmt.Errorf("mark markdown images permanent: %w", err)
	}
	return nil
}
