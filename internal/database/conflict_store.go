package database

import (
	"fmt"

	"gorm.io/gorm"

	"propmatch/server/internal/models"
)

// ConflictStore persists merge-conflict audit rows.
type ConflictStore struct {
	db *gorm.DB
}

func NewConflictStore(db *gorm.DB) *ConflictStore {
	return &ConflictStore{db: db}
}

// ListForProperty returns every conflict recorded against the property.
func (s *ConflictStore) ListForProperty(propertyID uint) ([]models.Conflict, error) {
	var conflicts []models.Conflict
	err := s.db.Where("property_id = ?", propertyID).Order("id").Find(&conflicts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts for property %d: %w", propertyID, err)
	}
	return conflicts, nil
}

// UnresolvedCount returns how many conflicts still await review.
func (s *ConflictStore) UnresolvedCount() (int64, error) {
	var count int64
	err := s.db.Model(&models.Conflict{}).Where("resolved = ?", false).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unresolved conflicts: %w", err)
	}
	return count, nil
}
