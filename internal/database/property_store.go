package database

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"propmatch/server/internal/models"
)

// PropertyStore persists canonical properties.
type PropertyStore struct {
	db *gorm.DB
}

func NewPropertyStore(db *gorm.DB) *PropertyStore {
	return &PropertyStore{db: db}
}

// Get loads a property by ID.
func (s *PropertyStore) Get(id uint) (*models.Property, error) {
	var prop models.Property
	if err := s.db.First(&prop, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load property %d: %w", id, err)
	}
	return &prop, nil
}

// GetForUpdate loads a property with a row lock so concurrent merges against
// the same property serialize. SQLite serializes writers anyway; the locking
// clause matters on databases that do not.
func (s *PropertyStore) GetForUpdate(tx *gorm.DB, id uint) (*models.Property, error) {
	var prop models.Property
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&prop, id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock property %d: %w", id, err)
	}
	return &prop, nil
}

// LinkedListingCount returns how many listings currently point at the property.
func (s *PropertyStore) LinkedListingCount(tx *gorm.DB, id uint) (int64, error) {
	var count int64
	err := tx.Model(&models.Listing{}).Where("property_id = ?", id).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count listings of property %d: %w", id, err)
	}
	return count, nil
}

// Count returns the total number of properties.
func (s *PropertyStore) Count() (int64, error) {
	var count int64
	if err := s.db.Model(&models.Property{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count properties: %w", err)
	}
	return count, nil
}
