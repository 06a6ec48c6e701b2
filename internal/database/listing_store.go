package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"propmatch/server/internal/models"
)

// ListingStore reads listings and owns their dedup-state columns. Scraped
// columns are never written here.
type ListingStore struct {
	db *gorm.DB
}

func NewListingStore(db *gorm.DB) *ListingStore {
	return &ListingStore{db: db}
}

// Get loads a listing with its operations.
func (s *ListingStore) Get(id uint) (*models.Listing, error) {
	var listing models.Listing
	if err := s.db.Preload("Operations").First(&listing, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load listing %d: %w", id, err)
	}
	return &listing, nil
}

// GetTx is Get inside an existing transaction.
func (s *ListingStore) GetTx(tx *gorm.DB, id uint) (*models.Listing, error) {
	var listing models.Listing
	if err := tx.Preload("Operations").First(&listing, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load listing %d: %w", id, err)
	}
	return &listing, nil
}

// Create persists a listing together with its operations.
func (s *ListingStore) Create(listing *models.Listing) error {
	if err := s.db.Create(listing).Error; err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

// PendingIDs returns up to limit listings still waiting for a dedup pass,
// oldest first.
func (s *ListingStore) PendingIDs(limit int) ([]uint, error) {
	var ids []uint
	err := s.db.Model(&models.Listing{}).
		Where("dedup_status = ?", models.DedupStatusPending).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending listings: %w", err)
	}
	return ids, nil
}

// MarkStatus records the outcome of a dedup pass: the new status, the linked
// property (nil for needs_review) and the check timestamp, in one write.
func (s *ListingStore) MarkStatus(tx *gorm.DB, id uint, status models.DedupStatus, propertyID *uint) error {
	now := time.Now()
	updates := map[string]interface{}{
		"dedup_status":     status,
		"dedup_checked_at": now,
	}
	if propertyID != nil {
		updates["property_id"] = *propertyID
	}
	if err := tx.Model(&models.Listing{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to mark listing %d as %s: %w", id, status, err)
	}
	return nil
}

// CountByStatus returns the number of listings per dedup status.
func (s *ListingStore) CountByStatus() (map[models.DedupStatus]int64, error) {
	type row struct {
		DedupStatus models.DedupStatus
		Count       int64
	}
	var rows []row
	err := s.db.Model(&models.Listing{}).
		Select("dedup_status, COUNT(*) as count").
		Group("dedup_status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count listings by status: %w", err)
	}
	counts := make(map[models.DedupStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.DedupStatus] = r.Count
	}
	return counts, nil
}
