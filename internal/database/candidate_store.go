package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"propmatch/server/internal/models"
)

// CandidateStore persists pairwise comparison records. Pairs are stored in
// canonical order and are unique; insertion is atomic insert-or-fetch so two
// workers discovering the same pair from opposite listings cannot clash.
type CandidateStore struct {
	db *gorm.DB
}

func NewCandidateStore(db *gorm.DB) *CandidateStore {
	return &CandidateStore{db: db}
}

// FindPair returns the candidate for the given pair, or nil if the pair has
// never been compared. The IDs may be passed in any order.
func (s *CandidateStore) FindPair(a, b uint) (*models.Candidate, error) {
	a, b = models.NormalizePair(a, b)
	var cand models.Candidate
	err := s.db.Where("listing_a_id = ? AND listing_b_id = ?", a, b).First(&cand).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find candidate pair (%d,%d): %w", a, b, err)
	}
	return &cand, nil
}

// GetOrCreate inserts the candidate unless its pair already exists, in which
// case the existing record is returned untouched. The returned bool reports
// whether a new row was created.
func (s *CandidateStore) GetOrCreate(cand *models.Candidate) (*models.Candidate, bool, error) {
	cand.ListingAID, cand.ListingBID = models.NormalizePair(cand.ListingAID, cand.ListingBID)

	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "listing_a_id"}, {Name: "listing_b_id"}},
		DoNothing: true,
	}).Create(cand)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create candidate: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return cand, true, nil
	}

	// Lost the race or the pair predates this pass: reuse what is there.
	existing, err := s.FindPair(cand.ListingAID, cand.ListingBID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("candidate pair (%d,%d) vanished after conflict", cand.ListingAID, cand.ListingBID)
	}
	return existing, false, nil
}

// Get loads a candidate by ID.
func (s *CandidateStore) Get(id uint) (*models.Candidate, error) {
	var cand models.Candidate
	if err := s.db.First(&cand, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load candidate %d: %w", id, err)
	}
	return &cand, nil
}

// FindForListing returns every candidate referencing the listing.
func (s *CandidateStore) FindForListing(listingID uint) ([]models.Candidate, error) {
	var cands []models.Candidate
	err := s.db.
		Where("listing_a_id = ? OR listing_b_id = ?", listingID, listingID).
		Order("overall_score DESC").
		Find(&cands).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates for listing %d: %w", listingID, err)
	}
	return cands, nil
}

// Resolve marks the candidate as a confirmed match linked to the property.
func (s *CandidateStore) Resolve(tx *gorm.DB, id uint, propertyID uint) error {
	now := time.Now()
	err := tx.Model(&models.Candidate{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":               models.CandidateStatusConfirmedMatch,
		"resolved_property_id": propertyID,
		"resolved_at":          now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to resolve candidate %d: %w", id, err)
	}
	return nil
}

// Reject marks the candidate as confirmed different.
func (s *CandidateStore) Reject(tx *gorm.DB, id uint) error {
	now := time.Now()
	err := tx.Model(&models.Candidate{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      models.CandidateStatusConfirmedDifferent,
		"resolved_at": now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to reject candidate %d: %w", id, err)
	}
	return nil
}

// Count returns the total number of candidate records.
func (s *CandidateStore) Count() (int64, error) {
	var count int64
	if err := s.db.Model(&models.Candidate{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count candidates: %w", err)
	}
	return count, nil
}
