package models

import "time"

// CandidateStatus is the decided state of a pairwise comparison.
type CandidateStatus string

const (
	CandidateStatusPending            CandidateStatus = "pending"
	CandidateStatusConfirmedMatch     CandidateStatus = "confirmed_match"
	CandidateStatusConfirmedDifferent CandidateStatus = "confirmed_different"
	CandidateStatusNeedsReview        CandidateStatus = "needs_review"
)

// Candidate records one scored comparison between two listings. The pair is
// stored in canonical order (ListingAID < ListingBID) and is unique; two
// listings are never compared twice.
type Candidate struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	ListingAID uint `gorm:"not null;uniqueIndex:idx_candidates_pair" json:"listing_a_id"`
	ListingBID uint `gorm:"not null;uniqueIndex:idx_candidates_pair" json:"listing_b_id"`

	DistanceM       *float64 `json:"distance_m"`
	CoordinateScore float64  `json:"coordinate_score"`
	AddressScore    float64  `json:"address_score"`
	FeaturesScore   float64  `json:"features_score"`
	OverallScore    float64  `gorm:"index" json:"overall_score"`

	Status             CandidateStatus `gorm:"size:25;not null;default:pending;index" json:"status"`
	ResolvedPropertyID *uint           `json:"resolved_property_id"`
	ResolvedAt         *time.Time      `json:"resolved_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizePair returns the two listing IDs in canonical order.
func NormalizePair(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}

// Other returns the listing on the opposite side of the pair.
func (c *Candidate) Other(listingID uint) uint {
	if c.ListingAID == listingID {
		return c.ListingBID
	}
	return c.ListingAID
}

// Involves reports whether the candidate references the given listing.
func (c *Candidate) Involves(listingID uint) bool {
	return c.ListingAID == listingID || c.ListingBID == listingID
}
