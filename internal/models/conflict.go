package models

import "time"

// Conflict is an audit record for one field disagreement detected while
// merging a listing into a property. The merge itself is never blocked; the
// winning value is decided by policy and the disagreement is kept for review.
type Conflict struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	PropertyID uint `gorm:"not null;index" json:"property_id"`
	ListingID  uint `gorm:"not null;index" json:"listing_id"`

	Field          string `gorm:"size:50;not null" json:"field"`
	CanonicalValue string `json:"canonical_value"`
	SourceValue    string `json:"source_value"`

	Resolved   bool    `gorm:"not null;default:false;index" json:"resolved"`
	Resolution *string `json:"resolution"`

	CreatedAt time.Time `json:"created_at"`
}
