package models

import "time"

// Placeholder values for required property fields when the seeding listing
// left them empty. Keeping these columns NOT NULL spares every downstream
// consumer from nil checks.
const (
	UnknownAddress = "Sin dirección"
	UnknownColonia = "Desconocida"
	UnknownCity    = "Desconocida"
	UnknownState   = "Desconocido"
)

const (
	// InitialConfidence is the confidence score of a freshly created property.
	InitialConfidence = 50
	// ConfidencePerMerge is added for every additional listing merged in.
	ConfidencePerMerge = 10
	// MaxConfidence caps the confidence score.
	MaxConfidence = 100
)

// PropertyStatus is the lifecycle state of a canonical property.
type PropertyStatus string

const (
	PropertyStatusActive PropertyStatus = "active"
)

// Property is the canonical merged entity for one physical unit. Address,
// Colonia, City, State and PropertyType are never empty; unknown values carry
// the placeholder constants above.
type Property struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Address        string  `gorm:"not null" json:"address"`
	InteriorNumber *string `gorm:"size:20" json:"interior_number"`
	Colonia        string  `gorm:"not null" json:"colonia"`
	City           string  `gorm:"not null;index" json:"city"`
	State          string  `gorm:"not null" json:"state"`
	PostalCode     *string `gorm:"size:10" json:"postal_code"`

	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	PropertyType  PropertyType `gorm:"size:20;not null" json:"property_type"`
	Subtype       *string      `gorm:"size:50" json:"subtype"`
	Bedrooms      *int         `json:"bedrooms"`
	Bathrooms     *int         `json:"bathrooms"`
	HalfBathrooms *int         `json:"half_bathrooms"`
	ParkingSpots  *int         `json:"parking_spots"`
	LotSizeM2     *float64     `json:"lot_size_m2"`
	BuiltSizeM2   *float64     `json:"built_size_m2"`
	AgeYears      *int         `json:"age_years"`
	Amenities     StringSlice  `gorm:"type:text" json:"amenities"`

	ListingsCount   int            `gorm:"not null;default:1" json:"listings_count"`
	ConfidenceScore int            `gorm:"not null;default:50" json:"confidence_score"`
	Status          PropertyStatus `gorm:"size:20;not null;default:active" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
