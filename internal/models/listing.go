package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PropertyType classifies the physical unit a listing describes.
type PropertyType string

const (
	PropertyTypeHouse      PropertyType = "house"
	PropertyTypeApartment  PropertyType = "apartment"
	PropertyTypeLand       PropertyType = "land"
	PropertyTypeCommercial PropertyType = "commercial"
	PropertyTypeOffice     PropertyType = "office"
	PropertyTypeWarehouse  PropertyType = "warehouse"
	PropertyTypeRoom       PropertyType = "room"
	PropertyTypeOther      PropertyType = "other"
)

// DedupStatus tracks where a listing sits in the deduplication lifecycle.
type DedupStatus string

const (
	DedupStatusPending     DedupStatus = "pending"
	DedupStatusNew         DedupStatus = "new"
	DedupStatusMatched     DedupStatus = "matched"
	DedupStatusNeedsReview DedupStatus = "needs_review"
)

// Terminal reports whether re-processing the listing would be a no-op.
func (s DedupStatus) Terminal() bool {
	return s == DedupStatusNew || s == DedupStatusMatched
}

// OperationType is the commercial offer kind of a listing operation.
type OperationType string

const (
	OperationRent OperationType = "rent"
	OperationSale OperationType = "sale"
)

// StringSlice stores a []string as a JSON TEXT column.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("cannot scan %T into StringSlice", value)
	}
}

// Listing is one scraped posting from one platform. Scraped fields are
// immutable; only the dedup pipeline touches DedupStatus, PropertyID and
// DedupCheckedAt.
type Listing struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Source     string `gorm:"size:50;not null;uniqueIndex:idx_listings_source_external" json:"source"`
	ExternalID string `gorm:"size:100;not null;uniqueIndex:idx_listings_source_external" json:"external_id"`

	Latitude   *float64 `gorm:"index:idx_listings_coordinates" json:"latitude"`
	Longitude  *float64 `gorm:"index:idx_listings_coordinates" json:"longitude"`
	Address        *string `json:"address"`
	InteriorNumber *string `gorm:"size:20" json:"interior_number"`
	Colonia    *string  `json:"colonia"`
	City       *string  `json:"city"`
	State      *string  `json:"state"`
	PostalCode *string  `gorm:"size:10" json:"postal_code"`

	PropertyType   *PropertyType `gorm:"size:20" json:"property_type"`
	Subtype        *string       `gorm:"size:50" json:"subtype"`
	Bedrooms       *int          `json:"bedrooms"`
	Bathrooms      *int          `json:"bathrooms"`
	HalfBathrooms  *int          `json:"half_bathrooms"`
	ParkingSpots   *int          `json:"parking_spots"`
	LotSizeM2      *float64      `json:"lot_size_m2"`
	BuiltSizeM2    *float64      `json:"built_size_m2"`
	AgeYears       *int          `json:"age_years"`
	Amenities      StringSlice   `gorm:"type:text" json:"amenities"`
	Operations     []Operation   `json:"operations"`

	DedupStatus    DedupStatus `gorm:"size:20;not null;default:pending;index" json:"dedup_status"`
	PropertyID     *uint       `gorm:"index" json:"property_id"`
	DedupCheckedAt *time.Time  `json:"dedup_checked_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Operation is one commercial offer (rent or sale) attached to a listing.
type Operation struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	ListingID uint          `gorm:"not null;index" json:"listing_id"`
	Type      OperationType `gorm:"size:10;not null" json:"type"`
	Price     float64       `gorm:"not null" json:"price"`
	Currency  string        `gorm:"size:3;not null;default:MXN" json:"currency"`
}

// HasCoordinates reports whether the listing is eligible for proximity search.
func (l *Listing) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// OperationTypes returns the set of operation types present on the listing.
func (l *Listing) OperationTypes() map[OperationType]bool {
	types := make(map[OperationType]bool, len(l.Operations))
	for _, op := range l.Operations {
		types[op.Type] = true
	}
	return types
}

// PriceFor returns the price of the first operation matching the given type
// and currency, or false if the listing has none.
func (l *Listing) PriceFor(t OperationType, currency string) (float64, bool) {
	for _, op := range l.Operations {
		if op.Type == t && op.Currency == currency && op.Price > 0 {
			return op.Price, true
		}
	}
	return 0, false
}

// ComparableSize returns built size, falling back to lot size.
func (l *Listing) ComparableSize() (float64, bool) {
	if l.BuiltSizeM2 != nil && *l.BuiltSizeM2 > 0 {
		return *l.BuiltSizeM2, true
	}
	if l.LotSizeM2 != nil && *l.LotSizeM2 > 0 {
		return *l.LotSizeM2, true
	}
	return 0, false
}
