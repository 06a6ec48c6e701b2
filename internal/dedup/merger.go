package dedup

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"propmatch/server/config"
	"propmatch/server/internal/models"
)

// Merger creates canonical properties from listings and folds subsequent
// listings into them, recording a Conflict row for every field disagreement.
type Merger struct {
	cfg    config.Dedup
	logger *logrus.Logger
}

func NewMerger(cfg config.Dedup, logger *logrus.Logger) *Merger {
	if logger == nil {
		logger = logrus.New()
	}
	return &Merger{cfg: cfg, logger: logger}
}

// pendingConflict is a field disagreement awaiting persistence.
type pendingConflict struct {
	field     string
	canonical string
	source    string
}

// CreateFromListing seeds a new property from the listing's fields,
// substituting placeholders for required-but-missing values, and links the
// listing to it. Must run inside the caller's transaction.
func (m *Merger) CreateFromListing(tx *gorm.DB, listing *models.Listing) (*models.Property, error) {
	prop := &models.Property{
		Address:         stringOr(listing.Address, models.UnknownAddress),
		InteriorNumber:  copyString(listing.InteriorNumber),
		Colonia:         stringOr(listing.Colonia, models.UnknownColonia),
		City:            stringOr(listing.City, models.UnknownCity),
		State:           stringOr(listing.State, models.UnknownState),
		PostalCode:      copyString(listing.PostalCode),
		Latitude:        copyFloat(listing.Latitude),
		Longitude:       copyFloat(listing.Longitude),
		PropertyType:    models.PropertyTypeOther,
		Subtype:         copyString(listing.Subtype),
		Bedrooms:        copyInt(listing.Bedrooms),
		Bathrooms:       copyInt(listing.Bathrooms),
		HalfBathrooms:   copyInt(listing.HalfBathrooms),
		ParkingSpots:    copyInt(listing.ParkingSpots),
		LotSizeM2:       copyFloat(listing.LotSizeM2),
		BuiltSizeM2:     copyFloat(listing.BuiltSizeM2),
		AgeYears:        copyInt(listing.AgeYears),
		Amenities:       dedupAmenities(nil, listing.Amenities),
		ListingsCount:   1,
		ConfidenceScore: models.InitialConfidence,
		Status:          models.PropertyStatusActive,
	}
	if listing.PropertyType != nil {
		prop.PropertyType = *listing.PropertyType
	}

	if err := tx.Create(prop).Error; err != nil {
		return nil, fmt.Errorf("failed to create property: %w", err)
	}
	if err := m.linkListing(tx, listing, prop.ID); err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"property_id": prop.ID,
		"listing_id":  listing.ID,
	}).Info("Created property from listing")
	return prop, nil
}

// MergeListingIntoProperty folds the listing's fields into the property by
// the per-field policy table, unions amenities, bumps the bookkeeping
// counters and links the listing. Every field disagreement is persisted as a
// Conflict regardless of which value won. Must run inside the caller's
// transaction, with the property row locked.
func (m *Merger) MergeListingIntoProperty(tx *gorm.DB, listing *models.Listing, prop *models.Property) error {
	var conflicts []pendingConflict
	record := func(pc *pendingConflict) {
		if pc != nil {
			conflicts = append(conflicts, *pc)
		}
	}

	var pc *pendingConflict

	prop.Address, pc = mergeRequiredString("address", prop.Address, listing.Address, models.UnknownAddress)
	record(pc)
	prop.Colonia, pc = mergeRequiredString("colonia", prop.Colonia, listing.Colonia, models.UnknownColonia)
	record(pc)
	prop.City, pc = mergeRequiredString("city", prop.City, listing.City, models.UnknownCity)
	record(pc)
	prop.State, pc = mergeRequiredString("state", prop.State, listing.State, models.UnknownState)
	record(pc)
	prop.PostalCode, pc = mergeOptionalString("postal_code", prop.PostalCode, listing.PostalCode)
	record(pc)
	prop.InteriorNumber, pc = mergeOptionalString("interior_number", prop.InteriorNumber, listing.InteriorNumber)
	record(pc)
	prop.Subtype, pc = mergeOptionalString("subtype", prop.Subtype, listing.Subtype)
	record(pc)

	pc = m.mergeCoordinates(prop, listing)
	record(pc)
	pc = mergePropertyType(prop, listing)
	record(pc)

	prop.Bedrooms, pc = mergeCount("bedrooms", prop.Bedrooms, listing.Bedrooms)
	record(pc)
	prop.Bathrooms, pc = mergeCount("bathrooms", prop.Bathrooms, listing.Bathrooms)
	record(pc)
	prop.HalfBathrooms, pc = mergeCount("half_bathrooms", prop.HalfBathrooms, listing.HalfBathrooms)
	record(pc)
	prop.ParkingSpots, pc = mergeCount("parking_spots", prop.ParkingSpots, listing.ParkingSpots)
	record(pc)
	prop.AgeYears, pc = mergeCount("age_years", prop.AgeYears, listing.AgeYears)
	record(pc)

	prop.LotSizeM2, pc = mergeSize("lot_size_m2", prop.LotSizeM2, listing.LotSizeM2, m.cfg.MergeSizeTolerance)
	record(pc)
	prop.BuiltSizeM2, pc = mergeSize("built_size_m2", prop.BuiltSizeM2, listing.BuiltSizeM2, m.cfg.MergeSizeTolerance)
	record(pc)

	prop.Amenities = dedupAmenities(prop.Amenities, listing.Amenities)

	var linked int64
	if err := tx.Model(&models.Listing{}).Where("property_id = ?", prop.ID).Count(&linked).Error; err != nil {
		return fmt.Errorf("failed to count linked listings: %w", err)
	}
	prop.ListingsCount = int(linked) + 1
	prop.ConfidenceScore = prop.ConfidenceScore + models.ConfidencePerMerge
	if prop.ConfidenceScore > models.MaxConfidence {
		prop.ConfidenceScore = models.MaxConfidence
	}

	if err := tx.Save(prop).Error; err != nil {
		return fmt.Errorf("failed to save merged property: %w", err)
	}
	if err := m.linkListing(tx, listing, prop.ID); err != nil {
		return err
	}

	if len(conflicts) > 0 {
		rows := make([]models.Conflict, len(conflicts))
		for i, c := range conflicts {
			rows[i] = models.Conflict{
				PropertyID:     prop.ID,
				ListingID:      listing.ID,
				Field:          c.field,
				CanonicalValue: c.canonical,
				SourceValue:    c.source,
			}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to record conflicts: %w", err)
		}
	}

	m.logger.WithFields(logrus.Fields{
		"property_id":    prop.ID,
		"listing_id":     listing.ID,
		"listings_count": prop.ListingsCount,
		"conflicts":      len(conflicts),
	}).Info("Merged listing into property")
	return nil
}

func (m *Merger) linkListing(tx *gorm.DB, listing *models.Listing, propertyID uint) error {
	err := tx.Model(&models.Listing{}).Where("id = ?", listing.ID).
		Update("property_id", propertyID).Error
	if err != nil {
		return fmt.Errorf("failed to link listing %d to property %d: %w", listing.ID, propertyID, err)
	}
	listing.PropertyID = &propertyID
	return nil
}

// mergeCoordinates treats the lat/lng pair as one field. On disagreement the
// pair with more decimal precision wins; truncated coordinates lose to fuller
// geocoder output.
func (m *Merger) mergeCoordinates(prop *models.Property, listing *models.Listing) *pendingConflict {
	if !listing.HasCoordinates() {
		return nil
	}
	if prop.Latitude == nil || prop.Longitude == nil {
		prop.Latitude = copyFloat(listing.Latitude)
		prop.Longitude = copyFloat(listing.Longitude)
		return nil
	}
	tol := m.cfg.CoordEqualTolerance
	if math.Abs(*prop.Latitude-*listing.Latitude) <= tol &&
		math.Abs(*prop.Longitude-*listing.Longitude) <= tol {
		return nil
	}

	pc := &pendingConflict{
		field:     "coordinates",
		canonical: snapCoords(prop.Latitude, prop.Longitude),
		source:    snapCoords(listing.Latitude, listing.Longitude),
	}
	curPrec := decimalPrecision(*prop.Latitude) + decimalPrecision(*prop.Longitude)
	srcPrec := decimalPrecision(*listing.Latitude) + decimalPrecision(*listing.Longitude)
	if srcPrec > curPrec {
		prop.Latitude = copyFloat(listing.Latitude)
		prop.Longitude = copyFloat(listing.Longitude)
	}
	return pc
}

func mergePropertyType(prop *models.Property, listing *models.Listing) *pendingConflict {
	if listing.PropertyType == nil {
		return nil
	}
	if prop.PropertyType == models.PropertyTypeOther {
		prop.PropertyType = *listing.PropertyType
		return nil
	}
	if prop.PropertyType == *listing.PropertyType {
		return nil
	}
	// keep existing
	return &pendingConflict{
		field:     "property_type",
		canonical: string(prop.PropertyType),
		source:    string(*listing.PropertyType),
	}
}

// mergeCount prefers the non-zero value; with two conflicting non-zero
// values the existing one stays.
func mergeCount(field string, cur, src *int) (*int, *pendingConflict) {
	if src == nil {
		return cur, nil
	}
	if cur == nil {
		return copyInt(src), nil
	}
	if *cur == *src {
		return cur, nil
	}
	pc := &pendingConflict{field: field, canonical: snapInt(cur), source: snapInt(src)}
	if *cur == 0 && *src != 0 {
		return copyInt(src), pc
	}
	return cur, pc
}

// mergeSize takes the larger value on disagreement beyond tolerance.
func mergeSize(field string, cur, src *float64, tol float64) (*float64, *pendingConflict) {
	if src == nil || *src <= 0 {
		return cur, nil
	}
	if cur == nil || *cur <= 0 {
		return copyFloat(src), nil
	}
	if relDiff(*cur, *src) <= tol {
		return cur, nil
	}
	pc := &pendingConflict{field: field, canonical: snapFloat(cur), source: snapFloat(src)}
	if *src > *cur {
		return copyFloat(src), pc
	}
	return cur, pc
}

// mergeRequiredString treats the placeholder sentinel as absent. Behavior on
// disagreement follows the strategy table: longer string wins.
func mergeRequiredString(field, cur string, src *string, sentinel string) (string, *pendingConflict) {
	if src == nil || strings.TrimSpace(*src) == "" {
		return cur, nil
	}
	if cur == sentinel {
		return strings.TrimSpace(*src), nil
	}
	if strings.EqualFold(strings.TrimSpace(cur), strings.TrimSpace(*src)) {
		return cur, nil
	}
	pc := &pendingConflict{field: field, canonical: cur, source: *src}
	if kindOf(field) == kindString && len(strings.TrimSpace(*src)) > len(cur) {
		return strings.TrimSpace(*src), pc
	}
	return cur, pc
}

// mergeOptionalString adopts into a nil slot and otherwise keeps the
// existing value, recording the disagreement.
func mergeOptionalString(field string, cur, src *string) (*string, *pendingConflict) {
	if src == nil || strings.TrimSpace(*src) == "" {
		return cur, nil
	}
	if cur == nil || strings.TrimSpace(*cur) == "" {
		trimmed := strings.TrimSpace(*src)
		return &trimmed, nil
	}
	if strings.EqualFold(strings.TrimSpace(*cur), strings.TrimSpace(*src)) {
		return cur, nil
	}
	pc := &pendingConflict{field: field, canonical: *cur, source: *src}
	if kindOf(field) == kindString && len(strings.TrimSpace(*src)) > len(strings.TrimSpace(*cur)) {
		trimmed := strings.TrimSpace(*src)
		return &trimmed, pc
	}
	return cur, pc
}

// dedupAmenities unions two amenity sets, preserving first-seen order.
// Dedup keys are case-insensitive and trimmed.
func dedupAmenities(existing, incoming models.StringSlice) models.StringSlice {
	seen := make(map[string]bool, len(existing)+len(incoming))
	var out models.StringSlice
	for _, set := range []models.StringSlice{existing, incoming} {
		for _, a := range set {
			key := strings.ToLower(strings.TrimSpace(a))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, strings.TrimSpace(a))
		}
	}
	return out
}

func relDiff(a, b float64) float64 {
	max := math.Max(math.Abs(a), math.Abs(b))
	if max == 0 {
		return 0
	}
	return math.Abs(a-b) / max
}

func stringOr(v *string, fallback string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return fallback
	}
	return strings.TrimSpace(*v)
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
