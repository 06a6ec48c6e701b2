package dedup

import (
	"strconv"
	"strings"
)

// fieldKind selects the conflict-resolution strategy applied when a listing
// value disagrees with the property's current value.
type fieldKind int

const (
	// prefer the non-zero value; with two non-zero values keep the
	// existing one (already-merged data outranks a single observation)
	kindCount fieldKind = iota
	// take the larger value (under-reporting is the common error)
	kindSize
	// take the longer string (proxy for completeness)
	kindString
	// take the pair with more decimal precision
	kindCoordinate
	// keep the existing value
	kindKeep
)

// mergeFields is the strategy table for every mergeable property field.
var mergeFields = map[string]fieldKind{
	"address":         kindString,
	"colonia":         kindString,
	"city":            kindString,
	"state":           kindString,
	"postal_code":     kindKeep,
	"interior_number": kindKeep,
	"coordinates":     kindCoordinate,
	"property_type":   kindKeep,
	"subtype":         kindKeep,
	"bedrooms":        kindCount,
	"bathrooms":       kindCount,
	"half_bathrooms":  kindCount,
	"parking_spots":   kindCount,
	"age_years":       kindCount,
	"lot_size_m2":     kindSize,
	"built_size_m2":   kindSize,
}

// kindOf returns the strategy for a field, defaulting to keep-existing.
func kindOf(field string) fieldKind {
	if k, ok := mergeFields[field]; ok {
		return k
	}
	return kindKeep
}

// Snapshot helpers stringify heterogeneous values for Conflict audit rows.

func snapInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func snapFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func snapCoords(lat, lng *float64) string {
	if lat == nil || lng == nil {
		return ""
	}
	return snapFloat(lat) + "," + snapFloat(lng)
}

// decimalPrecision counts digits after the decimal point in the shortest
// exact representation of f.
func decimalPrecision(f float64) int {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}
