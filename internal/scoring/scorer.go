package scoring

import (
	"math"

	"propmatch/server/config"
	"propmatch/server/internal/geo"
	"propmatch/server/internal/models"
)

// Result carries the sub-scores of one pairwise comparison. All scores are
// in [0,1]; DistanceM is nil when either listing lacks coordinates.
type Result struct {
	DistanceM  *float64
	Coordinate float64
	Address    float64
	Features   float64
	Overall    float64
	Status     models.CandidateStatus
}

// Scorer computes multi-signal similarity between two listings. It holds no
// mutable state; identical inputs always produce identical scores.
type Scorer struct {
	cfg config.Dedup
}

func NewScorer(cfg config.Dedup) *Scorer {
	return &Scorer{cfg: cfg}
}

// ShouldReject applies the cheap pre-filters. A rejected pair is never
// scored and never persisted. The returned string names the tripped filter.
func (s *Scorer) ShouldReject(a, b *models.Listing) (bool, string) {
	if a.PropertyType != nil && b.PropertyType != nil && *a.PropertyType != *b.PropertyType {
		return true, "property_type_mismatch"
	}

	if len(a.Operations) > 0 && len(b.Operations) > 0 {
		typesA := a.OperationTypes()
		typesB := b.OperationTypes()
		overlap := false
		for t := range typesA {
			if typesB[t] {
				overlap = true
				break
			}
		}
		if !overlap {
			return true, "operation_type_mismatch"
		}
	}

	if diff, ok := bestPriceDiff(a, b); ok && diff > s.cfg.PriceRejectTolerance {
		return true, "price_gap"
	}

	sizeA, okA := a.ComparableSize()
	sizeB, okB := b.ComparableSize()
	if okA && okB && relDiff(sizeA, sizeB) > s.cfg.SizeRejectTolerance {
		return true, "size_gap"
	}

	return false, ""
}

// Score computes all sub-scores and the weighted overall score for a pair.
// Signals that cannot be evaluated (missing coordinates, blank addresses)
// contribute zero weight instead of penalizing the pair.
func (s *Scorer) Score(a, b *models.Listing) Result {
	var res Result

	if a.HasCoordinates() && b.HasCoordinates() {
		d := geo.Distance(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude)
		res.DistanceM = &d
		res.Coordinate = s.coordinateScore(d)
		res.Overall += s.cfg.CoordinateWeight * res.Coordinate
	}

	if addr, ok := s.addressScore(a, b); ok {
		res.Address = addr
		res.Overall += s.cfg.AddressWeight * res.Address
	}

	res.Features = s.featuresScore(a, b)
	res.Overall += s.cfg.FeaturesWeight * res.Features

	res.Status = s.StatusFor(res.Overall)
	return res
}

// StatusFor maps an overall score onto a candidate status. Both thresholds
// are inclusive.
func (s *Scorer) StatusFor(overall float64) models.CandidateStatus {
	switch {
	case overall >= s.cfg.AutoMatchThreshold:
		return models.CandidateStatusConfirmedMatch
	case overall >= s.cfg.ReviewThreshold:
		return models.CandidateStatusNeedsReview
	default:
		return models.CandidateStatusConfirmedDifferent
	}
}

// coordinateScore is 1.0 inside the exact band and decays exponentially
// beyond it. Geocoding error routinely exceeds 500m, so a linear cutoff
// would over-penalize genuinely identical units.
func (s *Scorer) coordinateScore(distanceM float64) float64 {
	if distanceM <= s.cfg.CoordinateExactM {
		return 1
	}
	return math.Exp(-distanceM / s.cfg.CoordinateDecayM)
}

type addressField struct {
	weight float64
	a, b   *string
}

// addressScore is a weighted normalized-Levenshtein blend over the address
// fields. Field pairs with a blank side are skipped and their weight leaves
// the denominator. Returns ok=false when nothing was comparable.
func (s *Scorer) addressScore(a, b *models.Listing) (float64, bool) {
	fields := []addressField{
		{0.40, a.Address, b.Address},
		{0.30, a.Colonia, b.Colonia},
		{0.20, a.City, b.City},
		{0.10, a.State, b.State},
	}

	var sum, totalWeight float64
	for _, f := range fields {
		if f.a == nil || f.b == nil || *f.a == "" || *f.b == "" {
			continue
		}
		sum += f.weight * similarity(*f.a, *f.b)
		totalWeight += f.weight
	}
	if totalWeight == 0 {
		return 0, false
	}
	return sum / totalWeight, true
}

// featuresScore is the fraction of applicable feature comparisons that
// match. With nothing comparable it returns a neutral 0.5 so sparse listings
// are not punished for missing data.
func (s *Scorer) featuresScore(a, b *models.Listing) float64 {
	var applicable, matched int

	if a.PropertyType != nil && b.PropertyType != nil {
		applicable++
		if *a.PropertyType == *b.PropertyType {
			matched++
		}
	}
	if a.Bedrooms != nil && b.Bedrooms != nil {
		applicable++
		if *a.Bedrooms == *b.Bedrooms {
			matched++
		}
	}
	if a.Bathrooms != nil && b.Bathrooms != nil {
		applicable++
		if abs(*a.Bathrooms-*b.Bathrooms) <= 1 {
			matched++
		}
	}
	if a.BuiltSizeM2 != nil && b.BuiltSizeM2 != nil && *a.BuiltSizeM2 > 0 && *b.BuiltSizeM2 > 0 {
		applicable++
		if relDiff(*a.BuiltSizeM2, *b.BuiltSizeM2) <= s.cfg.SizeMatchTolerance {
			matched++
		}
	}
	if a.LotSizeM2 != nil && b.LotSizeM2 != nil && *a.LotSizeM2 > 0 && *b.LotSizeM2 > 0 {
		applicable++
		if relDiff(*a.LotSizeM2, *b.LotSizeM2) <= s.cfg.SizeMatchTolerance {
			matched++
		}
	}
	if diff, ok := bestPriceDiff(a, b); ok {
		applicable++
		if diff <= s.cfg.PriceMatchTolerance {
			matched++
		}
	}

	if applicable == 0 {
		return 0.5
	}
	return float64(matched) / float64(applicable)
}

// bestPriceDiff returns the smallest relative price difference across
// operations matching on both type and currency.
func bestPriceDiff(a, b *models.Listing) (float64, bool) {
	best := math.MaxFloat64
	found := false
	for _, opA := range a.Operations {
		if opA.Price <= 0 {
			continue
		}
		if priceB, ok := b.PriceFor(opA.Type, opA.Currency); ok {
			if d := relDiff(opA.Price, priceB); d < best {
				best = d
				found = true
			}
		}
	}
	if !found {
		return 0, false
	}
	return best, true
}

func relDiff(a, b float64) float64 {
	max := math.Max(math.Abs(a), math.Abs(b))
	if max == 0 {
		return 0
	}
	return math.Abs(a-b) / max
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
