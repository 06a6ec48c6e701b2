package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"propmatch/server/config"
	"propmatch/server/internal/models"
)

func testDedupConfig() config.Dedup {
	return config.Dedup{
		SearchRadiusM:        100,
		MaxCandidates:        10,
		AutoMatchThreshold:   0.90,
		ReviewThreshold:      0.60,
		CoordinateWeight:     0.20,
		AddressWeight:        0.15,
		FeaturesWeight:       0.65,
		CoordinateExactM:     10,
		CoordinateDecayM:     300,
		PriceRejectTolerance: 0.20,
		SizeRejectTolerance:  0.20,
		PriceMatchTolerance:  0.05,
		SizeMatchTolerance:   0.10,
		MergeSizeTolerance:   0.05,
		CoordEqualTolerance:  0.0001,
	}
}

func intp(v int) *int                                { return &v }
func floatp(v float64) *float64                      { return &v }
func strp(s string) *string                          { return &s }
func ptype(t models.PropertyType) *models.PropertyType { return &t }

func rentListing(price float64) *models.Listing {
	return &models.Listing{
		Operations: []models.Operation{{Type: models.OperationRent, Price: price, Currency: "MXN"}},
	}
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "americas", normalizeText("Col. Américas"))
	assert.Equal(t, "americas", normalizeText("  AMERICAS "))
	assert.Equal(t, "del valle", normalizeText("Fracc. Del Valle"))
	assert.Equal(t, "juarez 123", normalizeText("Calle Juárez 123"))
	assert.Equal(t, "", normalizeText(""))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, similarity("Col. Américas", "americas"))
	assert.Equal(t, 1.0, similarity("", ""))
	assert.Less(t, similarity("guadalajara", "monterrey"), 0.5)
}

func TestShouldRejectPropertyTypeMismatch(t *testing.T) {
	s := NewScorer(testDedupConfig())

	a := &models.Listing{PropertyType: ptype(models.PropertyTypeHouse)}
	b := &models.Listing{PropertyType: ptype(models.PropertyTypeApartment)}

	reject, reason := s.ShouldReject(a, b)
	assert.True(t, reject)
	assert.Equal(t, "property_type_mismatch", reason)

	// same type passes
	b.PropertyType = ptype(models.PropertyTypeHouse)
	reject, _ = s.ShouldReject(a, b)
	assert.False(t, reject)
}

func TestShouldRejectOperationTypeMismatch(t *testing.T) {
	s := NewScorer(testDedupConfig())

	a := rentListing(15000)
	b := &models.Listing{
		Operations: []models.Operation{{Type: models.OperationSale, Price: 3000000, Currency: "MXN"}},
	}

	reject, reason := s.ShouldReject(a, b)
	assert.True(t, reject)
	assert.Equal(t, "operation_type_mismatch", reason)
}

func TestShouldRejectPriceGap(t *testing.T) {
	s := NewScorer(testDedupConfig())

	reject, reason := s.ShouldReject(rentListing(15000), rentListing(20000))
	assert.True(t, reject)
	assert.Equal(t, "price_gap", reason)

	// 10% apart is inside tolerance
	reject, _ = s.ShouldReject(rentListing(15000), rentListing(16500))
	assert.False(t, reject)

	// different currencies never compare
	a := rentListing(15000)
	b := &models.Listing{
		Operations: []models.Operation{{Type: models.OperationRent, Price: 800, Currency: "USD"}},
	}
	reject, _ = s.ShouldReject(a, b)
	assert.False(t, reject)
}

func TestShouldRejectSizeGap(t *testing.T) {
	s := NewScorer(testDedupConfig())

	a := &models.Listing{BuiltSizeM2: floatp(80)}
	b := &models.Listing{BuiltSizeM2: floatp(200)}
	reject, reason := s.ShouldReject(a, b)
	assert.True(t, reject)
	assert.Equal(t, "size_gap", reason)

	// lot size is the fallback when built size is missing
	a = &models.Listing{LotSizeM2: floatp(100)}
	b = &models.Listing{LotSizeM2: floatp(105)}
	reject, _ = s.ShouldReject(a, b)
	assert.False(t, reject)
}

func TestShouldRejectSparseDataPasses(t *testing.T) {
	s := NewScorer(testDedupConfig())
	reject, _ := s.ShouldReject(&models.Listing{}, &models.Listing{})
	assert.False(t, reject)
}

func TestStatusForBoundaries(t *testing.T) {
	s := NewScorer(testDedupConfig())

	assert.Equal(t, models.CandidateStatusConfirmedMatch, s.StatusFor(0.90))
	assert.Equal(t, models.CandidateStatusConfirmedMatch, s.StatusFor(0.95))
	assert.Equal(t, models.CandidateStatusNeedsReview, s.StatusFor(0.8999))
	assert.Equal(t, models.CandidateStatusNeedsReview, s.StatusFor(0.60))
	assert.Equal(t, models.CandidateStatusConfirmedDifferent, s.StatusFor(0.5999))
	assert.Equal(t, models.CandidateStatusConfirmedDifferent, s.StatusFor(0))
}

func TestCoordinateScore(t *testing.T) {
	s := NewScorer(testDedupConfig())

	assert.Equal(t, 1.0, s.coordinateScore(0))
	assert.Equal(t, 1.0, s.coordinateScore(10))
	assert.InDelta(t, math.Exp(-1), s.coordinateScore(300), 1e-9)
	assert.Less(t, s.coordinateScore(1000), 0.05)
}

func TestAddressScoreSkipsBlankFields(t *testing.T) {
	s := NewScorer(testDedupConfig())

	a := &models.Listing{City: strp("Guadalajara")}
	b := &models.Listing{City: strp("Guadalajara")}
	score, ok := s.addressScore(a, b)
	assert.True(t, ok)
	assert.Equal(t, 1.0, score)

	// nothing comparable
	_, ok = s.addressScore(&models.Listing{}, &models.Listing{City: strp("Guadalajara")})
	assert.False(t, ok)
}

func TestFeaturesScoreNeutralOnSparseData(t *testing.T) {
	s := NewScorer(testDedupConfig())
	assert.Equal(t, 0.5, s.featuresScore(&models.Listing{}, &models.Listing{}))
}

func TestFeaturesScore(t *testing.T) {
	s := NewScorer(testDedupConfig())

	a := &models.Listing{
		PropertyType: ptype(models.PropertyTypeApartment),
		Bedrooms:     intp(2),
		Bathrooms:    intp(2),
		BuiltSizeM2:  floatp(80),
		Operations:   []models.Operation{{Type: models.OperationRent, Price: 15000, Currency: "MXN"}},
	}
	b := &models.Listing{
		PropertyType: ptype(models.PropertyTypeApartment),
		Bedrooms:     intp(2),
		Bathrooms:    intp(3), // within the ±1 band
		BuiltSizeM2:  floatp(84),
		Operations:   []models.Operation{{Type: models.OperationRent, Price: 15300, Currency: "MXN"}},
	}
	assert.Equal(t, 1.0, s.featuresScore(a, b))

	b.Bedrooms = intp(3)
	assert.InDelta(t, 4.0/5.0, s.featuresScore(a, b), 1e-9)
}

func TestScoreSymmetry(t *testing.T) {
	s := NewScorer(testDedupConfig())

	a := &models.Listing{
		Latitude:     floatp(20.6597000),
		Longitude:    floatp(-103.3496000),
		Address:      strp("Av. Chapultepec 480"),
		Colonia:      strp("Americana"),
		City:         strp("Guadalajara"),
		PropertyType: ptype(models.PropertyTypeApartment),
		Bedrooms:     intp(2),
		Operations:   []models.Operation{{Type: models.OperationRent, Price: 15000, Currency: "MXN"}},
	}
	b := &models.Listing{
		Latitude:     floatp(20.6599000),
		Longitude:    floatp(-103.3494000),
		Address:      strp("Chapultepec 480"),
		Colonia:      strp("Col. Americana"),
		City:         strp("Guadalajara"),
		PropertyType: ptype(models.PropertyTypeApartment),
		Bedrooms:     intp(2),
		Operations:   []models.Operation{{Type: models.OperationRent, Price: 15500, Currency: "MXN"}},
	}

	ab := s.Score(a, b)
	ba := s.Score(b, a)
	assert.Equal(t, ab.Coordinate, ba.Coordinate)
	assert.Equal(t, ab.Address, ba.Address)
	assert.Equal(t, ab.Features, ba.Features)
	assert.Equal(t, ab.Overall, ba.Overall)
	assert.Equal(t, ab.Status, ba.Status)

	// repeated invocation is deterministic
	again := s.Score(a, b)
	assert.Equal(t, ab.Overall, again.Overall)
}

// Two identical units 300m apart with no address data land in the review
// band: 0.20·exp(-1) + 0.65·1.0 ≈ 0.72.
func TestScoreReviewBand(t *testing.T) {
	s := NewScorer(testDedupConfig())

	a := &models.Listing{
		Latitude:     floatp(20.6597000),
		Longitude:    floatp(-103.3496000),
		PropertyType: ptype(models.PropertyTypeApartment),
		Bedrooms:     intp(2),
		Bathrooms:    intp(2),
		BuiltSizeM2:  floatp(80),
		Operations:   []models.Operation{{Type: models.OperationRent, Price: 15000, Currency: "MXN"}},
	}
	b := &models.Listing{
		Latitude:     floatp(20.6597000 + 300.0/111320.0),
		Longitude:    floatp(-103.3496000),
		PropertyType: ptype(models.PropertyTypeApartment),
		Bedrooms:     intp(2),
		Bathrooms:    intp(2),
		BuiltSizeM2:  floatp(80),
		Operations:   []models.Operation{{Type: models.OperationRent, Price: 15000, Currency: "MXN"}},
	}

	res := s.Score(a, b)
	assert.NotNil(t, res.DistanceM)
	assert.InDelta(t, 300, *res.DistanceM, 2)
	assert.Equal(t, 1.0, res.Features)
	assert.InDelta(t, 0.724, res.Overall, 0.01)
	assert.Equal(t, models.CandidateStatusNeedsReview, res.Status)
}

// Missing coordinates and addresses drop their weight instead of dragging
// the overall score down.
func TestScoreSkipsUnavailableSignals(t *testing.T) {
	s := NewScorer(testDedupConfig())

	a := &models.Listing{Bedrooms: intp(2)}
	b := &models.Listing{Bedrooms: intp(2)}

	res := s.Score(a, b)
	assert.Nil(t, res.DistanceM)
	assert.Equal(t, 0.0, res.Coordinate)
	assert.InDelta(t, 0.65, res.Overall, 1e-9)
}
