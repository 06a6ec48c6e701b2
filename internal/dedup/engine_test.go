package dedup

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"propmatch/server/config"
	"propmatch/server/internal/database"
	"propmatch/server/internal/geo"
	"propmatch/server/internal/models"
	"propmatch/server/internal/scoring"
)

func newTestEngine(t *testing.T, db *gorm.DB, cfg config.Dedup) *Engine {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewEngine(
		db,
		database.NewListingStore(db),
		database.NewCandidateStore(db),
		database.NewPropertyStore(db),
		geo.NewIndex(db, cfg.MaxCandidates, logger),
		scoring.NewScorer(cfg),
		NewMerger(cfg, logger),
		cfg,
		logger,
	)
}

func refetchListing(t *testing.T, db *gorm.DB, id uint) *models.Listing {
	t.Helper()
	var l models.Listing
	require.NoError(t, db.Preload("Operations").First(&l, id).Error)
	return &l
}

// fullListing has every scoring signal populated so that an identical pair
// scores a perfect 1.0.
func fullListing(lat, lng float64) *models.Listing {
	return &models.Listing{
		Latitude:     floatp(lat),
		Longitude:    floatp(lng),
		Address:      strp("Av. Chapultepec 480"),
		Colonia:      strp("Americana"),
		City:         strp("Guadalajara"),
		State:        strp("Jalisco"),
		PropertyType: ptype(models.PropertyTypeApartment),
		Bedrooms:     intp(2),
		Bathrooms:    intp(1),
		BuiltSizeM2:  floatp(85),
		DedupStatus:  models.DedupStatusPending,
		Operations: []models.Operation{
			{Type: models.OperationSale, Price: 3000000, Currency: "MXN"},
		},
	}
}

func TestProcessListingCreatesNewPropertyWhenAlone(t *testing.T) {
	db := setupMergerDB(t)
	e := newTestEngine(t, db, testDedupConfig())

	l := persistListing(t, db, fullListing(20.67, -103.35))
	require.NoError(t, e.ProcessListing(context.Background(), l.ID))

	got := refetchListing(t, db, l.ID)
	assert.Equal(t, models.DedupStatusNew, got.DedupStatus)
	require.NotNil(t, got.PropertyID)
	require.NotNil(t, got.DedupCheckedAt)

	var prop models.Property
	require.NoError(t, db.First(&prop, *got.PropertyID).Error)
	assert.Equal(t, 1, prop.ListingsCount)
	assert.Equal(t, models.InitialConfidence, prop.ConfidenceScore)
}

func TestProcessListingWithoutCoordinatesCreatesNewProperty(t *testing.T) {
	db := setupMergerDB(t)
	e := newTestEngine(t, db, testDedupConfig())

	// a perfect twin is already in place, but without coordinates the new
	// listing never reaches candidate search
	twin := persistListing(t, db, fullListing(20.67, -103.35))
	require.NoError(t, e.ProcessListing(context.Background(), twin.ID))

	l := fullListing(0, 0)
	l.Latitude = nil
	l.Longitude = nil
	persistListing(t, db, l)
	require.NoError(t, e.ProcessListing(context.Background(), l.ID))

	got := refetchListing(t, db, l.ID)
	assert.Equal(t, models.DedupStatusNew, got.DedupStatus)
	require.NotNil(t, got.PropertyID)
	assert.NotEqual(t, *refetchListing(t, db, twin.ID).PropertyID, *got.PropertyID)

	var candCount int64
	require.NoError(t, db.Model(&models.Candidate{}).Count(&candCount).Error)
	assert.Zero(t, candCount)
}

func TestProcessListingAutoMergesPerfectTwin(t *testing.T) {
	db := setupMergerDB(t)
	e := newTestEngine(t, db, testDedupConfig())
	ctx := context.Background()

	a := persistListing(t, db, fullListing(20.67, -103.35))
	require.NoError(t, e.ProcessListing(ctx, a.ID))

	b := persistListing(t, db, fullListing(20.67, -103.35))
	require.NoError(t, e.ProcessListing(ctx, b.ID))

	gotA := refetchListing(t, db, a.ID)
	gotB := refetchListing(t, db, b.ID)
	assert.Equal(t, models.DedupStatusMatched, gotA.DedupStatus)
	assert.Equal(t, models.DedupStatusMatched, gotB.DedupStatus)
	require.NotNil(t, gotA.PropertyID)
	require.NotNil(t, gotB.PropertyID)
	assert.Equal(t, *gotA.PropertyID, *gotB.PropertyID)

	var prop models.Property
	require.NoError(t, db.First(&prop, *gotA.PropertyID).Error)
	assert.Equal(t, 2, prop.ListingsCount)
	assert.Equal(t, 60, prop.ConfidenceScore)

	var cand models.Candidate
	require.NoError(t, db.First(&cand).Error)
	assert.Equal(t, models.CandidateStatusConfirmedMatch, cand.Status)
	require.NotNil(t, cand.ResolvedPropertyID)
	assert.Equal(t, prop.ID, *cand.ResolvedPropertyID)
	assert.InDelta(t, 1.0, cand.OverallScore, 0.001)
}

func TestProcessListingParksAmbiguousPairForReview(t *testing.T) {
	db := setupMergerDB(t)
	cfg := testDedupConfig()
	cfg.SearchRadiusM = 500
	e := newTestEngine(t, db, cfg)
	ctx := context.Background()

	near := fullListing(20.67, -103.35)
	near.Address = nil
	near.Colonia = nil
	near.City = nil
	near.State = nil
	persistListing(t, db, near)
	require.NoError(t, e.ProcessListing(ctx, near.ID))

	// roughly 300m north, same features, no address signal: the overall
	// score lands between the review and auto-match thresholds
	far := fullListing(20.67+300.0/111320.0, -103.35)
	far.Address = nil
	far.Colonia = nil
	far.City = nil
	far.State = nil
	persistListing(t, db, far)
	require.NoError(t, e.ProcessListing(ctx, far.ID))

	got := refetchListing(t, db, far.ID)
	assert.Equal(t, models.DedupStatusNeedsReview, got.DedupStatus)
	assert.Nil(t, got.PropertyID)

	var cand models.Candidate
	require.NoError(t, db.First(&cand).Error)
	assert.Equal(t, models.CandidateStatusNeedsReview, cand.Status)
	assert.InDelta(t, 0.724, cand.OverallScore, 0.01)

	// the earlier listing keeps its property
	assert.Equal(t, models.DedupStatusNew, refetchListing(t, db, near.ID).DedupStatus)
}

func TestProcessListingEarlyRejectLeavesNoCandidate(t *testing.T) {
	db := setupMergerDB(t)
	e := newTestEngine(t, db, testDedupConfig())
	ctx := context.Background()

	sale := persistListing(t, db, fullListing(20.67, -103.35))
	require.NoError(t, e.ProcessListing(ctx, sale.ID))

	rent := fullListing(20.67, -103.35)
	rent.Operations = []models.Operation{
		{Type: models.OperationRent, Price: 15000, Currency: "MXN"},
	}
	persistListing(t, db, rent)
	require.NoError(t, e.ProcessListing(ctx, rent.ID))

	var candCount int64
	require.NoError(t, db.Model(&models.Candidate{}).Count(&candCount).Error)
	assert.Zero(t, candCount)

	got := refetchListing(t, db, rent.ID)
	assert.Equal(t, models.DedupStatusNew, got.DedupStatus)
	require.NotNil(t, got.PropertyID)
	assert.NotEqual(t, *refetchListing(t, db, sale.ID).PropertyID, *got.PropertyID)
}

func TestProcessListingIsIdempotent(t *testing.T) {
	db := setupMergerDB(t)
	e := newTestEngine(t, db, testDedupConfig())
	ctx := context.Background()

	a := persistListing(t, db, fullListing(20.67, -103.35))
	require.NoError(t, e.ProcessListing(ctx, a.ID))
	b := persistListing(t, db, fullListing(20.67, -103.35))
	require.NoError(t, e.ProcessListing(ctx, b.ID))

	// replaying both passes must not create extra properties, candidates
	// or inflate the counters
	require.NoError(t, e.ProcessListing(ctx, a.ID))
	require.NoError(t, e.ProcessListing(ctx, b.ID))

	var propCount, candCount int64
	require.NoError(t, db.Model(&models.Property{}).Count(&propCount).Error)
	require.NoError(t, db.Model(&models.Candidate{}).Count(&candCount).Error)
	assert.Equal(t, int64(1), propCount)
	assert.Equal(t, int64(1), candCount)

	var prop models.Property
	require.NoError(t, db.First(&prop).Error)
	assert.Equal(t, 2, prop.ListingsCount)
	assert.Equal(t, 60, prop.ConfidenceScore)
}

func reviewPair(t *testing.T, db *gorm.DB, e *Engine) (linked, parked *models.Listing, cand *models.Candidate) {
	t.Helper()
	ctx := context.Background()

	a := fullListing(20.67, -103.35)
	a.Address = nil
	a.Colonia = nil
	a.City = nil
	a.State = nil
	persistListing(t, db, a)
	require.NoError(t, e.ProcessListing(ctx, a.ID))

	b := fullListing(20.67+300.0/111320.0, -103.35)
	b.Address = nil
	b.Colonia = nil
	b.City = nil
	b.State = nil
	persistListing(t, db, b)
	require.NoError(t, e.ProcessListing(ctx, b.ID))

	var c models.Candidate
	require.NoError(t, db.First(&c).Error)
	require.Equal(t, models.CandidateStatusNeedsReview, c.Status)
	return refetchListing(t, db, a.ID), refetchListing(t, db, b.ID), &c
}

func TestResolveMatchMergesReviewedPair(t *testing.T) {
	db := setupMergerDB(t)
	cfg := testDedupConfig()
	cfg.SearchRadiusM = 500
	e := newTestEngine(t, db, cfg)

	linked, parked, cand := reviewPair(t, db, e)
	require.NoError(t, e.ResolveMatch(context.Background(), cand.ID))

	gotA := refetchListing(t, db, linked.ID)
	gotB := refetchListing(t, db, parked.ID)
	assert.Equal(t, models.DedupStatusMatched, gotA.DedupStatus)
	assert.Equal(t, models.DedupStatusMatched, gotB.DedupStatus)
	require.NotNil(t, gotB.PropertyID)
	assert.Equal(t, *gotA.PropertyID, *gotB.PropertyID)

	var prop models.Property
	require.NoError(t, db.First(&prop, *gotA.PropertyID).Error)
	assert.Equal(t, 2, prop.ListingsCount)

	var c models.Candidate
	require.NoError(t, db.First(&c, cand.ID).Error)
	assert.Equal(t, models.CandidateStatusConfirmedMatch, c.Status)
	require.NotNil(t, c.ResolvedPropertyID)
	assert.Equal(t, prop.ID, *c.ResolvedPropertyID)
}

func TestRejectMatchReleasesParkedListing(t *testing.T) {
	db := setupMergerDB(t)
	cfg := testDedupConfig()
	cfg.SearchRadiusM = 500
	e := newTestEngine(t, db, cfg)

	linked, parked, cand := reviewPair(t, db, e)
	require.NoError(t, e.RejectMatch(context.Background(), cand.ID))

	var c models.Candidate
	require.NoError(t, db.First(&c, cand.ID).Error)
	assert.Equal(t, models.CandidateStatusConfirmedDifferent, c.Status)

	// with its only candidate ruled out the parked listing becomes its
	// own property
	gotB := refetchListing(t, db, parked.ID)
	assert.Equal(t, models.DedupStatusNew, gotB.DedupStatus)
	require.NotNil(t, gotB.PropertyID)
	assert.NotEqual(t, *refetchListing(t, db, linked.ID).PropertyID, *gotB.PropertyID)

	var propCount int64
	require.NoError(t, db.Model(&models.Property{}).Count(&propCount).Error)
	assert.Equal(t, int64(2), propCount)
}

func TestProcessListingReusesExistingCandidateScores(t *testing.T) {
	db := setupMergerDB(t)
	cfg := testDedupConfig()
	cfg.SearchRadiusM = 500
	e := newTestEngine(t, db, cfg)
	ctx := context.Background()

	linked, parked, cand := reviewPair(t, db, e)

	// reprocessing the parked listing keeps the persisted pair untouched
	require.NoError(t, e.ProcessListing(ctx, parked.ID))
	assert.Equal(t, models.DedupStatusNew, refetchListing(t, db, linked.ID).DedupStatus)

	var candCount int64
	require.NoError(t, db.Model(&models.Candidate{}).Count(&candCount).Error)
	assert.Equal(t, int64(1), candCount)

	var c models.Candidate
	require.NoError(t, db.First(&c, cand.ID).Error)
	assert.Equal(t, cand.OverallScore, c.OverallScore)
	assert.Equal(t, models.CandidateStatusNeedsReview, c.Status)
}
