package geo

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"propmatch/server/internal/models"
)

// metersPerDegreeLat is the approximate length of one degree of latitude.
const metersPerDegreeLat = 111320.0

// Nearby is one proximity-search hit.
type Nearby struct {
	Listing   models.Listing
	DistanceM float64
}

// Index answers radius queries over listings with coordinates. It filters
// with a bounding box on the (latitude, longitude) index first, then ranks
// survivors by exact great-circle distance.
type Index struct {
	db         *gorm.DB
	maxResults int
	logger     *logrus.Logger
}

func NewIndex(db *gorm.DB, maxResults int, logger *logrus.Logger) *Index {
	if logger == nil {
		logger = logrus.New()
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Index{
		db:         db,
		maxResults: maxResults,
		logger:     logger,
	}
}

// FindNearby returns listings within radiusM meters of (lat, lng), nearest
// first, capped at the index's max result count. Listings without both
// coordinates are never eligible, and excludeID is left out of the results.
func (ix *Index) FindNearby(ctx context.Context, lat, lng, radiusM float64, excludeID uint) ([]Nearby, error) {
	latDelta := radiusM / metersPerDegreeLat
	lngDelta := radiusM / (metersPerDegreeLat * math.Cos(lat*math.Pi/180))
	if math.IsInf(lngDelta, 0) || math.IsNaN(lngDelta) {
		lngDelta = 180
	}

	var rows []models.Listing
	err := ix.db.WithContext(ctx).
		Preload("Operations").
		Where("id != ?", excludeID).
		Where("latitude IS NOT NULL AND longitude IS NOT NULL").
		Where("latitude BETWEEN ? AND ?", lat-latDelta, lat+latDelta).
		Where("longitude BETWEEN ? AND ?", lng-lngDelta, lng+lngDelta).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query nearby listings: %w", err)
	}

	origin := orb.Point{lng, lat}
	results := make([]Nearby, 0, len(rows))
	for _, row := range rows {
		d := orbgeo.DistanceHaversine(origin, orb.Point{*row.Longitude, *row.Latitude})
		if d <= radiusM {
			results = append(results, Nearby{Listing: row, DistanceM: d})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].DistanceM < results[j].DistanceM
	})
	if len(results) > ix.maxResults {
		results = results[:ix.maxResults]
	}

	ix.logger.WithFields(logrus.Fields{
		"latitude":  lat,
		"longitude": lng,
		"radius_m":  radiusM,
		"hits":      len(results),
	}).Debug("Proximity search completed")

	return results, nil
}

// Distance returns the great-circle distance in meters between two points.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	return orbgeo.DistanceHaversine(orb.Point{lng1, lat1}, orb.Point{lng2, lat2})
}
