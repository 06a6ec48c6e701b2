package database

import (
	"gorm.io/gorm"

	"propmatch/server/internal/models"
)

// DedupStats is the read-only counter set exposed to the reporting surface.
type DedupStats struct {
	PendingListings     int64 `json:"pending_listings"`
	NewListings         int64 `json:"new_listings"`
	MatchedListings     int64 `json:"matched_listings"`
	NeedsReviewListings int64 `json:"needs_review_listings"`
	TotalProperties     int64 `json:"total_properties"`
	TotalCandidates     int64 `json:"total_candidates"`
	ReviewCandidates    int64 `json:"review_candidates"`
	UnresolvedConflicts int64 `json:"unresolved_conflicts"`
}

// GetDedupStats aggregates pipeline counters in one pass.
func GetDedupStats(db *gorm.DB) (DedupStats, error) {
	var stats DedupStats

	type statusCount struct {
		DedupStatus models.DedupStatus
		Count       int64
	}
	var rows []statusCount
	err := db.Model(&models.Listing{}).
		Select("dedup_status, COUNT(*) as count").
		Group("dedup_status").
		Scan(&rows).Error
	if err != nil {
		return stats, err
	}
	for _, r := range rows {
		switch r.DedupStatus {
		case models.DedupStatusPending:
			stats.PendingListings = r.Count
		case models.DedupStatusNew:
			stats.NewListings = r.Count
		case models.DedupStatusMatched:
			stats.MatchedListings = r.Count
		case models.DedupStatusNeedsReview:
			stats.NeedsReviewListings = r.Count
		}
	}

	if err := db.Model(&models.Property{}).Count(&stats.TotalProperties).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&models.Candidate{}).Count(&stats.TotalCandidates).Error; err != nil {
		return stats, err
	}
	err = db.Model(&models.Candidate{}).
		Where("status = ?", models.CandidateStatusNeedsReview).
		Count(&stats.ReviewCandidates).Error
	if err != nil {
		return stats, err
	}
	err = db.Model(&models.Conflict{}).
		Where("resolved = ?", false).
		Count(&stats.UnresolvedConflicts).Error
	if err != nil {
		return stats, err
	}

	return stats, nil
}
