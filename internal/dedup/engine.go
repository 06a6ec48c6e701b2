package dedup

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"propmatch/server/config"
	"propmatch/server/internal/database"
	"propmatch/server/internal/geo"
	"propmatch/server/internal/models"
	"propmatch/server/internal/scoring"
)

// Engine runs the dedup pass for a listing: proximity search, pairwise
// scoring, outcome decision and merge orchestration. Every state transition
// commits in the same transaction as the persistence that justifies it, so a
// failed pass leaves the listing in its prior status.
type Engine struct {
	db         *gorm.DB
	listings   *database.ListingStore
	candidates *database.CandidateStore
	properties *database.PropertyStore
	geoIndex   *geo.Index
	scorer     *scoring.Scorer
	merger     *Merger
	cfg        config.Dedup
	logger     *logrus.Logger
}

func NewEngine(
	db *gorm.DB,
	listings *database.ListingStore,
	candidates *database.CandidateStore,
	properties *database.PropertyStore,
	geoIndex *geo.Index,
	scorer *scoring.Scorer,
	merger *Merger,
	cfg config.Dedup,
	logger *logrus.Logger,
) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		db:         db,
		listings:   listings,
		candidates: candidates,
		properties: properties,
		geoIndex:   geoIndex,
		scorer:     scorer,
		merger:     merger,
		cfg:        cfg,
		logger:     logger,
	}
}

// ProcessListing runs one dedup pass. Safe to call repeatedly: once the
// listing reaches a terminal status or is linked to a property the call is a
// no-op.
func (e *Engine) ProcessListing(ctx context.Context, listingID uint) error {
	listing, err := e.listings.Get(listingID)
	if err != nil {
		return err
	}

	if listing.PropertyID != nil || listing.DedupStatus.Terminal() {
		e.logger.WithFields(logrus.Fields{
			"listing_id": listingID,
			"status":     listing.DedupStatus,
		}).Debug("Listing already resolved, skipping")
		return nil
	}

	cands, err := e.collectCandidates(ctx, listing)
	if err != nil {
		return err
	}

	return e.decide(ctx, listing, cands)
}

// collectCandidates finds spatially nearby listings and scores each pair.
// A pair compared in an earlier pass is reused as-is, never rescored.
// Early-rejected pairs leave no record at all.
func (e *Engine) collectCandidates(ctx context.Context, listing *models.Listing) ([]models.Candidate, error) {
	if !listing.HasCoordinates() {
		// Address-only proximity is deliberately not a candidate source:
		// a shared colonia is not evidence of same-unit identity.
		return nil, nil
	}

	nearby, err := e.geoIndex.FindNearby(ctx, *listing.Latitude, *listing.Longitude, e.cfg.SearchRadiusM, listing.ID)
	if err != nil {
		return nil, err
	}

	var cands []models.Candidate
	for i := range nearby {
		other := &nearby[i].Listing

		existing, err := e.candidates.FindPair(listing.ID, other.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			cands = append(cands, *existing)
			continue
		}

		if reject, reason := e.scorer.ShouldReject(listing, other); reject {
			e.logger.WithFields(logrus.Fields{
				"listing_id": listing.ID,
				"other_id":   other.ID,
				"reason":     reason,
			}).Debug("Pair early-rejected")
			continue
		}

		res := e.scorer.Score(listing, other)
		cand := &models.Candidate{
			ListingAID:      listing.ID,
			ListingBID:      other.ID,
			DistanceM:       res.DistanceM,
			CoordinateScore: res.Coordinate,
			AddressScore:    res.Address,
			FeaturesScore:   res.Features,
			OverallScore:    res.Overall,
			Status:          res.Status,
		}
		stored, created, err := e.candidates.GetOrCreate(cand)
		if err != nil {
			return nil, err
		}
		if created {
			e.logger.WithFields(logrus.Fields{
				"listing_id": listing.ID,
				"other_id":   other.ID,
				"overall":    stored.OverallScore,
				"status":     stored.Status,
			}).Info("Scored candidate pair")
		}
		cands = append(cands, *stored)
	}
	return cands, nil
}

// decide picks the outcome for a listing from its candidate set and executes
// it: auto-merge on the best confirmed match, park for review when any
// candidate is undecided, otherwise create a fresh property.
func (e *Engine) decide(ctx context.Context, listing *models.Listing, cands []models.Candidate) error {
	var best *models.Candidate
	awaitingReview := false
	for i := range cands {
		c := &cands[i]
		switch c.Status {
		case models.CandidateStatusConfirmedMatch:
			if best == nil || c.OverallScore > best.OverallScore {
				best = c
			}
		case models.CandidateStatusNeedsReview, models.CandidateStatusPending:
			awaitingReview = true
		}
	}

	switch {
	case best != nil:
		return e.resolveConfirmed(ctx, listing, best)
	case awaitingReview:
		if listing.DedupStatus == models.DedupStatusNeedsReview {
			return nil
		}
		if err := e.listings.MarkStatus(e.db.WithContext(ctx), listing.ID, models.DedupStatusNeedsReview, nil); err != nil {
			return err
		}
		e.logger.WithField("listing_id", listing.ID).Info("Listing parked for review")
		return nil
	default:
		return e.createNewProperty(ctx, listing)
	}
}

// createNewProperty makes the listing the seed of a fresh canonical property.
func (e *Engine) createNewProperty(ctx context.Context, listing *models.Listing) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prop, err := e.merger.CreateFromListing(tx, listing)
		if err != nil {
			return err
		}
		return e.listings.MarkStatus(tx, listing.ID, models.DedupStatusNew, &prop.ID)
	})
}

// resolveConfirmed executes a confirmed match between the listing and the
// candidate's other side. If the matched listing already belongs to a
// property the listing merges into it; otherwise the matched listing seeds a
// new property first (seed-then-merge, so one match event never produces two
// competing properties). Everything happens in one transaction with the
// property row locked.
func (e *Engine) resolveConfirmed(ctx context.Context, listing *models.Listing, cand *models.Candidate) error {
	otherID := cand.Other(listing.ID)

	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		other, err := e.listings.GetTx(tx, otherID)
		if err != nil {
			return err
		}

		var prop *models.Property
		if other.PropertyID != nil {
			prop, err = e.properties.GetForUpdate(tx, *other.PropertyID)
			if err != nil {
				return err
			}
		} else {
			prop, err = e.merger.CreateFromListing(tx, other)
			if err != nil {
				return err
			}
		}

		if err := e.merger.MergeListingIntoProperty(tx, listing, prop); err != nil {
			return err
		}
		if err := e.candidates.Resolve(tx, cand.ID, prop.ID); err != nil {
			return err
		}
		if err := e.listings.MarkStatus(tx, listing.ID, models.DedupStatusMatched, &prop.ID); err != nil {
			return err
		}
		if err := e.listings.MarkStatus(tx, otherID, models.DedupStatusMatched, &prop.ID); err != nil {
			return err
		}

		e.logger.WithFields(logrus.Fields{
			"listing_id":   listing.ID,
			"matched_id":   otherID,
			"property_id":  prop.ID,
			"candidate_id": cand.ID,
		}).Info("Resolved confirmed match")
		return nil
	})
}

// ResolveMatch is the review-workflow accept callback: the candidate is
// treated as a confirmed match and both listings end up linked to one
// property.
func (e *Engine) ResolveMatch(ctx context.Context, candidateID uint) error {
	cand, err := e.candidates.Get(candidateID)
	if err != nil {
		return err
	}

	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := e.listings.GetTx(tx, cand.ListingAID)
		if err != nil {
			return err
		}
		b, err := e.listings.GetTx(tx, cand.ListingBID)
		if err != nil {
			return err
		}

		if a.PropertyID != nil && b.PropertyID != nil {
			if *a.PropertyID != *b.PropertyID {
				e.logger.WithFields(logrus.Fields{
					"candidate_id": candidateID,
					"property_a":   *a.PropertyID,
					"property_b":   *b.PropertyID,
				}).Warn("Both listings already linked to different properties; resolving candidate without merging")
			}
			return e.candidates.Resolve(tx, cand.ID, *a.PropertyID)
		}

		seed, joiner := a, b
		if a.PropertyID == nil && b.PropertyID != nil {
			seed, joiner = b, a
		}

		var prop *models.Property
		if seed.PropertyID != nil {
			prop, err = e.properties.GetForUpdate(tx, *seed.PropertyID)
			if err != nil {
				return err
			}
		} else {
			prop, err = e.merger.CreateFromListing(tx, seed)
			if err != nil {
				return err
			}
		}

		if err := e.merger.MergeListingIntoProperty(tx, joiner, prop); err != nil {
			return err
		}
		if err := e.candidates.Resolve(tx, cand.ID, prop.ID); err != nil {
			return err
		}
		if err := e.listings.MarkStatus(tx, a.ID, models.DedupStatusMatched, &prop.ID); err != nil {
			return err
		}
		if err := e.listings.MarkStatus(tx, b.ID, models.DedupStatusMatched, &prop.ID); err != nil {
			return err
		}

		e.logger.WithFields(logrus.Fields{
			"candidate_id": candidateID,
			"property_id":  prop.ID,
		}).Info("Review accepted, candidate resolved")
		return nil
	})
}

// RejectMatch is the review-workflow reject callback: the candidate becomes
// confirmed different and each still-unresolved listing of the pair is
// re-evaluated against its remaining candidates.
func (e *Engine) RejectMatch(ctx context.Context, candidateID uint) error {
	cand, err := e.candidates.Get(candidateID)
	if err != nil {
		return err
	}

	if err := e.candidates.Reject(e.db.WithContext(ctx), cand.ID); err != nil {
		return err
	}
	e.logger.WithField("candidate_id", candidateID).Info("Review rejected, candidate confirmed different")

	for _, id := range []uint{cand.ListingAID, cand.ListingBID} {
		if err := e.reevaluate(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// reevaluate re-runs the decision rules for a listing still parked in
// needs_review, using its persisted candidates.
func (e *Engine) reevaluate(ctx context.Context, listingID uint) error {
	listing, err := e.listings.Get(listingID)
	if err != nil {
		return err
	}
	if listing.PropertyID != nil || listing.DedupStatus != models.DedupStatusNeedsReview {
		return nil
	}

	all, err := e.candidates.FindForListing(listingID)
	if err != nil {
		return err
	}
	remaining := all[:0]
	for _, c := range all {
		if c.Status != models.CandidateStatusConfirmedDifferent {
			remaining = append(remaining, c)
		}
	}

	if err := e.decide(ctx, listing, remaining); err != nil {
		return fmt.Errorf("failed to re-evaluate listing %d: %w", listingID, err)
	}
	return nil
}
