package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"propmatch/server/internal/database"
	"propmatch/server/internal/dedup"
	"propmatch/server/internal/queue"
)

type Handler struct {
	db         *gorm.DB
	listings   *database.ListingStore
	candidates *database.CandidateStore
	properties *database.PropertyStore
	conflicts  *database.ConflictStore
	engine     *dedup.Engine
	queue      *queue.TaskQueue
	logger     *logrus.Logger
}

func NewHandler(db *gorm.DB, engine *dedup.Engine, taskQueue *queue.TaskQueue, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		db:         db,
		listings:   database.NewListingStore(db),
		candidates: database.NewCandidateStore(db),
		properties: database.NewPropertyStore(db),
		conflicts:  database.NewConflictStore(db),
		engine:     engine,
		queue:      taskQueue,
		logger:     logger,
	}
}

// GetDedupStats reports the pipeline counters for the stats surface.
func (h *Handler) GetDedupStats(c *gin.Context) {
	stats, err := database.GetDedupStats(h.db)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get dedup stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get dedup stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ProcessListing enqueues a dedup pass for a listing. Idempotent: a listing
// already queued, in flight or in a terminal status is reported as such
// instead of erroring.
func (h *Handler) ProcessListing(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	if _, err := h.listings.Get(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to load listing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load listing"})
		return
	}

	switch err := h.queue.Push(id); {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	case errors.Is(err, queue.ErrAlreadyQueued):
		c.JSON(http.StatusOK, gin.H{"status": "already queued"})
	case errors.Is(err, queue.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Queue is full, try again later"})
	default:
		h.logger.WithError(err).Error("Failed to enqueue listing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue listing"})
	}
}

// GetListingCandidates returns every comparison the listing appears in,
// highest score first.
func (h *Handler) GetListingCandidates(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	cands, err := h.candidates.FindForListing(id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get candidates")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get candidates"})
		return
	}

	c.JSON(http.StatusOK, cands)
}

// ResolveCandidate is the review-workflow accept callback.
func (h *Handler) ResolveCandidate(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	if err := h.engine.ResolveMatch(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Candidate not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to resolve candidate")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve candidate"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

// RejectCandidate is the review-workflow reject callback.
func (h *Handler) RejectCandidate(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	if err := h.engine.RejectMatch(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Candidate not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to reject candidate")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reject candidate"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

// GetProperty returns a property together with its recorded merge conflicts.
func (h *Handler) GetProperty(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	prop, err := h.properties.Get(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to get property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get property"})
		return
	}

	conflicts, err := h.conflicts.ListForProperty(id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get conflicts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get conflicts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"property":  prop,
		"conflicts": conflicts,
	})
}

func (h *Handler) idParam(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return uint(id), true
}
