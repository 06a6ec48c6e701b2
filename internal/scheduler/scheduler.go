package scheduler

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"propmatch/server/internal/database"
	"propmatch/server/internal/queue"
)

// Scheduler periodically sweeps listings still waiting for a dedup pass and
// enqueues them. Listings already queued or in flight are skipped by the
// queue's guard, so overlapping sweeps are harmless.
type Scheduler struct {
	cron      *cron.Cron
	listings  *database.ListingStore
	queue     *queue.TaskQueue
	spec      string
	batchSize int
	logger    *logrus.Logger
}

func NewScheduler(listings *database.ListingStore, taskQueue *queue.TaskQueue, spec string, batchSize int, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{
		cron:      cron.New(),
		listings:  listings,
		queue:     taskQueue,
		spec:      spec,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Start registers the sweep job and starts the cron loop. An initial sweep
// runs immediately so pending backlog is picked up at boot.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.sweep); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	go s.sweep()
	return nil
}

// Stop halts the cron loop. Already-started sweeps finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) sweep() {
	ids, err := s.listings.PendingIDs(s.batchSize)
	if err != nil {
		s.logger.WithError(err).Error("Pending-listing sweep failed")
		return
	}
	if len(ids) == 0 {
		return
	}

	var enqueued, skipped int
	for _, id := range ids {
		switch err := s.queue.Push(id); {
		case err == nil:
			enqueued++
		case errors.Is(err, queue.ErrAlreadyQueued):
			skipped++
		case errors.Is(err, queue.ErrQueueFull):
			s.logger.WithFields(logrus.Fields{
				"enqueued": enqueued,
				"pending":  len(ids),
			}).Debug("Queue full, stopping sweep early")
			return
		case errors.Is(err, queue.ErrQueueClosed):
			return
		default:
			s.logger.WithError(err).WithField("listing_id", id).Error("Failed to enqueue listing")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"enqueued": enqueued,
		"skipped":  skipped,
	}).Info("Pending-listing sweep completed")
}
