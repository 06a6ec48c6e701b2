package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"propmatch/server/config"
	"propmatch/server/internal/queue"
)

// Pipeline is the dedup entry point the workers drive. Satisfied by
// *dedup.Engine.
type Pipeline interface {
	ProcessListing(ctx context.Context, listingID uint) error
}

// DedupProcessor runs a pool of workers that consume dedup tasks from the
// queue. Each pass gets a bounded timeout and a small retry budget with
// exponential backoff; after the budget is spent the listing simply stays in
// its previous dedup status and a later sweep picks it up again.
type DedupProcessor struct {
	pipeline  Pipeline
	queue     *queue.TaskQueue
	config    *config.Config
	logger    *logrus.Logger
	waitGroup sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewDedupProcessor creates a new processor instance.
func NewDedupProcessor(pipeline Pipeline, taskQueue *queue.TaskQueue, cfg *config.Config, logger *logrus.Logger) *DedupProcessor {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DedupProcessor{
		pipeline: pipeline,
		queue:    taskQueue,
		config:   cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker pool.
func (p *DedupProcessor) Start() {
	for i := 0; i < p.config.Worker.Count; i++ {
		p.waitGroup.Add(1)
		go p.workLoop(i)
	}
}

// Stop gracefully shuts down the workers. In-flight tasks finish their
// current attempt.
func (p *DedupProcessor) Stop() {
	p.cancel()
	p.waitGroup.Wait()
}

func (p *DedupProcessor) workLoop(worker int) {
	defer p.waitGroup.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.queue.Tasks():
			if !ok {
				return
			}
			p.processTask(worker, task)
		}
	}
}

// processTask runs one dedup pass with retries. The in-flight guard is
// always released, even on permanent failure, so the sweep can requeue the
// listing later.
func (p *DedupProcessor) processTask(worker int, task queue.Task) {
	defer p.queue.Done(task.ListingID)

	log := p.logger.WithFields(logrus.Fields{
		"worker":     worker,
		"job_id":     task.JobID,
		"listing_id": task.ListingID,
	})

	var err error
	for attempt := 0; attempt <= p.config.Worker.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.backoff(attempt)
			log.WithField("attempt", attempt).Infof("Retrying dedup pass in %s", delay)
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		err = p.runOnce(task.ListingID)
		if err == nil {
			log.Debug("Dedup pass completed")
			return
		}
		log.WithError(err).Error("Dedup pass failed")
	}

	log.WithError(err).Errorf("Giving up on dedup pass after %d attempts; listing keeps its previous status",
		p.config.Worker.MaxRetries+1)
}

func (p *DedupProcessor) runOnce(listingID uint) error {
	timeout := time.Duration(p.config.Worker.TaskTimeout) * time.Second
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	if err := p.pipeline.ProcessListing(ctx, listingID); err != nil {
		return fmt.Errorf("dedup pass for listing %d: %w", listingID, err)
	}
	return nil
}

// backoff is base * 2^(attempt-1).
func (p *DedupProcessor) backoff(attempt int) time.Duration {
	base := time.Duration(p.config.Worker.RetryBaseDelay) * time.Second
	return base << (attempt - 1)
}
