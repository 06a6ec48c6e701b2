package queue

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull     = errors.New("queue is full")
	ErrQueueClosed   = errors.New("queue is closed")
	ErrAlreadyQueued = errors.New("listing is already queued or in flight")
)

// Task is one dedup pass to run for a listing.
type Task struct {
	JobID     uuid.UUID
	ListingID uint
}

// TaskQueue is the in-memory queue feeding the dedup workers. An in-flight
// guard with a TTL keeps the scheduler and the HTTP trigger from enqueueing a
// listing that is already queued or being processed; the TTL bounds how long
// a crashed worker can hold a listing's slot.
type TaskQueue struct {
	items    chan Task
	inflight *gocache.Cache
	maxSize  int
	closed   bool
	mu       sync.RWMutex
	logger   *logrus.Logger
}

// NewTaskQueue creates a task queue with the given buffer size and in-flight
// guard TTL.
func NewTaskQueue(bufferSize int, inflightTTL time.Duration, logger *logrus.Logger) *TaskQueue {
	if logger == nil {
		logger = logrus.New()
	}
	return &TaskQueue{
		items:    make(chan Task, bufferSize),
		inflight: gocache.New(inflightTTL, inflightTTL),
		maxSize:  bufferSize,
		logger:   logger,
	}
}

// Push enqueues a dedup task for the listing. Returns ErrAlreadyQueued while
// a previous task for the same listing is still in flight.
func (q *TaskQueue) Push(listingID uint) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.mu.RUnlock()

	key := inflightKey(listingID)
	if err := q.inflight.Add(key, true, gocache.DefaultExpiration); err != nil {
		return ErrAlreadyQueued
	}

	task := Task{JobID: uuid.New(), ListingID: listingID}

	// Non-blocking send to prevent deadlocks
	select {
	case q.items <- task:
		q.logger.WithFields(logrus.Fields{
			"job_id":     task.JobID,
			"listing_id": listingID,
		}).Debug("Queued dedup task")
		return nil
	default:
		q.inflight.Delete(key)
		return ErrQueueFull
	}
}

// Tasks exposes the task channel for workers to consume. The channel closes
// when the queue closes.
func (q *TaskQueue) Tasks() <-chan Task {
	return q.items
}

// Done releases the in-flight guard for a listing once its pass finished,
// successfully or not.
func (q *TaskQueue) Done(listingID uint) {
	q.inflight.Delete(inflightKey(listingID))
}

// Close stops the queue and prevents new tasks from being added.
func (q *TaskQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.items)
	return nil
}

// Len returns the number of tasks currently buffered.
func (q *TaskQueue) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed.
func (q *TaskQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func inflightKey(listingID uint) string {
	return "listing:" + strconv.FormatUint(uint64(listingID), 10)
}
