// Package worker provides an asynchronous worker pool for publishing
// assembled chat messages to the configured eventstream.Publisher.
//
// The pool decouples publishing from the relay's hot path so that a slow or
// unavailable event backend never delays a streamed response.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/streamrelay/pkg/eventstream"
)

var (
	defaultNumWorkers     uint = 3
	defaultJobQueueSize   uint = 256
	defaultPublishTimeout      = 10 * time.Second
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Event *eventstream.MessageAssembledEvent
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Publisher receives every assembled message event.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// PublishTimeout bounds a single publish (defaults to 10s).
	PublishTimeout time.Duration

	Logger *slog.Logger
}

// Pool publishes events asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, errors.New("publisher is required")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.PublishTimeout == 0 {
		c.PublishTimeout = defaultPublishTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed")
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued", "event_id", eventID(job))
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped", "event_id", eventID(job))
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the relay sessions have finished.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("publish worker stopped", "worker_id", id)
}

// processJob publishes a single event. Failures are logged and the event is
// dropped; publishing is best effort.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()

	if err := p.config.Publisher.PublishMessage(ctx, job.Event); err != nil {
		p.logger.Error("publishing assembled message failed",
			"event_id", eventID(job),
			"error", err,
		)
		return
	}

	p.logger.Debug("assembled message published",
		"event_id", eventID(job),
		"session", job.Event.Source.SessionID,
	)
}

func eventID(job Job) string {
	if job.Event == nil {
		return ""
	}
	return job.Event.EventID
}
