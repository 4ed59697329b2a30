// Package dispatcher polls the job store for due scheduled posts and hands
// them to the processor through a bounded worker pool.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/publish-dispatcher/internal/logging"
	"github.com/publish-dispatcher/internal/models"
)

// Default poller configuration values.
const (
	DefaultPollInterval = 30 * time.Second
	DefaultBatchSize    = 50
	DefaultConcurrency  = 5
	DefaultClaimLease   = 5 * time.Minute
)

// JobSource lists due posts for pickup.
type JobSource interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error)
}

// StaleReclaimer hands posts stranded in processing by a dead worker back to
// the queue. Sources that implement it are swept at the start of every tick.
type StaleReclaimer interface {
	ReclaimStale(ctx context.Context, now time.Time, lease time.Duration) (int, error)
}

// JobProcessor runs one attempt round for a job.
type JobProcessor interface {
	Process(ctx context.Context, jobID string) error
}

// Config holds poller configuration. Zero values fall back to defaults.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
	ClaimLease   time.Duration
}

// Poller drives the dispatch cycle. Each tick drains one batch of due posts
// through a bounded worker pool; the batch runs to completion inside the tick
// handler, so a slow batch delays the next tick instead of overlapping it.
type Poller struct {
	source       JobSource
	processor    JobProcessor
	pollInterval time.Duration
	batchSize    int
	concurrency  int
	claimLease   time.Duration

	running       bool
	mu            sync.RWMutex
	stopCh        chan struct{}
	doneCh        chan struct{}
	lastPollTime  time.Time
	ticksRun      uint64
	jobsPicked    uint64
	jobsReclaimed uint64

	logger *logging.Logger
}

// NewPoller creates a poller, applying defaults for zero config values.
func NewPoller(source JobSource, processor JobProcessor, cfg *Config) (*Poller, error) {
	if source == nil {
		return nil, fmt.Errorf("job source cannot be nil")
	}
	if processor == nil {
		return nil, fmt.Errorf("job processor cannot be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	claimLease := cfg.ClaimLease
	if claimLease <= 0 {
		claimLease = DefaultClaimLease
	}

	return &Poller{
		source:       source,
		processor:    processor,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		concurrency:  concurrency,
		claimLease:   claimLease,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		logger:       logging.WithComponent("poller"),
	}, nil
}

// Start begins the dispatch cycle
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller is already running")
	}
	p.running = true
	p.mu.Unlock()

	p.logger.WithFields(map[string]interface{}{
		"pollInterval": p.pollInterval.String(),
		"batchSize":    p.batchSize,
		"concurrency":  p.concurrency,
	}).Info("Starting dispatch poller")

	go p.pollLoop(ctx)

	return nil
}

// Stop gracefully stops the poller, waiting for the in-flight batch.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller is not running")
	}
	p.mu.Unlock()

	p.logger.Info("Stopping dispatch poller")

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.Info("Dispatch poller stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("Dispatch poller stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// pollLoop is the main dispatch loop that runs in a goroutine
func (p *Poller) pollLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Dispatch loop: context cancelled")
			return
		case <-p.stopCh:
			p.logger.Info("Dispatch loop: stop signal received")
			return
		case <-ticker.C:
			p.mu.Lock()
			p.lastPollTime = time.Now()
			p.ticksRun++
			p.mu.Unlock()

			// The tick runs synchronously: missed ticks collapse into one,
			// so batches never overlap.
			picked, err := p.RunOnce(ctx)
			if err != nil {
				p.logger.WithError(err).Error("Dispatch tick failed")
				continue
			}
			if picked > 0 {
				p.logger.WithField("jobs", picked).Info("Dispatch tick completed")
			}
		}
	}
}

// RunOnce drains one batch of due posts through the worker pool and returns
// the number of posts picked up. Posts stranded in processing past the claim
// lease (the claiming worker crashed before settling) are swept back into the
// queue first, so a restart resumes them instead of losing them.
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	if reclaimer, ok := p.source.(StaleReclaimer); ok {
		reclaimed, err := reclaimer.ReclaimStale(ctx, time.Now(), p.claimLease)
		if err != nil {
			p.logger.WithError(err).Warn("Failed to reclaim stranded posts")
		} else if reclaimed > 0 {
			p.mu.Lock()
			p.jobsReclaimed += uint64(reclaimed)
			p.mu.Unlock()
			p.logger.WithField("jobs", reclaimed).Warn("Reclaimed posts stranded by a dead worker")
		}
	}

	posts, err := p.source.ListDue(ctx, time.Now(), p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list due posts: %w", err)
	}
	if len(posts) == 0 {
		return 0, nil
	}

	p.mu.Lock()
	p.jobsPicked += uint64(len(posts))
	p.mu.Unlock()

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

	for _, post := range posts {
		select {
		case <-ctx.Done():
			wg.Wait()
			return len(posts), ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(jobID string) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := p.processor.Process(ctx, jobID); err != nil {
				p.logger.WithError(err).WithField("jobId", jobID).Error("Job processing failed")
			}
		}(post.JobID)
	}

	wg.Wait()
	return len(posts), nil
}

// Stats represents a snapshot of poller activity for the status API.
type Stats struct {
	Running       bool      `json:"running"`
	LastPollTime  time.Time `json:"lastPollTime"`
	TicksRun      uint64    `json:"ticksRun"`
	JobsPicked    uint64    `json:"jobsPicked"`
	JobsReclaimed uint64    `json:"jobsReclaimed"`
}

// GetStats returns a snapshot of poller activity.
func (p *Poller) GetStats() *Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return &Stats{
		Running:       p.running,
		LastPollTime:  p.lastPollTime,
		TicksRun:      p.ticksRun,
		JobsPicked:    p.jobsPicked,
		JobsReclaimed: p.jobsReclaimed,
	}
}
