// Package processor executes one processing round for a claimed scheduled
// post: resolve credentials, fan out to every target platform concurrently,
// persist the attempt records, and settle the post into its next status.
package processor

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/publish-dispatcher/internal/adapter"
	"github.com/publish-dispatcher/internal/credentials"
	"github.com/publish-dispatcher/internal/errors"
	"github.com/publish-dispatcher/internal/logging"
	"github.com/publish-dispatcher/internal/models"
	"github.com/publish-dispatcher/internal/notify"
	"github.com/publish-dispatcher/internal/retry"
	"github.com/publish-dispatcher/internal/storage"
	"github.com/publish-dispatcher/internal/types"
)

// Store is the scheduled post persistence the processor drives.
type Store interface {
	MarkProcessing(ctx context.Context, jobID string) (*models.ScheduledPost, error)
	RecordOutcome(ctx context.Context, jobID string, status types.JobStatus, lastError *string, nextAttemptAt *time.Time, refundAttempt bool) error
}

// ResultStore is the append-only audit log for attempt records.
type ResultStore interface {
	BatchInsert(ctx context.Context, records []*models.PublishResultRecord) error
}

// PublishRegistry is the best-effort duplicate guard keyed by idempotency
// key. Both methods may fail without failing the job.
type PublishRegistry interface {
	MarkPublished(ctx context.Context, idempotencyKey string) error
	WasPublished(ctx context.Context, idempotencyKey string) (bool, error)
}

// Processor runs one scheduled post through a single attempt round.
type Processor struct {
	store    Store
	results  ResultStore
	accounts credentials.Provider
	registry *adapter.Registry
	policy   *retry.Policy
	notifier notify.Notifier
	attempts PublishRegistry

	logger *logging.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a processor. notifier and attempts may be nil.
func New(store Store, results ResultStore, accounts credentials.Provider, registry *adapter.Registry, policy *retry.Policy, notifier notify.Notifier, attempts PublishRegistry) *Processor {
	if policy == nil {
		policy = retry.DefaultPolicy()
	}
	return &Processor{
		store:    store,
		results:  results,
		accounts: accounts,
		registry: registry,
		policy:   policy,
		notifier: notifier,
		attempts: attempts,
		logger:   logging.WithComponent("processor"),
		now:      time.Now,
	}
}

// platformOutcome is the in-memory result of one platform call.
type platformOutcome struct {
	platform   types.Platform
	result     *adapter.PublishResult
	classified *errors.ClassifiedError
}

// Process runs one attempt round for the given job. A post that is no longer
// pending is skipped silently: another worker claimed it, or the owner
// cancelled it between pickup and claim.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	post, err := p.store.MarkProcessing(ctx, jobID)
	if err != nil {
		if stderrors.Is(err, storage.ErrInvalidState) || stderrors.Is(err, storage.ErrJobNotFound) {
			p.logger.WithField("jobId", jobID).Debug("Post no longer claimable, skipping")
			return nil
		}
		return fmt.Errorf("failed to claim post %s: %w", jobID, err)
	}

	log := p.logger.WithFields(map[string]interface{}{
		"jobId":   post.JobID,
		"attempt": post.AttemptCount,
	})
	log.WithField("platforms", len(post.Platforms)).Info("Processing scheduled post")

	outcomes := p.fanOut(ctx, post)

	p.persistResults(ctx, post, outcomes)

	status, lastError, nextAttemptAt, refund := p.settle(post, outcomes)

	if err := p.store.RecordOutcome(ctx, post.JobID, status, lastError, nextAttemptAt, refund); err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", post.JobID, err)
	}

	log.WithField("status", status).Info("Scheduled post settled")

	p.sendNotification(ctx, post, status, outcomes, nextAttemptAt)

	return nil
}

// fanOut publishes to every target platform concurrently. Panics in a single
// platform call are contained and surface as an unknown failure for that
// platform only.
func (p *Processor) fanOut(ctx context.Context, post *models.ScheduledPost) []platformOutcome {
	outcomes := make([]platformOutcome, len(post.Platforms))

	var wg sync.WaitGroup
	for i, platform := range post.Platforms {
		wg.Add(1)
		go func(i int, platform types.Platform) {
			defer wg.Done()
			outcomes[i] = p.publishOne(ctx, post, platform)
		}(i, platform)
	}
	wg.Wait()

	return outcomes
}

// publishOne runs the full publish path for a single platform.
func (p *Processor) publishOne(ctx context.Context, post *models.ScheduledPost, platform types.Platform) (outcome platformOutcome) {
	outcome.platform = platform

	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(map[string]interface{}{
				"jobId":    post.JobID,
				"platform": platform,
				"panic":    r,
			}).Error("Recovered from panic in platform publish")
			outcome.result = nil
			outcome.classified = errors.NewUnknownError(platform, fmt.Errorf("panic: %v", r))
		}
	}()

	idempotencyKey := fmt.Sprintf("%s:%s", post.JobID, platform)

	if p.attempts != nil {
		published, err := p.attempts.WasPublished(ctx, idempotencyKey)
		if err != nil {
			p.logger.WithError(err).WithField("platform", platform).Warn("Duplicate guard unavailable, publishing anyway")
		} else if published {
			outcome.result = &adapter.PublishResult{Platform: platform}
			return outcome
		}
	}

	publisher, err := p.registry.Get(platform)
	if err != nil {
		outcome.classified = errors.NewConfigurationError(platform, err.Error())
		return outcome
	}

	account, err := p.accounts.Resolve(ctx, post.OwnerID, platform)
	if err != nil {
		outcome.classified = errors.Classify(platform, err)
		return outcome
	}

	result, err := publisher.Publish(ctx, account, &adapter.PublishRequest{
		JobID:          post.JobID,
		IdempotencyKey: idempotencyKey,
		Content:        post.Content,
		MediaURLs:      post.MediaURLs,
		Hashtags:       post.Hashtags,
		Mentions:       post.Mentions,
		Location:       post.Location,
	})
	if err != nil {
		outcome.classified = errors.Classify(platform, err)
		return outcome
	}

	outcome.result = result

	if p.attempts != nil {
		if err := p.attempts.MarkPublished(ctx, idempotencyKey); err != nil {
			p.logger.WithError(err).WithField("platform", platform).Warn("Failed to record publish in duplicate guard")
		}
	}

	return outcome
}

// persistResults appends one audit record per platform outcome. Audit log
// failures are logged and dropped; the settle decision does not depend on the
// audit log being writable.
func (p *Processor) persistResults(ctx context.Context, post *models.ScheduledPost, outcomes []platformOutcome) {
	if p.results == nil {
		return
	}

	records := make([]*models.PublishResultRecord, 0, len(outcomes))
	for _, outcome := range outcomes {
		record := &models.PublishResultRecord{
			ID:        uuid.New().String(),
			JobID:     post.JobID,
			Platform:  outcome.platform,
			Attempt:   post.AttemptCount,
			CreatedAt: p.now().UTC(),
		}
		if outcome.result != nil {
			record.Success = true
			record.RemotePostID = outcome.result.RemotePostID
			record.RemoteURL = outcome.result.RemoteURL
		} else if outcome.classified != nil {
			record.ErrorCode = outcome.classified.Code
			record.ErrorMessage = outcome.classified.Message
			record.Retryable = outcome.classified.Retryable
		}
		records = append(records, record)
	}

	if err := p.results.BatchInsert(ctx, records); err != nil {
		p.logger.WithError(err).WithField("jobId", post.JobID).Error("Failed to persist attempt records")
	}
}

// settle aggregates per-platform outcomes into the post's next status.
//
//   - every platform succeeded: completed
//   - a strict subset succeeded: partial_failure, never retried automatically
//     (re-sending would duplicate posts on the platforms that succeeded)
//   - every platform was refused by an open circuit: back to pending with the
//     claimed attempt refunded, since nothing reached any platform
//   - every platform failed, at least one retryably, and attempts remain
//     under both the policy ceiling and the post's own MaxAttempts: pending
//     with the next run time from the backoff policy
//   - otherwise: failed
func (p *Processor) settle(post *models.ScheduledPost, outcomes []platformOutcome) (types.JobStatus, *string, *time.Time, bool) {
	var successes, failures int
	var anyRetryable bool
	allCircuitOpen := len(outcomes) > 0
	var hint *errors.ClassifiedError
	var errParts []string

	for _, outcome := range outcomes {
		if outcome.classified == nil {
			successes++
			allCircuitOpen = false
			continue
		}

		failures++
		errParts = append(errParts, fmt.Sprintf("%s: %s", outcome.platform, outcome.classified.Error()))

		if outcome.classified.Code != errors.CodeCircuitOpen {
			allCircuitOpen = false
		}
		if outcome.classified.Retryable {
			anyRetryable = true
		}
		// Honor the largest platform-mandated wait across failures.
		if outcome.classified.RetryAfter != nil {
			if hint == nil || *outcome.classified.RetryAfter > *hint.RetryAfter {
				hint = outcome.classified
			}
		}
	}

	var lastError *string
	if len(errParts) > 0 {
		joined := strings.Join(errParts, "; ")
		lastError = &joined
	}

	switch {
	case failures == 0:
		return types.StatusCompleted, nil, nil, false

	case successes > 0:
		return types.StatusPartialFailure, lastError, nil, false

	case allCircuitOpen:
		// Nothing reached any platform; the consumed attempt is handed back
		// and the post re-runs once the breaker cooldown has passed.
		nextAt := p.policy.NextAttemptAt(p.now(), post.AttemptCount, hint)
		return types.StatusPending, lastError, &nextAt, true

	case anyRetryable && p.policy.ShouldRetry(post.AttemptCount) && !post.AttemptsExhausted():
		nextAt := p.policy.NextAttemptAt(p.now(), post.AttemptCount, hint)
		return types.StatusPending, lastError, &nextAt, false

	default:
		return types.StatusFailed, lastError, nil, false
	}
}

// sendNotification delivers the round summary. Fire and forget: failures are
// logged, never returned.
func (p *Processor) sendNotification(ctx context.Context, post *models.ScheduledPost, status types.JobStatus, outcomes []platformOutcome, nextAttemptAt *time.Time) {
	if p.notifier == nil {
		return
	}

	summary := &notify.Summary{
		JobID:     post.JobID,
		OwnerID:   post.OwnerID,
		Status:    status,
		Attempt:   post.AttemptCount,
		NextRunAt: nextAttemptAt,
		CreatedAt: p.now().UTC(),
	}
	for _, outcome := range outcomes {
		po := notify.PlatformOutcome{Platform: outcome.platform}
		if outcome.result != nil {
			po.Success = true
			po.RemoteURL = outcome.result.RemoteURL
		} else if outcome.classified != nil {
			po.ErrorCode = outcome.classified.Code
			po.ErrorMessage = outcome.classified.Message
		}
		summary.Outcomes = append(summary.Outcomes, po)
	}

	if err := p.notifier.Notify(ctx, summary); err != nil {
		p.logger.WithError(err).WithField("jobId", post.JobID).Warn("Failed to deliver notification")
	}
}
