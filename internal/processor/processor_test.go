package processor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publish-dispatcher/internal/adapter"
	"github.com/publish-dispatcher/internal/errors"
	"github.com/publish-dispatcher/internal/models"
	"github.com/publish-dispatcher/internal/notify"
	"github.com/publish-dispatcher/internal/retry"
	"github.com/publish-dispatcher/internal/storage"
	"github.com/publish-dispatcher/internal/types"
)

// fakeStore is an in-memory Store tracking the recorded outcome.
type fakeStore struct {
	mu   sync.Mutex
	post *models.ScheduledPost

	outcomeStatus types.JobStatus
	lastError     *string
	nextAttemptAt *time.Time
	refunded      bool
	outcomeCalls  int
}

func (s *fakeStore) MarkProcessing(ctx context.Context, jobID string) (*models.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.post == nil || s.post.JobID != jobID {
		return nil, storage.ErrJobNotFound
	}
	if s.post.Status != types.StatusPending {
		return nil, storage.ErrInvalidState
	}

	s.post.Status = types.StatusProcessing
	s.post.AttemptCount++

	claimed := *s.post
	return &claimed, nil
}

func (s *fakeStore) RecordOutcome(ctx context.Context, jobID string, status types.JobStatus, lastError *string, nextAttemptAt *time.Time, refundAttempt bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcomeStatus = status
	s.lastError = lastError
	s.nextAttemptAt = nextAttemptAt
	s.refunded = refundAttempt
	s.outcomeCalls++

	s.post.Status = status
	if refundAttempt {
		s.post.AttemptCount--
	}
	return nil
}

// fakeResults captures audit records.
type fakeResults struct {
	mu      sync.Mutex
	records []*models.PublishResultRecord
}

func (r *fakeResults) BatchInsert(ctx context.Context, records []*models.PublishResultRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
	return nil
}

// fakeProvider resolves a canned account for every owner.
type fakeProvider struct {
	err error
}

func (p *fakeProvider) Resolve(ctx context.Context, ownerID string, platform types.Platform) (*models.PlatformAccount, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &models.PlatformAccount{
		ID:          "acct-" + string(platform),
		OwnerID:     ownerID,
		Platform:    platform,
		Handle:      "handle",
		AccessToken: "token",
		Active:      true,
	}, nil
}

// fakePublisher returns a configured outcome per call.
type fakePublisher struct {
	platform types.Platform
	result   *adapter.PublishResult
	err      error
	calls    int
	mu       sync.Mutex
}

func (p *fakePublisher) Platform() types.Platform { return p.platform }

func (p *fakePublisher) Publish(ctx context.Context, account *models.PlatformAccount, req *adapter.PublishRequest) (*adapter.PublishResult, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

// fakeNotifier captures summaries and optionally fails.
type fakeNotifier struct {
	mu        sync.Mutex
	summaries []*notify.Summary
	err       error
}

func (n *fakeNotifier) Notify(ctx context.Context, summary *notify.Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summary)
	return n.err
}

func pendingPost(platforms ...types.Platform) *models.ScheduledPost {
	return &models.ScheduledPost{
		JobID:       "job-1",
		OwnerID:     "owner-1",
		Content:     "launch day!",
		Platforms:   platforms,
		ScheduledAt: time.Now().Add(-time.Minute),
		Status:      types.StatusPending,
		MaxAttempts: 3,
	}
}

func newTestProcessor(store *fakeStore, publishers ...*fakePublisher) (*Processor, *fakeResults, *fakeNotifier) {
	registry := adapter.NewRegistry()
	for _, pub := range publishers {
		registry.Register(pub)
	}

	results := &fakeResults{}
	notifier := &fakeNotifier{}
	proc := New(store, results, &fakeProvider{}, registry, retry.DefaultPolicy(), notifier, nil)
	return proc, results, notifier
}

func TestProcessAllPlatformsSucceed(t *testing.T) {
	store := &fakeStore{post: pendingPost(types.PlatformTwitter, types.PlatformLinkedIn)}
	twitter := &fakePublisher{
		platform: types.PlatformTwitter,
		result:   &adapter.PublishResult{Platform: types.PlatformTwitter, RemotePostID: "t-1"},
	}
	linkedin := &fakePublisher{
		platform: types.PlatformLinkedIn,
		result:   &adapter.PublishResult{Platform: types.PlatformLinkedIn, RemotePostID: "l-1"},
	}

	proc, results, notifier := newTestProcessor(store, twitter, linkedin)
	require.NoError(t, proc.Process(context.Background(), "job-1"))

	assert.Equal(t, types.StatusCompleted, store.outcomeStatus)
	assert.Nil(t, store.nextAttemptAt)
	assert.Nil(t, store.lastError)
	assert.False(t, store.refunded)
	assert.Equal(t, 1, twitter.calls)
	assert.Equal(t, 1, linkedin.calls)

	require.Len(t, results.records, 2)
	for _, record := range results.records {
		assert.True(t, record.Success)
		assert.Equal(t, 1, record.Attempt)
	}

	require.Len(t, notifier.summaries, 1)
	assert.Equal(t, types.StatusCompleted, notifier.summaries[0].Status)
}

func TestProcessPartialFailureIsTerminal(t *testing.T) {
	store := &fakeStore{post: pendingPost(types.PlatformTwitter, types.PlatformLinkedIn)}
	twitter := &fakePublisher{
		platform: types.PlatformTwitter,
		result:   &adapter.PublishResult{Platform: types.PlatformTwitter, RemotePostID: "t-1"},
	}
	linkedin := &fakePublisher{
		platform: types.PlatformLinkedIn,
		err:      errors.NewTransientNetworkError(types.PlatformLinkedIn, fmt.Errorf("connection reset")),
	}

	proc, _, _ := newTestProcessor(store, twitter, linkedin)
	require.NoError(t, proc.Process(context.Background(), "job-1"))

	// Even though the LinkedIn failure is retryable, re-running the job would
	// duplicate the tweet, so the post settles as partial failure.
	assert.Equal(t, types.StatusPartialFailure, store.outcomeStatus)
	assert.Nil(t, store.nextAttemptAt)
	require.NotNil(t, store.lastError)
	assert.Contains(t, *store.lastError, "linkedin")
}

func TestProcessRetryableFailureReschedules(t *testing.T) {
	store := &fakeStore{post: pendingPost(types.PlatformTwitter)}
	twitter := &fakePublisher{
		platform: types.PlatformTwitter,
		err:      errors.NewTransientNetworkError(types.PlatformTwitter, fmt.Errorf("timeout")),
	}

	proc, results, _ := newTestProcessor(store, twitter)
	require.NoError(t, proc.Process(context.Background(), "job-1"))

	assert.Equal(t, types.StatusPending, store.outcomeStatus)
	require.NotNil(t, store.nextAttemptAt)
	assert.True(t, store.nextAttemptAt.After(time.Now()))
	assert.False(t, store.refunded)
	assert.Equal(t, 1, store.post.AttemptCount)

	require.Len(t, results.records, 1)
	assert.False(t, results.records[0].Success)
	assert.True(t, results.records[0].Retryable)
}

func TestProcessNonRetryableFailureFailsImmediately(t *testing.T) {
	store := &fakeStore{post: pendingPost(types.PlatformTwitter)}
	twitter := &fakePublisher{
		platform: types.PlatformTwitter,
		err:      errors.NewPlatformRejectedError(types.PlatformTwitter, "duplicate content"),
	}

	proc, _, notifier := newTestProcessor(store, twitter)
	require.NoError(t, proc.Process(context.Background(), "job-1"))

	// No retry budget is wasted on an error that cannot succeed
	assert.Equal(t, types.StatusFailed, store.outcomeStatus)
	assert.Nil(t, store.nextAttemptAt)

	require.Len(t, notifier.summaries, 1)
	assert.Equal(t, errors.CodePlatformRejected, notifier.summaries[0].Outcomes[0].ErrorCode)
}

func TestProcessExhaustedAttemptsFail(t *testing.T) {
	post := pendingPost(types.PlatformTwitter)
	post.AttemptCount = 2 // the claim consumes the third and final attempt
	store := &fakeStore{post: post}
	twitter := &fakePublisher{
		platform: types.PlatformTwitter,
		err:      errors.NewTransientNetworkError(types.PlatformTwitter, fmt.Errorf("timeout")),
	}

	proc, _, _ := newTestProcessor(store, twitter)
	require.NoError(t, proc.Process(context.Background(), "job-1"))

	assert.Equal(t, types.StatusFailed, store.outcomeStatus)
	assert.Nil(t, store.nextAttemptAt)
}

func TestProcessHonorsPerPostAttemptCeiling(t *testing.T) {
	post := pendingPost(types.PlatformTwitter)
	post.MaxAttempts = 1
	store := &fakeStore{post: post}
	twitter := &fakePublisher{
		platform: types.PlatformTwitter,
		err:      errors.NewTransientNetworkError(types.PlatformTwitter, fmt.Errorf("timeout")),
	}

	proc, _, _ := newTestProcessor(store, twitter)
	require.NoError(t, proc.Process(context.Background(), "job-1"))

	// The post's own ceiling wins over the policy default: its single attempt
	// failed retryably, and the post settles as failed, not rescheduled.
	assert.Equal(t, types.StatusFailed, store.outcomeStatus)
	assert.Nil(t, store.nextAttemptAt)
	assert.Equal(t, 1, store.post.AttemptCount)
}

func TestProcessAllCircuitOpenRefundsAttempt(t *testing.T) {
	cooldown := 45 * time.Second
	store := &fakeStore{post: pendingPost(types.PlatformTwitter, types.PlatformLinkedIn)}
	twitter := &fakePublisher{
		platform: types.PlatformTwitter,
		err:      errors.NewCircuitOpenError(types.PlatformTwitter, cooldown),
	}
	linkedin := &fakePublisher{
		platform: types.PlatformLinkedIn,
		err:      errors.NewCircuitOpenError(types.PlatformLinkedIn, cooldown),
	}

	proc, _, _ := newTestProcessor(store, twitter, linkedin)
	require.NoError(t, proc.Process(context.Background(), "job-1"))

	// Nothing reached any platform, so the attempt is handed back
	assert.Equal(t, types.StatusPending, store.outcomeStatus)
	assert.True(t, store.refunded)
	assert.Equal(t, 0, store.post.AttemptCount)
	require.NotNil(t, store.nextAttemptAt)
}

func TestProcessMixedCircuitOpenConsumesAttempt(t *testing.T) {
	store := &fakeStore{post: pendingPost(types.PlatformTwitter, types.PlatformLinkedIn)}
	twitter := &fakePublisher{
		platform: types.PlatformTwitter,
		err:      errors.NewCircuitOpenError(types.PlatformTwitter, time.Minute),
	}
	linkedin := &fakePublisher{
		platform: types.PlatformLinkedIn,
		err:      errors.NewTransientNetworkError(types.PlatformLinkedIn, fmt.Errorf("timeout")),
	}

	proc, _, _ := newTestProcessor(store, twitter, linkedin)
	require.NoError(t, proc.Process(context.Background(), "job-1"))

	// A real platform failure happened, so this round counts
	assert.Equal(t, types.StatusPending, store.outcomeStatus)
	assert.False(t, store.refunded)
	assert.Equal(t, 1, store.post.AttemptCount)
}

func TestProcessRateLimitHintDelaysRetry(t *testing.T) {
	store := &fakeStore{post: pendingPost(types.PlatformTwitter)}
	hint := 10 * time.Minute
	twitter := &fakePublisher{
		platform: types.PlatformTwitter,
		err:      errors.NewRateLimitError(types.PlatformTwitter, hint),
	}

	proc, _, _ := newTestProcessor(store, twitter)

	before := time.Now()
	require.NoError(t, proc.Process(context.Background(), "job-1"))

	assert.Equal(t, types.StatusPending, store.outcomeStatus)
	require.NotNil(t, store.nextAttemptAt)
	// The platform-mandated wait takes precedence over the 60s backoff
	assert.False(t, store.nextAttemptAt.Before(before.Add(hint)))
}

func TestProcessSkipsCancelledJob(t *testing.T) {
	post := pendingPost(types.PlatformTwitter)
	post.Status = types.StatusCancelled
	store := &fakeStore{post: post}
	twitter := &fakePublisher{platform: types.PlatformTwitter}

	proc, _, notifier := newTestProcessor(store, twitter)
	require.NoError(t, proc.Process(context.Background(), "job-1"))

	assert.Equal(t, 0, twitter.calls)
	assert.Equal(t, 0, store.outcomeCalls)
	assert.Empty(t, notifier.summaries)
}

func TestProcessMissingAccountIsConfigurationFailure(t *testing.T) {
	store := &fakeStore{post: pendingPost(types.PlatformTwitter)}
	twitter := &fakePublisher{
		platform: types.PlatformTwitter,
		result:   &adapter.PublishResult{Platform: types.PlatformTwitter, RemotePostID: "t-1"},
	}

	registry := adapter.NewRegistry()
	registry.Register(twitter)
	provider := &fakeProvider{err: errors.NewConfigurationError(types.PlatformTwitter, "no active twitter account connected")}
	proc := New(store, &fakeResults{}, provider, registry, retry.DefaultPolicy(), nil, nil)

	require.NoError(t, proc.Process(context.Background(), "job-1"))

	assert.Equal(t, 0, twitter.calls)
	assert.Equal(t, types.StatusFailed, store.outcomeStatus)
}

func TestProcessNotifierFailureDoesNotFailJob(t *testing.T) {
	store := &fakeStore{post: pendingPost(types.PlatformTwitter)}
	twitter := &fakePublisher{
		platform: types.PlatformTwitter,
		result:   &adapter.PublishResult{Platform: types.PlatformTwitter, RemotePostID: "t-1"},
	}

	registry := adapter.NewRegistry()
	registry.Register(twitter)
	notifier := &fakeNotifier{err: fmt.Errorf("redis down")}
	proc := New(store, &fakeResults{}, &fakeProvider{}, registry, retry.DefaultPolicy(), notifier, nil)

	require.NoError(t, proc.Process(context.Background(), "job-1"))
	assert.Equal(t, types.StatusCompleted, store.outcomeStatus)
}
