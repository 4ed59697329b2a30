package adapter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publish-dispatcher/internal/circuitbreaker"
	"github.com/publish-dispatcher/internal/errors"
	"github.com/publish-dispatcher/internal/models"
	"github.com/publish-dispatcher/internal/ratelimit"
	"github.com/publish-dispatcher/internal/types"
)

// stubPublisher returns a canned outcome and records calls.
type stubPublisher struct {
	platform types.Platform
	result   *PublishResult
	err      error
	calls    int
}

func (s *stubPublisher) Platform() types.Platform { return s.platform }

func (s *stubPublisher) Publish(ctx context.Context, account *models.PlatformAccount, req *PublishRequest) (*PublishResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func TestGuardedPublishSuccess(t *testing.T) {
	inner := &stubPublisher{
		platform: types.PlatformTwitter,
		result:   &PublishResult{Platform: types.PlatformTwitter, RemotePostID: "1"},
	}
	breakers := circuitbreaker.NewManager(5, time.Minute)
	guarded := NewGuardedPublisher(inner, breakers, nil, 0)

	result, err := guarded.Publish(context.Background(), testAccount(types.PlatformTwitter), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "1", result.RemotePostID)
	assert.Equal(t, 1, inner.calls)
}

func TestGuardedPublishRecordsFailures(t *testing.T) {
	inner := &stubPublisher{
		platform: types.PlatformTwitter,
		err:      errors.NewTransientNetworkError(types.PlatformTwitter, fmt.Errorf("reset")),
	}
	breakers := circuitbreaker.NewManager(3, time.Minute)
	guarded := NewGuardedPublisher(inner, breakers, nil, 0)

	ctx := context.Background()
	account := testAccount(types.PlatformTwitter)

	for i := 0; i < 3; i++ {
		_, err := guarded.Publish(ctx, account, testRequest())
		require.Error(t, err)
	}

	// The breaker opened; further calls are refused before the adapter runs
	_, err := guarded.Publish(ctx, account, testRequest())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeCircuitOpen))
	assert.Equal(t, 3, inner.calls)
}

func TestGuardedPublishRateLimitRefusalSkipsBreaker(t *testing.T) {
	inner := &stubPublisher{
		platform: types.PlatformTwitter,
		result:   &PublishResult{Platform: types.PlatformTwitter},
	}
	breakers := circuitbreaker.NewManager(1, time.Minute)
	tracker := ratelimit.NewTracker(nil)
	tracker.Update(types.PlatformTwitter, twitterPostEndpoint, &ratelimit.Quota{
		Remaining: 0,
		ResetAt:   time.Now().Add(time.Hour),
	})
	guarded := NewGuardedPublisher(inner, breakers, tracker, 0)

	_, err := guarded.Publish(context.Background(), testAccount(types.PlatformTwitter), testRequest())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeRateLimited))

	// A local refusal is not a platform failure: the call never happened and
	// the breaker stays closed despite its threshold of one.
	assert.Equal(t, 0, inner.calls)
	assert.Equal(t, circuitbreaker.StateClosed, breakers.Get(types.PlatformTwitter).GetState())
}

// panickyPublisher simulates an adapter bug that panics mid-call.
type panickyPublisher struct {
	platform types.Platform
	calls    int
}

func (p *panickyPublisher) Platform() types.Platform { return p.platform }

func (p *panickyPublisher) Publish(ctx context.Context, account *models.PlatformAccount, req *PublishRequest) (*PublishResult, error) {
	p.calls++
	panic("assignment to entry in nil map")
}

func TestGuardedPublishPanicRecordsFailure(t *testing.T) {
	inner := &panickyPublisher{platform: types.PlatformTwitter}
	breakers := circuitbreaker.NewManager(1, time.Minute)
	guarded := NewGuardedPublisher(inner, breakers, nil, 0)

	ctx := context.Background()
	account := testAccount(types.PlatformTwitter)

	// The panic surfaces as an error, not a crash, and counts as a failure
	result, err := guarded.Publish(ctx, account, testRequest())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.IsCode(err, errors.CodeUnknown))
	assert.Equal(t, circuitbreaker.StateOpen, breakers.Get(types.PlatformTwitter).GetState())

	// With the outcome recorded the breaker refuses instead of wedging: the
	// next call is an orderly CircuitOpen, the adapter never runs again.
	_, err = guarded.Publish(ctx, account, testRequest())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeCircuitOpen))
	assert.Equal(t, 1, inner.calls)
}

func TestGuardedPublishSuccessClosesBreaker(t *testing.T) {
	inner := &stubPublisher{
		platform: types.PlatformTwitter,
		err:      errors.NewTransientNetworkError(types.PlatformTwitter, fmt.Errorf("reset")),
	}
	breakers := circuitbreaker.NewManager(2, time.Minute)
	guarded := NewGuardedPublisher(inner, breakers, nil, 0)

	ctx := context.Background()
	account := testAccount(types.PlatformTwitter)

	_, _ = guarded.Publish(ctx, account, testRequest())
	inner.err = nil
	inner.result = &PublishResult{Platform: types.PlatformTwitter}

	_, err := guarded.Publish(ctx, account, testRequest())
	require.NoError(t, err)

	stats := breakers.Get(types.PlatformTwitter).GetStats()
	assert.Equal(t, 0, stats.ConsecutiveFails)
}
