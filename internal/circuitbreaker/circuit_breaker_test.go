package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publish-dispatcher/internal/errors"
	"github.com/publish-dispatcher/internal/types"
)

// testClock is an adjustable time source for breaker tests.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(threshold int, timeout time.Duration) (*Breaker, *testClock) {
	clock := &testClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	b := New(&Config{
		Platform:         types.PlatformTwitter,
		FailureThreshold: threshold,
		RecoveryTimeout:  timeout,
	})
	b.now = clock.Now
	return b, clock
}

func TestBreakerStartsClosed(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)

	assert.Equal(t, StateClosed, b.GetState())
	assert.NoError(t, b.Allow())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		assert.Equal(t, StateClosed, b.GetState(), "failure %d should not open", i+1)
	}

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.GetState())

	err := b.Allow()
	require.Error(t, err)

	classified, ok := errors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeCircuitOpen, classified.Code)
	require.NotNil(t, classified.RetryAfter)
	assert.Equal(t, time.Minute, *classified.RetryAfter)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)

	// Interleaved successes keep the consecutive count below the threshold
	for i := 0; i < 20; i++ {
		b.RecordFailure()
		if i%3 == 2 {
			b.RecordSuccess()
		}
	}

	assert.Equal(t, StateClosed, b.GetState())
}

func TestBreakerHalfOpenAdmitsSingleTrial(t *testing.T) {
	b, clock := newTestBreaker(2, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, StateOpen, b.GetState())

	// Still open before the recovery timeout elapses
	clock.Advance(59 * time.Second)
	require.Error(t, b.Allow())

	clock.Advance(2 * time.Second)

	// First call transitions to half-open and is admitted
	assert.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.GetState())

	// A concurrent second call is refused while the trial is in flight
	assert.Error(t, b.Allow())
}

func TestBreakerClosesAfterSuccessfulTrial(t *testing.T) {
	b, clock := newTestBreaker(2, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	clock.Advance(61 * time.Second)

	require.NoError(t, b.Allow())
	b.RecordSuccess()

	assert.Equal(t, StateClosed, b.GetState())
	assert.NoError(t, b.Allow())
}

func TestBreakerReopensAfterFailedTrial(t *testing.T) {
	b, clock := newTestBreaker(2, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	clock.Advance(61 * time.Second)

	require.NoError(t, b.Allow())
	b.RecordFailure()

	assert.Equal(t, StateOpen, b.GetState())
	require.Error(t, b.Allow())

	// The recovery timer restarted at the failed trial
	clock.Advance(61 * time.Second)
	assert.NoError(t, b.Allow())
}

func TestBreakerReset(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	require.Equal(t, StateOpen, b.GetState())

	b.Reset()
	assert.Equal(t, StateClosed, b.GetState())
	assert.NoError(t, b.Allow())
}

func TestManagerCreatesBreakerPerPlatform(t *testing.T) {
	m := NewManager(5, time.Minute)

	twitter := m.Get(types.PlatformTwitter)
	linkedin := m.Get(types.PlatformLinkedIn)

	assert.NotSame(t, twitter, linkedin)
	assert.Same(t, twitter, m.Get(types.PlatformTwitter))

	// A failure on one platform never affects another
	for i := 0; i < 5; i++ {
		twitter.RecordFailure()
	}
	assert.Equal(t, StateOpen, twitter.GetState())
	assert.Equal(t, StateClosed, linkedin.GetState())

	stats := m.AllStats()
	assert.Len(t, stats, 2)
}
