// Package ratelimit tracks remaining call budget per (platform, endpoint) so
// the dispatcher stops hammering platforms that are rate limiting. The ledger
// is advisory: it lives in process memory, is rebuilt from response headers,
// and is safe to lose on restart.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/publish-dispatcher/internal/errors"
	"github.com/publish-dispatcher/internal/types"
)

// Default local pacing applied before the first quota headers are seen.
const (
	DefaultRPS   = 1.0
	DefaultBurst = 5
)

// Quota is the rate limit metadata parsed from a platform response.
type Quota struct {
	Remaining int
	ResetAt   time.Time
}

// endpointState is the tracked ledger entry for one (platform, endpoint) key.
type endpointState struct {
	remaining int
	resetAt   time.Time
	known     bool
}

// LimitConfig holds the default pacing for a platform when the platform
// supplies no quota headers.
type LimitConfig struct {
	RPS   float64
	Burst int
}

// Tracker is the per (platform, endpoint) remaining-quota ledger combined
// with a local token-bucket pacer per platform. Safe for concurrent use by
// multiple job workers; updates are serialized per tracker, not globally.
type Tracker struct {
	mu       sync.Mutex
	states   map[string]*endpointState
	limiters map[types.Platform]*rate.Limiter
	defaults map[types.Platform]LimitConfig

	// now is replaceable in tests.
	now func() time.Time
}

// NewTracker creates a tracker with per-platform default pacing.
func NewTracker(defaults map[types.Platform]LimitConfig) *Tracker {
	if defaults == nil {
		defaults = map[types.Platform]LimitConfig{}
	}
	return &Tracker{
		states:   make(map[string]*endpointState),
		limiters: make(map[types.Platform]*rate.Limiter),
		defaults: defaults,
		now:      time.Now,
	}
}

func key(platform types.Platform, endpoint string) string {
	return fmt.Sprintf("%s:%s", platform, endpoint)
}

// limiter returns the local pacer for a platform, creating it on first use.
// Callers must hold t.mu.
func (t *Tracker) limiter(platform types.Platform) *rate.Limiter {
	if limiter, ok := t.limiters[platform]; ok {
		return limiter
	}

	cfg, ok := t.defaults[platform]
	if !ok || cfg.RPS <= 0 {
		cfg.RPS = DefaultRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
	t.limiters[platform] = limiter
	return limiter
}

// Check reports whether a call on (platform, endpoint) may proceed.
// When the tracked budget is exhausted and the reset time is in the future,
// the call is refused with a RateLimited error whose wait is at most
// resetAt - now. When the ledger has no data for the key, only the local
// pacer applies.
func (t *Tracker) Check(platform types.Platform, endpoint string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	if state, ok := t.states[key(platform, endpoint)]; ok && state.known {
		if now.After(state.resetAt) {
			// Window rolled over; the ledger is stale until the next update.
			state.known = false
		} else if state.remaining <= 0 {
			return errors.NewRateLimitError(platform, state.resetAt.Sub(now))
		}
	}

	limiter := t.limiter(platform)
	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return errors.NewRateLimitError(platform, time.Second)
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return errors.NewRateLimitError(platform, delay)
	}

	return nil
}

// Update records quota metadata from a platform response. Calls with a nil
// quota are ignored; absent metadata the ledger stays advisory.
func (t *Tracker) Update(platform types.Platform, endpoint string, quota *Quota) {
	if quota == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	k := key(platform, endpoint)
	state, ok := t.states[k]
	if !ok {
		state = &endpointState{}
		t.states[k] = state
	}

	state.remaining = quota.Remaining
	state.resetAt = quota.ResetAt
	state.known = true
}

// Stats represents a snapshot of one ledger entry for the status API.
type Stats struct {
	Key       string    `json:"key"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// AllStats returns a snapshot of every tracked (platform, endpoint) key.
func (t *Tracker) AllStats() []*Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := make([]*Stats, 0, len(t.states))
	for k, state := range t.states {
		if !state.known {
			continue
		}
		stats = append(stats, &Stats{
			Key:       k,
			Remaining: state.remaining,
			ResetAt:   state.resetAt,
		})
	}
	return stats
}
