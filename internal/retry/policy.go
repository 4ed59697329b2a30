// Package retry provides the backoff policy used to reschedule failed
// publish jobs. Retries are durable: the policy only computes when the next
// attempt should run, and the job store records the new target time. There is
// no in-memory retry loop, so retries survive process restarts.
package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/publish-dispatcher/internal/errors"
)

// Default policy values. The constants are configuration; the shape
// (exponential growth, ceiling, jitter) is the invariant.
const (
	DefaultBaseDelay      = 60 * time.Second
	DefaultMaxDelay       = 30 * time.Minute
	DefaultMultiplier     = 2.0
	DefaultMaxAttempts    = 3
	DefaultJitterFraction = 0.10
)

// Policy computes retry delays with exponential backoff and bounded jitter.
type Policy struct {
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	MaxAttempts    int
	JitterFraction float64

	// rand is the jitter source, replaceable in tests.
	rand func() float64
}

// Config holds policy configuration. Zero values fall back to defaults.
type Config struct {
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	MaxAttempts    int
	JitterFraction float64
}

// NewPolicy creates a policy, applying defaults for zero values.
func NewPolicy(cfg *Config) *Policy {
	if cfg == nil {
		cfg = &Config{}
	}

	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	multiplier := cfg.Multiplier
	if multiplier <= 1 {
		multiplier = DefaultMultiplier
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	jitter := cfg.JitterFraction
	if jitter <= 0 {
		jitter = DefaultJitterFraction
	}

	return &Policy{
		BaseDelay:      baseDelay,
		MaxDelay:       maxDelay,
		Multiplier:     multiplier,
		MaxAttempts:    maxAttempts,
		JitterFraction: jitter,
		rand:           rand.Float64,
	}
}

// DefaultPolicy returns a policy with the default constants
// (60s base, x2 multiplier, 30m cap, 3 attempts, 10% jitter).
func DefaultPolicy() *Policy {
	return NewPolicy(nil)
}

// BaseDelayFor returns the pre-jitter delay for the given attempt number
// (1-indexed): min(maxDelay, baseDelay * multiplier^(attempt-1)).
// Monotonically non-decreasing in the attempt number, always >= 0.
func (p *Policy) BaseDelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Delay returns the delay before the next attempt, with jitter applied.
// A platform-provided retry-after hint takes precedence over the computed
// backoff, clamped to MaxDelay; the hint is a mandated minimum wait, so no
// jitter is subtracted from it.
func (p *Policy) Delay(attempt int, classified *errors.ClassifiedError) time.Duration {
	if classified != nil && classified.RetryAfter != nil {
		hint := *classified.RetryAfter
		if hint > p.MaxDelay {
			hint = p.MaxDelay
		}
		if hint < 0 {
			hint = 0
		}
		return hint
	}

	delay := p.BaseDelayFor(attempt)
	jitter := time.Duration(p.rand() * p.JitterFraction * float64(delay))
	return delay + jitter
}

// NextAttemptAt returns the absolute time of the next attempt.
func (p *Policy) NextAttemptAt(now time.Time, attempt int, classified *errors.ClassifiedError) time.Time {
	return now.Add(p.Delay(attempt, classified))
}

// ShouldRetry reports whether another attempt is permitted after the given
// number of consumed attempts.
func (p *Policy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}
