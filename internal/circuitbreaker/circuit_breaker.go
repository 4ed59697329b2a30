// Package circuitbreaker guards outbound platform calls so a consistently
// failing platform integration cannot burn through every job's retry budget.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/publish-dispatcher/internal/errors"
	"github.com/publish-dispatcher/internal/logging"
	"github.com/publish-dispatcher/internal/types"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means calls proceed normally
	StateClosed State = "closed"
	// StateOpen means calls are rejected until the recovery timeout elapses
	StateOpen State = "open"
	// StateHalfOpen means exactly one trial call is allowed through
	StateHalfOpen State = "half_open"
)

// Default breaker configuration values.
const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 60 * time.Second
)

// Config configures a circuit breaker
type Config struct {
	Platform         types.Platform
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// Breaker implements a consecutive-failure circuit breaker for one platform.
// Transitions: closed -> open after FailureThreshold consecutive failures;
// open -> half-open after RecoveryTimeout; half-open admits one trial call,
// success closes the circuit, failure reopens it and restarts the timer.
type Breaker struct {
	platform         types.Platform
	failureThreshold int
	recoveryTimeout  time.Duration

	mu               sync.Mutex
	state            State
	consecutiveFails int
	lastFailureTime  time.Time
	openedAt         time.Time
	trialInFlight    bool

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a breaker, applying defaults for zero config values.
func New(cfg *Config) *Breaker {
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	timeout := cfg.RecoveryTimeout
	if timeout <= 0 {
		timeout = DefaultRecoveryTimeout
	}

	return &Breaker{
		platform:         cfg.Platform,
		failureThreshold: threshold,
		recoveryTimeout:  timeout,
		state:            StateClosed,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed. While the circuit is open it
// returns a CircuitOpen refusal carrying the remaining cooldown; callers
// treat that as "reschedule, attempt budget untouched", never as a platform
// failure.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		elapsed := b.now().Sub(b.openedAt)
		if elapsed < b.recoveryTimeout {
			return errors.NewCircuitOpenError(b.platform, b.recoveryTimeout-elapsed)
		}
		b.state = StateHalfOpen
		b.trialInFlight = true
		logging.WithFields(map[string]interface{}{
			"platform": b.platform,
			"state":    StateHalfOpen,
		}).Info("Circuit breaker transitioning to half-open")
		return nil

	case StateHalfOpen:
		if b.trialInFlight {
			return errors.NewCircuitOpenError(b.platform, b.recoveryTimeout)
		}
		b.trialInFlight = true
		return nil

	default:
		return nil
	}
}

// RecordSuccess records a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFails = 0

	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.trialInFlight = false
		logging.WithFields(map[string]interface{}{
			"platform": b.platform,
			"state":    StateClosed,
		}).Info("Circuit breaker closed after successful trial")
	}
}

// RecordFailure records a failed call outcome.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFails++
	b.lastFailureTime = b.now()

	switch b.state {
	case StateClosed:
		if b.consecutiveFails >= b.failureThreshold {
			b.open()
			logging.WithFields(map[string]interface{}{
				"platform":         b.platform,
				"state":            StateOpen,
				"consecutiveFails": b.consecutiveFails,
			}).Warn("Circuit breaker opened after consecutive failures")
		}

	case StateHalfOpen:
		// A failed trial reopens the circuit and restarts the recovery timer.
		b.open()
		logging.WithFields(map[string]interface{}{
			"platform": b.platform,
			"state":    StateOpen,
		}).Warn("Circuit breaker reopened after failed trial")
	}
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.trialInFlight = false
}

// GetState returns the current state of the breaker.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats represents a snapshot of breaker state for the status API.
type Stats struct {
	Platform         types.Platform `json:"platform"`
	State            State          `json:"state"`
	ConsecutiveFails int            `json:"consecutiveFails"`
	LastFailureTime  time.Time      `json:"lastFailureTime"`
	OpenedAt         time.Time      `json:"openedAt,omitempty"`
}

// GetStats returns a snapshot of the breaker state.
func (b *Breaker) GetStats() *Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return &Stats{
		Platform:         b.platform,
		State:            b.state,
		ConsecutiveFails: b.consecutiveFails,
		LastFailureTime:  b.lastFailureTime,
		OpenedAt:         b.openedAt,
	}
}

// Reset manually resets the breaker to closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.consecutiveFails = 0
	b.trialInFlight = false
}

// Manager holds one breaker per platform. Constructed once at process start
// and passed by reference into the processor; per-key state lives behind a
// single lock, no global mutable state.
type Manager struct {
	mu               sync.RWMutex
	breakers         map[types.Platform]*Breaker
	failureThreshold int
	recoveryTimeout  time.Duration
}

// NewManager creates a manager applying the given defaults to new breakers.
func NewManager(failureThreshold int, recoveryTimeout time.Duration) *Manager {
	return &Manager{
		breakers:         make(map[types.Platform]*Breaker),
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

// Get returns the breaker for a platform, creating it on first use.
func (m *Manager) Get(platform types.Platform) *Breaker {
	m.mu.RLock()
	breaker, exists := m.breakers[platform]
	m.mu.RUnlock()
	if exists {
		return breaker
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if breaker, exists := m.breakers[platform]; exists {
		return breaker
	}

	breaker = New(&Config{
		Platform:         platform,
		FailureThreshold: m.failureThreshold,
		RecoveryTimeout:  m.recoveryTimeout,
	})
	m.breakers[platform] = breaker
	return breaker
}

// AllStats returns stats for every known breaker.
func (m *Manager) AllStats() []*Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make([]*Stats, 0, len(m.breakers))
	for _, breaker := range m.breakers {
		stats = append(stats, breaker.GetStats())
	}
	return stats
}
