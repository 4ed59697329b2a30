package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/publish-dispatcher/internal/circuitbreaker"
	"github.com/publish-dispatcher/internal/errors"
	"github.com/publish-dispatcher/internal/models"
	"github.com/publish-dispatcher/internal/ratelimit"
	"github.com/publish-dispatcher/internal/types"
)

// GuardedPublisher wraps a Publisher with the shared call discipline:
// rate limit ledger check, circuit breaker admission, and a per-call timeout.
// Local refusals (rate limited, circuit open) never reach the platform and
// are not recorded against the breaker; only real call outcomes are.
type GuardedPublisher struct {
	inner       Publisher
	breakers    *circuitbreaker.Manager
	tracker     *ratelimit.Tracker
	callTimeout time.Duration
}

// NewGuardedPublisher wraps inner with the guard stack. A zero callTimeout
// disables the local deadline.
func NewGuardedPublisher(inner Publisher, breakers *circuitbreaker.Manager, tracker *ratelimit.Tracker, callTimeout time.Duration) *GuardedPublisher {
	return &GuardedPublisher{
		inner:       inner,
		breakers:    breakers,
		tracker:     tracker,
		callTimeout: callTimeout,
	}
}

// Platform implements Publisher.
func (g *GuardedPublisher) Platform() types.Platform {
	return g.inner.Platform()
}

// endpointFor names the ledger key for a platform's publish call.
func endpointFor(platform types.Platform) string {
	switch platform {
	case types.PlatformTwitter:
		return twitterPostEndpoint
	case types.PlatformLinkedIn:
		return linkedinPostEndpoint
	default:
		return "publish"
	}
}

// Publish implements Publisher.
func (g *GuardedPublisher) Publish(ctx context.Context, account *models.PlatformAccount, req *PublishRequest) (result *PublishResult, err error) {
	platform := g.inner.Platform()

	if g.tracker != nil {
		if err := g.tracker.Check(platform, endpointFor(platform)); err != nil {
			return nil, err
		}
	}

	breaker := g.breakers.Get(platform)
	if err := breaker.Allow(); err != nil {
		return nil, err
	}

	// Once the breaker admitted the call it must see an outcome. A panicking
	// adapter counts as a failure; swallowing it would leave a half-open trial
	// in flight forever and wedge the circuit.
	defer func() {
		if r := recover(); r != nil {
			breaker.RecordFailure()
			result = nil
			err = errors.NewUnknownError(platform, fmt.Errorf("panic in %s adapter: %v", platform, r))
		}
	}()

	if g.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.callTimeout)
		defer cancel()
	}

	res, callErr := g.inner.Publish(ctx, account, req)
	if callErr != nil {
		breaker.RecordFailure()
		return nil, errors.Classify(platform, callErr)
	}

	breaker.RecordSuccess()
	return res, nil
}
