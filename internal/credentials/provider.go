// Package credentials resolves active platform accounts for job owners.
// The OAuth handshake that created the account is out of scope; the provider
// only looks up the stored credential.
package credentials

import (
	"context"
	"fmt"

	"github.com/publish-dispatcher/internal/errors"
	"github.com/publish-dispatcher/internal/models"
	"github.com/publish-dispatcher/internal/types"
)

// Provider resolves the active account for (owner, platform).
type Provider interface {
	// Resolve returns the active account, or a non-retryable
	// ConfigurationError when the owner has no active account connected
	// for the platform.
	Resolve(ctx context.Context, ownerID string, platform types.Platform) (*models.PlatformAccount, error)
}

// AccountStore is the persistence contract the provider reads from.
// A nil account with a nil error means no active account exists.
type AccountStore interface {
	GetActive(ctx context.Context, ownerID string, platform types.Platform) (*models.PlatformAccount, error)
}

// StoreProvider resolves accounts from an AccountStore.
type StoreProvider struct {
	store AccountStore
}

// NewStoreProvider creates a provider backed by the given store.
func NewStoreProvider(store AccountStore) *StoreProvider {
	return &StoreProvider{store: store}
}

// Resolve implements Provider.
func (p *StoreProvider) Resolve(ctx context.Context, ownerID string, platform types.Platform) (*models.PlatformAccount, error) {
	account, err := p.store.GetActive(ctx, ownerID, platform)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s account: %w", platform, err)
	}
	if account == nil {
		return nil, errors.NewConfigurationError(platform,
			fmt.Sprintf("no active %s account connected", platform))
	}
	return account, nil
}
