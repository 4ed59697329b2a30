package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/publish-dispatcher/internal/models"
	"github.com/publish-dispatcher/internal/types"
)

// AccountRepository handles connected platform account persistence
type AccountRepository struct {
	db *PostgresDB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *PostgresDB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a connected platform account
func (r *AccountRepository) Create(ctx context.Context, account *models.PlatformAccount) error {
	query := `
		INSERT INTO platform_accounts (
			id, owner_id, platform, handle, access_token, active
		)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		account.ID,
		account.OwnerID,
		account.Platform,
		account.Handle,
		account.AccessToken,
		account.Active,
	)

	if err != nil {
		return fmt.Errorf("failed to create platform account: %w", err)
	}

	return nil
}

// GetActive retrieves the active account for (owner, platform). Returns
// (nil, nil) when the owner has no active account connected.
func (r *AccountRepository) GetActive(ctx context.Context, ownerID string, platform types.Platform) (*models.PlatformAccount, error) {
	query := `
		SELECT id, owner_id, platform, handle, access_token, active,
			   created_at, updated_at
		FROM platform_accounts
		WHERE owner_id = $1 AND platform = $2 AND active = true
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var account models.PlatformAccount
	err := r.db.Pool().QueryRow(ctx, query, ownerID, platform).Scan(
		&account.ID,
		&account.OwnerID,
		&account.Platform,
		&account.Handle,
		&account.AccessToken,
		&account.Active,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get platform account: %w", err)
	}

	return &account, nil
}

// Deactivate marks an account inactive, e.g. after its token is revoked
func (r *AccountRepository) Deactivate(ctx context.Context, id string) error {
	query := `
		UPDATE platform_accounts
		SET active = false, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate platform account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("platform account not found: %s", id)
	}

	return nil
}
