package models

import (
	"time"

	"github.com/publish-dispatcher/internal/types"
)

// PlatformAccount represents a connected social account for an owner.
// The OAuth handshake that produced the token happens outside this service;
// the dispatcher only resolves and uses the stored credential.
type PlatformAccount struct {
	ID          string         `json:"id" db:"id"`
	OwnerID     string         `json:"ownerId" db:"owner_id"`
	Platform    types.Platform `json:"platform" db:"platform"`
	Handle      string         `json:"handle" db:"handle"`
	AccessToken string         `json:"-" db:"access_token"`
	Active      bool           `json:"active" db:"active"`
	CreatedAt   time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time      `json:"updatedAt" db:"updated_at"`
}
