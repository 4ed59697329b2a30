package models

import (
	"time"

	"github.com/publish-dispatcher/internal/types"
)

// PublishResultRecord is the immutable audit record of one publish attempt
// against one platform, keyed by (job, platform, attempt). Created fresh per
// attempt and never mutated.
type PublishResultRecord struct {
	ID           string         `json:"id" db:"id"`
	JobID        string         `json:"jobId" db:"job_id"`
	Platform     types.Platform `json:"platform" db:"platform"`
	Attempt      int            `json:"attempt" db:"attempt"`
	Success      bool           `json:"success" db:"success"`
	RemotePostID string         `json:"remotePostId,omitempty" db:"remote_post_id"`
	RemoteURL    string         `json:"remoteUrl,omitempty" db:"remote_url"`
	ErrorCode    string         `json:"errorCode,omitempty" db:"error_code"`
	ErrorMessage string         `json:"errorMessage,omitempty" db:"error_message"`
	Retryable    bool           `json:"retryable" db:"retryable"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
}
