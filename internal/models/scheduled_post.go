package models

import (
	"time"

	"github.com/publish-dispatcher/internal/types"
)

// DefaultMaxAttempts is the attempt ceiling applied when a post is created
// without an explicit one.
const DefaultMaxAttempts = 3

// ScheduledPost represents a user-scheduled post in the database (one per
// scheduled publish, fanning out to one or more platforms)
type ScheduledPost struct {
	JobID       string           `json:"jobId" db:"job_id"`
	OwnerID     string           `json:"ownerId" db:"owner_id"`
	OrgID       string           `json:"orgId" db:"org_id"`
	Content     string           `json:"content" db:"content"`
	Platforms   []types.Platform `json:"platforms" db:"platforms"`
	MediaURLs   []string         `json:"mediaUrls,omitempty" db:"media_urls"`
	Hashtags    []string         `json:"hashtags,omitempty" db:"hashtags"`
	Mentions    []string         `json:"mentions,omitempty" db:"mentions"`
	Location    *string          `json:"location,omitempty" db:"location"`
	ScheduledAt time.Time        `json:"scheduledAt" db:"scheduled_at"`
	// NextAttemptAt is set when a failed attempt is rescheduled; nil means
	// the post runs at ScheduledAt.
	NextAttemptAt *time.Time      `json:"nextAttemptAt,omitempty" db:"next_attempt_at"`
	Status        types.JobStatus `json:"status" db:"status"`
	AttemptCount  int             `json:"attemptCount" db:"attempt_count"`
	MaxAttempts   int             `json:"maxAttempts" db:"max_attempts"`
	LastError     *string         `json:"lastError,omitempty" db:"last_error"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

// HasPlatform reports whether the post targets the given platform.
func (p *ScheduledPost) HasPlatform(platform types.Platform) bool {
	for _, target := range p.Platforms {
		if target == platform {
			return true
		}
	}
	return false
}

// AttemptsExhausted reports whether the attempt ceiling has been reached.
func (p *ScheduledPost) AttemptsExhausted() bool {
	return p.AttemptCount >= p.MaxAttempts
}
