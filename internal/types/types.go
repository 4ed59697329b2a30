// Package types provides common type definitions for the publishing dispatcher.
package types

// Platform represents a supported social publishing target
type Platform string

const (
	// PlatformTwitter represents the Twitter/X publishing target
	PlatformTwitter Platform = "twitter"
	// PlatformLinkedIn represents the LinkedIn publishing target
	PlatformLinkedIn Platform = "linkedin"
	// PlatformFacebook represents the Facebook publishing target
	PlatformFacebook Platform = "facebook"
	// PlatformInstagram represents the Instagram publishing target
	PlatformInstagram Platform = "instagram"
)

// KnownPlatforms lists every platform the dispatcher can address.
var KnownPlatforms = []Platform{
	PlatformTwitter,
	PlatformLinkedIn,
	PlatformFacebook,
	PlatformInstagram,
}

// IsKnownPlatform reports whether p is a platform the dispatcher recognizes.
func IsKnownPlatform(p Platform) bool {
	for _, known := range KnownPlatforms {
		if p == known {
			return true
		}
	}
	return false
}

// JobStatus represents the lifecycle state of a scheduled post
type JobStatus string

const (
	// StatusPending means the job is waiting for its target time
	StatusPending JobStatus = "pending"
	// StatusProcessing means the job has been claimed by a worker
	StatusProcessing JobStatus = "processing"
	// StatusCompleted means every target platform accepted the post
	StatusCompleted JobStatus = "completed"
	// StatusPartialFailure means some but not all platforms accepted the post.
	// The failed subset is surfaced for manual intervention and never retried
	// automatically, to avoid duplicate posts on platforms that succeeded.
	StatusPartialFailure JobStatus = "partial_failure"
	// StatusFailed means every platform failed and no retry budget remains
	StatusFailed JobStatus = "failed"
	// StatusCancelled means the owner cancelled the job before pickup
	StatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further attempts.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusPartialFailure, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ServiceError represents a structured error returned across service boundaries
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return e.Code + ": " + e.Message
}
