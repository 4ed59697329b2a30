// Package errors provides the normalized error taxonomy for the publishing
// dispatcher. Heterogeneous platform and network failures are classified into
// a single ClassifiedError shape with a retryability verdict; no downstream
// code inspects platform-specific error fields.
package errors

import (
	"fmt"
	"time"

	"github.com/publish-dispatcher/internal/types"
)

// Machine-readable error codes. The code and the retryability verdict for a
// given raw error are stable: the same input always classifies the same way.
const (
	// CodeTransientNetwork covers timeouts, connection resets and 5xx responses
	CodeTransientNetwork = "TRANSIENT_NETWORK_ERROR"
	// CodeRateLimited covers HTTP 429 and local rate limit refusals
	CodeRateLimited = "RATE_LIMITED"
	// CodeCircuitOpen covers calls refused by an open circuit breaker
	CodeCircuitOpen = "CIRCUIT_OPEN"
	// CodeAuthentication covers invalid or expired credentials
	CodeAuthentication = "AUTHENTICATION_ERROR"
	// CodeConfiguration covers setup problems such as no active account
	CodeConfiguration = "CONFIGURATION_ERROR"
	// CodePlatformRejected covers content the platform refused (duplicate,
	// policy violation, bad request)
	CodePlatformRejected = "PLATFORM_REJECTED"
	// CodeUnknown is the conservative fallback when classification fails
	CodeUnknown = "UNKNOWN_ERROR"
)

// ClassifiedError is a normalized error with a retryability verdict.
type ClassifiedError struct {
	Code       string
	Message    string
	Platform   types.Platform
	StatusCode int
	RetryAfter *time.Duration
	Retryable  bool
	Cause      error
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError for API responses.
func (e *ClassifiedError) ToServiceError() *types.ServiceError {
	details := map[string]interface{}{
		"retryable": e.Retryable,
	}
	if e.Platform != "" {
		details["platform"] = string(e.Platform)
	}
	if e.RetryAfter != nil {
		details["retryAfterSeconds"] = e.RetryAfter.Seconds()
	}
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
	}
}

// NewTransientNetworkError creates a retryable network-level error
func NewTransientNetworkError(platform types.Platform, cause error) *ClassifiedError {
	return &ClassifiedError{
		Code:      CodeTransientNetwork,
		Message:   "transient network failure",
		Platform:  platform,
		Retryable: true,
		Cause:     cause,
	}
}

// NewRateLimitError creates a retryable rate limit error carrying the
// minimum wait before the next attempt.
func NewRateLimitError(platform types.Platform, wait time.Duration) *ClassifiedError {
	if wait < 0 {
		wait = 0
	}
	return &ClassifiedError{
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("rate limit exceeded, retry after %s", wait),
		Platform:   platform,
		StatusCode: 429,
		RetryAfter: &wait,
		Retryable:  true,
	}
}

// NewCircuitOpenError creates the refusal returned while a circuit is open.
// Retryable, but the caller reschedules the job without consuming an attempt.
func NewCircuitOpenError(platform types.Platform, wait time.Duration) *ClassifiedError {
	if wait < 0 {
		wait = 0
	}
	return &ClassifiedError{
		Code:       CodeCircuitOpen,
		Message:    fmt.Sprintf("circuit open for %s, retry after %s", platform, wait),
		Platform:   platform,
		RetryAfter: &wait,
		Retryable:  true,
	}
}

// NewAuthenticationError creates a non-retryable credential error
func NewAuthenticationError(platform types.Platform, message string) *ClassifiedError {
	return &ClassifiedError{
		Code:       CodeAuthentication,
		Message:    message,
		Platform:   platform,
		StatusCode: 401,
		Retryable:  false,
	}
}

// NewConfigurationError creates a non-retryable configuration error
func NewConfigurationError(platform types.Platform, message string) *ClassifiedError {
	return &ClassifiedError{
		Code:      CodeConfiguration,
		Message:   message,
		Platform:  platform,
		Retryable: false,
	}
}

// NewPlatformRejectedError creates a non-retryable platform rejection
func NewPlatformRejectedError(platform types.Platform, message string) *ClassifiedError {
	return &ClassifiedError{
		Code:      CodePlatformRejected,
		Message:   message,
		Platform:  platform,
		Retryable: false,
	}
}

// NewUnknownError creates the conservative non-retryable fallback
func NewUnknownError(platform types.Platform, cause error) *ClassifiedError {
	return &ClassifiedError{
		Code:      CodeUnknown,
		Message:   "unclassified failure",
		Platform:  platform,
		Retryable: false,
		Cause:     cause,
	}
}
