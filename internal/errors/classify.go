package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"time"

	"github.com/publish-dispatcher/internal/types"
)

// statusRule maps an HTTP status range to an error code and retryability
// verdict. Ranges are inclusive and evaluated in order; the first match wins.
type statusRule struct {
	from      int
	to        int
	code      string
	retryable bool
}

// The fixed status classification table: 429 and 5xx are retryable, 401/403
// surface as authentication problems, every other 4xx is a rejection.
var statusRules = []statusRule{
	{from: 429, to: 429, code: CodeRateLimited, retryable: true},
	{from: 401, to: 401, code: CodeAuthentication, retryable: false},
	{from: 403, to: 403, code: CodeAuthentication, retryable: false},
	{from: 400, to: 499, code: CodePlatformRejected, retryable: false},
	{from: 500, to: 599, code: CodeTransientNetwork, retryable: true},
}

// platformCodeRule maps a platform-supplied error identifier to a code and
// verdict. These override the HTTP status: a duplicate-content rejection is
// terminal even when it arrives with a 5xx.
type platformCodeRule struct {
	code      string
	retryable bool
}

// Platform error identifiers, normalized to lowercase by the adapters.
// Adding a platform means adding rows, not new control flow.
var platformCodeRules = map[string]platformCodeRule{
	"duplicate_content":   {code: CodePlatformRejected, retryable: false},
	"duplicate_status":    {code: CodePlatformRejected, retryable: false},
	"duplicate_post":      {code: CodePlatformRejected, retryable: false},
	"policy_violation":    {code: CodePlatformRejected, retryable: false},
	"content_too_long":    {code: CodePlatformRejected, retryable: false},
	"invalid_credentials": {code: CodeAuthentication, retryable: false},
	"token_expired":       {code: CodeAuthentication, retryable: false},
	"token_revoked":       {code: CodeAuthentication, retryable: false},
	"account_suspended":   {code: CodeAuthentication, retryable: false},
	"rate_limit_exceeded": {code: CodeRateLimited, retryable: true},
	"server_overloaded":   {code: CodeTransientNetwork, retryable: true},
}

// ClassifyHTTPStatus classifies a platform response by HTTP status code.
// retryAfter, when non-nil, is the platform-provided minimum wait.
func ClassifyHTTPStatus(platform types.Platform, status int, message string, retryAfter *time.Duration) *ClassifiedError {
	for _, rule := range statusRules {
		if status < rule.from || status > rule.to {
			continue
		}
		if message == "" {
			message = fmt.Sprintf("platform returned HTTP %d", status)
		}
		return &ClassifiedError{
			Code:       rule.code,
			Message:    message,
			Platform:   platform,
			StatusCode: status,
			RetryAfter: retryAfter,
			Retryable:  rule.retryable,
		}
	}
	return NewUnknownError(platform, fmt.Errorf("unexpected HTTP status %d: %s", status, message))
}

// ClassifyPlatformCode classifies a platform-specific error identifier,
// falling back to the HTTP status when the identifier is not in the table.
func ClassifyPlatformCode(platform types.Platform, platformCode, message string, status int, retryAfter *time.Duration) *ClassifiedError {
	if rule, ok := platformCodeRules[platformCode]; ok {
		return &ClassifiedError{
			Code:       rule.code,
			Message:    message,
			Platform:   platform,
			StatusCode: status,
			RetryAfter: retryAfter,
			Retryable:  rule.retryable,
		}
	}
	if status != 0 {
		return ClassifyHTTPStatus(platform, status, message, retryAfter)
	}
	return NewUnknownError(platform, fmt.Errorf("%s: %s", platformCode, message))
}

// Classify normalizes any error into a ClassifiedError. Already-classified
// errors pass through unchanged; network-level failures and timeouts are
// retryable; anything unrecognized degrades to the non-retryable UnknownError
// so unclassifiable failures cannot loop forever.
func Classify(platform types.Platform, err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if stderrors.As(err, &classified) {
		return classified
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{
			Code:      CodeTransientNetwork,
			Message:   "platform call timed out",
			Platform:  platform,
			Retryable: true,
			Cause:     err,
		}
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return NewTransientNetworkError(platform, err)
	}
	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return NewTransientNetworkError(platform, err)
	}

	return NewUnknownError(platform, err)
}

// AsClassified extracts a ClassifiedError from err, if any.
func AsClassified(err error) (*ClassifiedError, bool) {
	var classified *ClassifiedError
	if stderrors.As(err, &classified) {
		return classified, true
	}
	return nil, false
}

// IsRetryable reports whether err classifies as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify("", err).Retryable
}

// IsCode reports whether err classifies to the given code.
func IsCode(err error, code string) bool {
	classified, ok := AsClassified(err)
	return ok && classified.Code == code
}
