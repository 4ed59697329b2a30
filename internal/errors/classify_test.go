package errors

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publish-dispatcher/internal/types"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCode  string
		retryable bool
	}{
		{name: "rate limited", status: 429, wantCode: CodeRateLimited, retryable: true},
		{name: "unauthorized", status: 401, wantCode: CodeAuthentication, retryable: false},
		{name: "forbidden", status: 403, wantCode: CodeAuthentication, retryable: false},
		{name: "bad request", status: 400, wantCode: CodePlatformRejected, retryable: false},
		{name: "not found", status: 404, wantCode: CodePlatformRejected, retryable: false},
		{name: "unprocessable", status: 422, wantCode: CodePlatformRejected, retryable: false},
		{name: "internal error", status: 500, wantCode: CodeTransientNetwork, retryable: true},
		{name: "bad gateway", status: 502, wantCode: CodeTransientNetwork, retryable: true},
		{name: "service unavailable", status: 503, wantCode: CodeTransientNetwork, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := ClassifyHTTPStatus(types.PlatformTwitter, tt.status, "boom", nil)

			assert.Equal(t, tt.wantCode, classified.Code)
			assert.Equal(t, tt.retryable, classified.Retryable)
			assert.Equal(t, tt.status, classified.StatusCode)
			assert.Equal(t, types.PlatformTwitter, classified.Platform)
		})
	}
}

func TestClassifyHTTPStatusPreservesRetryAfter(t *testing.T) {
	wait := 90 * time.Second
	classified := ClassifyHTTPStatus(types.PlatformTwitter, 429, "slow down", &wait)

	require.NotNil(t, classified.RetryAfter)
	assert.Equal(t, wait, *classified.RetryAfter)
}

func TestClassifyPlatformCode(t *testing.T) {
	tests := []struct {
		code      string
		wantCode  string
		retryable bool
	}{
		{code: "duplicate_content", wantCode: CodePlatformRejected, retryable: false},
		{code: "duplicate_status", wantCode: CodePlatformRejected, retryable: false},
		{code: "policy_violation", wantCode: CodePlatformRejected, retryable: false},
		{code: "content_too_long", wantCode: CodePlatformRejected, retryable: false},
		{code: "invalid_credentials", wantCode: CodeAuthentication, retryable: false},
		{code: "token_expired", wantCode: CodeAuthentication, retryable: false},
		{code: "rate_limit_exceeded", wantCode: CodeRateLimited, retryable: true},
		{code: "server_overloaded", wantCode: CodeTransientNetwork, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			classified := ClassifyPlatformCode(types.PlatformFacebook, tt.code, "details", 400, nil)

			assert.Equal(t, tt.wantCode, classified.Code)
			assert.Equal(t, tt.retryable, classified.Retryable)
		})
	}
}

func TestClassifyPlatformCodeOverridesStatus(t *testing.T) {
	// A duplicate rejection is terminal even when it arrives with a 5xx
	classified := ClassifyPlatformCode(types.PlatformFacebook, "duplicate_content", "dup", 503, nil)

	assert.Equal(t, CodePlatformRejected, classified.Code)
	assert.False(t, classified.Retryable)
}

func TestClassifyPlatformCodeFallsBackToStatus(t *testing.T) {
	classified := ClassifyPlatformCode(types.PlatformTwitter, "something_new", "odd", 503, nil)

	assert.Equal(t, CodeTransientNetwork, classified.Code)
	assert.True(t, classified.Retryable)
}

func TestClassifyTimeout(t *testing.T) {
	classified := Classify(types.PlatformTwitter, context.DeadlineExceeded)

	assert.Equal(t, CodeTransientNetwork, classified.Code)
	assert.True(t, classified.Retryable)
}

func TestClassifyNetworkError(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: fmt.Errorf("connection refused")}
	classified := Classify(types.PlatformTwitter, opErr)

	assert.Equal(t, CodeTransientNetwork, classified.Code)
	assert.True(t, classified.Retryable)
}

func TestClassifyPassesThroughClassified(t *testing.T) {
	original := NewRateLimitError(types.PlatformTwitter, time.Minute)
	classified := Classify(types.PlatformTwitter, fmt.Errorf("wrapped: %w", original))

	assert.Same(t, original, classified)
}

func TestClassifyUnknownDefaultsNonRetryable(t *testing.T) {
	classified := Classify(types.PlatformTwitter, fmt.Errorf("something inexplicable"))

	assert.Equal(t, CodeUnknown, classified.Code)
	assert.False(t, classified.Retryable)
}

func TestClassificationIsDeterministic(t *testing.T) {
	// The same input always yields the same code and verdict
	for i := 0; i < 10; i++ {
		a := ClassifyHTTPStatus(types.PlatformTwitter, 429, "x", nil)
		b := ClassifyHTTPStatus(types.PlatformTwitter, 429, "x", nil)
		assert.Equal(t, a.Code, b.Code)
		assert.Equal(t, a.Retryable, b.Retryable)
	}
}

func TestIsCode(t *testing.T) {
	err := NewCircuitOpenError(types.PlatformTwitter, time.Minute)

	assert.True(t, IsCode(err, CodeCircuitOpen))
	assert.False(t, IsCode(err, CodeRateLimited))
	assert.True(t, IsRetryable(err))
}
