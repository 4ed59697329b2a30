package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/publish-dispatcher/internal/ratelimit"
	"github.com/publish-dispatcher/internal/types"
)

// apiClient is the shared HTTP transport for platform adapters. It sends
// JSON requests, forwards the idempotency key, and feeds quota headers back
// into the rate limit tracker after every real call.
type apiClient struct {
	platform   types.Platform
	baseURL    string
	httpClient *http.Client
	tracker    *ratelimit.Tracker
}

func newAPIClient(platform types.Platform, baseURL string, httpClient *http.Client, tracker *ratelimit.Tracker) *apiClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &apiClient{
		platform:   platform,
		baseURL:    baseURL,
		httpClient: httpClient,
		tracker:    tracker,
	}
}

// apiResponse is the raw outcome of one platform call before translation.
type apiResponse struct {
	StatusCode int
	Body       []byte
	RetryAfter *time.Duration
}

// postJSON sends a JSON POST to endpoint with a bearer token. Network-level
// failures are returned raw for the caller to classify; non-2xx responses are
// returned with a nil error so the adapter can translate the platform's
// native error payload.
func (c *apiClient) postJSON(ctx context.Context, endpoint, token, idempotencyKey string, payload interface{}) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if quota := parseQuotaHeaders(resp.Header); quota != nil && c.tracker != nil {
		c.tracker.Update(c.platform, endpoint, quota)
	}

	return &apiResponse{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		RetryAfter: parseRetryAfter(resp.Header),
	}, nil
}

// parseQuotaHeaders extracts the conventional X-RateLimit-* headers.
func parseQuotaHeaders(h http.Header) *ratelimit.Quota {
	remainingStr := h.Get("X-RateLimit-Remaining")
	resetStr := h.Get("X-RateLimit-Reset")
	if remainingStr == "" || resetStr == "" {
		return nil
	}

	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return nil
	}
	resetUnix, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return nil
	}

	return &ratelimit.Quota{
		Remaining: remaining,
		ResetAt:   time.Unix(resetUnix, 0),
	}
}

// parseRetryAfter extracts a Retry-After header expressed in seconds.
func parseRetryAfter(h http.Header) *time.Duration {
	value := h.Get("Retry-After")
	if value == "" {
		return nil
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return nil
	}
	d := time.Duration(seconds) * time.Second
	return &d
}

// decodeJSON unmarshals a response body, tolerating empty bodies.
func decodeJSON(body []byte, out interface{}) error {
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
