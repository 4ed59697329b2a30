package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/publish-dispatcher/internal/errors"
	"github.com/publish-dispatcher/internal/models"
	"github.com/publish-dispatcher/internal/ratelimit"
	"github.com/publish-dispatcher/internal/types"
)

const twitterPostEndpoint = "/2/tweets"

// TwitterPublisher posts tweets through the v2 API.
type TwitterPublisher struct {
	client *apiClient
}

// NewTwitterPublisher creates a publisher against the given API base URL.
func NewTwitterPublisher(baseURL string, httpClient *http.Client, tracker *ratelimit.Tracker) *TwitterPublisher {
	return &TwitterPublisher{
		client: newAPIClient(types.PlatformTwitter, baseURL, httpClient, tracker),
	}
}

// Platform implements Publisher.
func (p *TwitterPublisher) Platform() types.Platform {
	return types.PlatformTwitter
}

type tweetRequest struct {
	Text string `json:"text"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// twitterErrorCode normalizes Twitter's numeric error codes to the shared
// classification identifiers.
func twitterErrorCode(code int) string {
	switch code {
	case 187:
		return "duplicate_status"
	case 32, 89:
		return "invalid_credentials"
	case 64:
		return "account_suspended"
	case 88:
		return "rate_limit_exceeded"
	case 186:
		return "content_too_long"
	default:
		return ""
	}
}

// Publish implements Publisher.
func (p *TwitterPublisher) Publish(ctx context.Context, account *models.PlatformAccount, req *PublishRequest) (*PublishResult, error) {
	resp, err := p.client.postJSON(ctx, twitterPostEndpoint, account.AccessToken, req.IdempotencyKey, &tweetRequest{
		Text: composeText(req),
	})
	if err != nil {
		return nil, errors.Classify(types.PlatformTwitter, err)
	}

	var parsed tweetResponse
	if decodeErr := decodeJSON(resp.Body, &parsed); decodeErr != nil && resp.StatusCode < 300 {
		return nil, errors.NewUnknownError(types.PlatformTwitter,
			fmt.Errorf("failed to decode tweet response: %w", decodeErr))
	}

	if resp.StatusCode >= 300 || len(parsed.Errors) > 0 {
		message := parsed.Detail
		if message == "" {
			message = parsed.Title
		}
		if len(parsed.Errors) > 0 {
			first := parsed.Errors[0]
			if message == "" {
				message = first.Message
			}
			if code := twitterErrorCode(first.Code); code != "" {
				return nil, errors.ClassifyPlatformCode(types.PlatformTwitter, code, message, resp.StatusCode, resp.RetryAfter)
			}
		}
		return nil, errors.ClassifyHTTPStatus(types.PlatformTwitter, resp.StatusCode, message, resp.RetryAfter)
	}

	if parsed.Data.ID == "" {
		return nil, errors.NewUnknownError(types.PlatformTwitter,
			fmt.Errorf("tweet response missing id"))
	}

	return &PublishResult{
		Platform:     types.PlatformTwitter,
		RemotePostID: parsed.Data.ID,
		RemoteURL:    fmt.Sprintf("https://twitter.com/%s/status/%s", strings.TrimPrefix(account.Handle, "@"), parsed.Data.ID),
	}, nil
}
