package adapter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/publish-dispatcher/internal/errors"
	"github.com/publish-dispatcher/internal/models"
	"github.com/publish-dispatcher/internal/ratelimit"
	"github.com/publish-dispatcher/internal/types"
)

// FacebookPublisher posts to a page feed through the Graph API.
type FacebookPublisher struct {
	client *apiClient
}

// NewFacebookPublisher creates a publisher against the given API base URL.
func NewFacebookPublisher(baseURL string, httpClient *http.Client, tracker *ratelimit.Tracker) *FacebookPublisher {
	return &FacebookPublisher{
		client: newAPIClient(types.PlatformFacebook, baseURL, httpClient, tracker),
	}
}

// Platform implements Publisher.
func (p *FacebookPublisher) Platform() types.Platform {
	return types.PlatformFacebook
}

type facebookPostRequest struct {
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
	Place   string `json:"place,omitempty"`
}

type facebookPostResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		ErrorCode int    `json:"error_subcode"`
	} `json:"error"`
}

// facebookErrorCode maps Graph API error codes to the shared classification
// identifiers.
func facebookErrorCode(code int) string {
	switch code {
	case 190:
		return "token_expired"
	case 506:
		return "duplicate_content"
	case 368:
		return "policy_violation"
	case 4, 17, 32:
		return "rate_limit_exceeded"
	case 2:
		return "server_overloaded"
	default:
		return ""
	}
}

// Publish implements Publisher.
func (p *FacebookPublisher) Publish(ctx context.Context, account *models.PlatformAccount, req *PublishRequest) (*PublishResult, error) {
	payload := &facebookPostRequest{
		Message: composeText(req),
	}
	if len(req.MediaURLs) > 0 {
		payload.Link = req.MediaURLs[0]
	}
	if req.Location != nil {
		payload.Place = *req.Location
	}

	endpoint := fmt.Sprintf("/%s/feed", account.Handle)
	resp, err := p.client.postJSON(ctx, endpoint, account.AccessToken, req.IdempotencyKey, payload)
	if err != nil {
		return nil, errors.Classify(types.PlatformFacebook, err)
	}

	var parsed facebookPostResponse
	if decodeErr := decodeJSON(resp.Body, &parsed); decodeErr != nil && resp.StatusCode < 300 {
		return nil, errors.NewUnknownError(types.PlatformFacebook,
			fmt.Errorf("failed to decode feed response: %w", decodeErr))
	}

	if resp.StatusCode >= 300 || parsed.Error != nil {
		message := ""
		if parsed.Error != nil {
			message = parsed.Error.Message
			if code := facebookErrorCode(parsed.Error.Code); code != "" {
				return nil, errors.ClassifyPlatformCode(types.PlatformFacebook, code, message, resp.StatusCode, resp.RetryAfter)
			}
		}
		return nil, errors.ClassifyHTTPStatus(types.PlatformFacebook, resp.StatusCode, message, resp.RetryAfter)
	}

	if parsed.ID == "" {
		return nil, errors.NewUnknownError(types.PlatformFacebook,
			fmt.Errorf("feed response missing id"))
	}

	return &PublishResult{
		Platform:     types.PlatformFacebook,
		RemotePostID: parsed.ID,
		RemoteURL:    fmt.Sprintf("https://www.facebook.com/%s", parsed.ID),
	}, nil
}
