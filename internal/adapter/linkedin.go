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

const linkedinPostEndpoint = "/v2/ugcPosts"

// LinkedInPublisher creates UGC posts through the LinkedIn REST API.
type LinkedInPublisher struct {
	client *apiClient
}

// NewLinkedInPublisher creates a publisher against the given API base URL.
func NewLinkedInPublisher(baseURL string, httpClient *http.Client, tracker *ratelimit.Tracker) *LinkedInPublisher {
	return &LinkedInPublisher{
		client: newAPIClient(types.PlatformLinkedIn, baseURL, httpClient, tracker),
	}
}

// Platform implements Publisher.
func (p *LinkedInPublisher) Platform() types.Platform {
	return types.PlatformLinkedIn
}

type linkedinShareText struct {
	Text string `json:"text"`
}

type linkedinShareContent struct {
	ShareCommentary    linkedinShareText `json:"shareCommentary"`
	ShareMediaCategory string            `json:"shareMediaCategory"`
}

type linkedinPostRequest struct {
	Author          string                          `json:"author"`
	LifecycleState  string                          `json:"lifecycleState"`
	SpecificContent map[string]linkedinShareContent `json:"specificContent"`
	Visibility      map[string]string               `json:"visibility"`
}

type linkedinPostResponse struct {
	ID             string `json:"id"`
	Message        string `json:"message"`
	ServiceErrCode int    `json:"serviceErrorCode"`
	Status         int    `json:"status"`
}

// linkedinErrorCode maps LinkedIn service error codes to the shared
// classification identifiers.
func linkedinErrorCode(code int) string {
	switch code {
	case 65600, 65601:
		return "token_revoked"
	case 100:
		return "policy_violation"
	default:
		return ""
	}
}

// Publish implements Publisher.
func (p *LinkedInPublisher) Publish(ctx context.Context, account *models.PlatformAccount, req *PublishRequest) (*PublishResult, error) {
	mediaCategory := "NONE"
	if len(req.MediaURLs) > 0 {
		mediaCategory = "IMAGE"
	}

	payload := &linkedinPostRequest{
		Author:         fmt.Sprintf("urn:li:person:%s", account.Handle),
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]linkedinShareContent{
			"com.linkedin.ugc.ShareContent": {
				ShareCommentary:    linkedinShareText{Text: composeText(req)},
				ShareMediaCategory: mediaCategory,
			},
		},
		Visibility: map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	resp, err := p.client.postJSON(ctx, linkedinPostEndpoint, account.AccessToken, req.IdempotencyKey, payload)
	if err != nil {
		return nil, errors.Classify(types.PlatformLinkedIn, err)
	}

	var parsed linkedinPostResponse
	if decodeErr := decodeJSON(resp.Body, &parsed); decodeErr != nil && resp.StatusCode < 300 {
		return nil, errors.NewUnknownError(types.PlatformLinkedIn,
			fmt.Errorf("failed to decode post response: %w", decodeErr))
	}

	if resp.StatusCode >= 300 {
		if code := linkedinErrorCode(parsed.ServiceErrCode); code != "" {
			return nil, errors.ClassifyPlatformCode(types.PlatformLinkedIn, code, parsed.Message, resp.StatusCode, resp.RetryAfter)
		}
		return nil, errors.ClassifyHTTPStatus(types.PlatformLinkedIn, resp.StatusCode, parsed.Message, resp.RetryAfter)
	}

	if parsed.ID == "" {
		return nil, errors.NewUnknownError(types.PlatformLinkedIn,
			fmt.Errorf("post response missing id"))
	}

	return &PublishResult{
		Platform:     types.PlatformLinkedIn,
		RemotePostID: parsed.ID,
		RemoteURL:    fmt.Sprintf("https://www.linkedin.com/feed/update/%s", parsed.ID),
	}, nil
}
