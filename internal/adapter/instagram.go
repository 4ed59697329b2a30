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

// InstagramPublisher publishes media through the Graph API content publishing
// flow: create a media container, then publish it.
type InstagramPublisher struct {
	client *apiClient
}

// NewInstagramPublisher creates a publisher against the given API base URL.
func NewInstagramPublisher(baseURL string, httpClient *http.Client, tracker *ratelimit.Tracker) *InstagramPublisher {
	return &InstagramPublisher{
		client: newAPIClient(types.PlatformInstagram, baseURL, httpClient, tracker),
	}
}

// Platform implements Publisher.
func (p *InstagramPublisher) Platform() types.Platform {
	return types.PlatformInstagram
}

type instagramContainerRequest struct {
	ImageURL string `json:"image_url"`
	Caption  string `json:"caption"`
}

type instagramPublishRequest struct {
	CreationID string `json:"creation_id"`
}

type instagramResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Message   string `json:"message"`
		Code      int    `json:"code"`
		ErrorCode int    `json:"error_subcode"`
	} `json:"error"`
}

// Publish implements Publisher. Instagram requires media; text-only jobs are
// rejected before any network call.
func (p *InstagramPublisher) Publish(ctx context.Context, account *models.PlatformAccount, req *PublishRequest) (*PublishResult, error) {
	if len(req.MediaURLs) == 0 {
		return nil, errors.NewPlatformRejectedError(types.PlatformInstagram,
			"instagram requires at least one media attachment")
	}

	container, err := p.graphCall(ctx, account, fmt.Sprintf("/%s/media", account.Handle), req.IdempotencyKey, &instagramContainerRequest{
		ImageURL: req.MediaURLs[0],
		Caption:  composeText(req),
	})
	if err != nil {
		return nil, err
	}

	published, err := p.graphCall(ctx, account, fmt.Sprintf("/%s/media_publish", account.Handle), req.IdempotencyKey, &instagramPublishRequest{
		CreationID: container,
	})
	if err != nil {
		return nil, err
	}

	return &PublishResult{
		Platform:     types.PlatformInstagram,
		RemotePostID: published,
		RemoteURL:    fmt.Sprintf("https://www.instagram.com/p/%s", published),
	}, nil
}

// graphCall performs one Graph API call and returns the created object id.
// Instagram shares Facebook's error code space, so the same mapping applies.
func (p *InstagramPublisher) graphCall(ctx context.Context, account *models.PlatformAccount, endpoint, idempotencyKey string, payload interface{}) (string, error) {
	resp, err := p.client.postJSON(ctx, endpoint, account.AccessToken, idempotencyKey, payload)
	if err != nil {
		return "", errors.Classify(types.PlatformInstagram, err)
	}

	var parsed instagramResponse
	if decodeErr := decodeJSON(resp.Body, &parsed); decodeErr != nil && resp.StatusCode < 300 {
		return "", errors.NewUnknownError(types.PlatformInstagram,
			fmt.Errorf("failed to decode media response: %w", decodeErr))
	}

	if resp.StatusCode >= 300 || parsed.Error != nil {
		message := ""
		if parsed.Error != nil {
			message = parsed.Error.Message
			if code := facebookErrorCode(parsed.Error.Code); code != "" {
				return "", errors.ClassifyPlatformCode(types.PlatformInstagram, code, message, resp.StatusCode, resp.RetryAfter)
			}
		}
		return "", errors.ClassifyHTTPStatus(types.PlatformInstagram, resp.StatusCode, message, resp.RetryAfter)
	}

	if parsed.ID == "" {
		return "", errors.NewUnknownError(types.PlatformInstagram,
			fmt.Errorf("media response missing id"))
	}
	return parsed.ID, nil
}
