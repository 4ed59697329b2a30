// Package adapter implements the uniform publish contract for each supported
// platform. Adapters translate their platform's native errors into the common
// classified shape at the boundary, so no downstream code inspects
// platform-specific error payloads.
package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/publish-dispatcher/internal/models"
	"github.com/publish-dispatcher/internal/types"
)

// PublishRequest carries the content of one publish attempt.
type PublishRequest struct {
	JobID          string
	IdempotencyKey string
	Content        string
	MediaURLs      []string
	Hashtags       []string
	Mentions       []string
	Location       *string
}

// PublishResult is the successful outcome of one publish call.
type PublishResult struct {
	Platform     types.Platform
	RemotePostID string
	RemoteURL    string
}

// Publisher is the uniform per-platform publish capability.
type Publisher interface {
	Platform() types.Platform
	Publish(ctx context.Context, account *models.PlatformAccount, req *PublishRequest) (*PublishResult, error)
}

// Registry holds the configured publishers keyed by platform name. Adding a
// platform means registering an adapter, not new control flow.
type Registry struct {
	mu         sync.RWMutex
	publishers map[types.Platform]Publisher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{publishers: make(map[types.Platform]Publisher)}
}

// Register adds a publisher for its platform, replacing any existing one.
func (r *Registry) Register(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[p.Platform()] = p
}

// Get returns the publisher for a platform.
func (r *Registry) Get(platform types.Platform) (Publisher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.publishers[platform]
	if !ok {
		return nil, fmt.Errorf("no publisher registered for platform %q", platform)
	}
	return p, nil
}

// Platforms returns the registered platform names.
func (r *Registry) Platforms() []types.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	platforms := make([]types.Platform, 0, len(r.publishers))
	for platform := range r.publishers {
		platforms = append(platforms, platform)
	}
	return platforms
}

// composeText renders the final post text: content, then mentions, then
// hashtags, each normalized to its conventional prefix.
func composeText(req *PublishRequest) string {
	var b strings.Builder
	b.WriteString(req.Content)

	for _, mention := range req.Mentions {
		b.WriteString(" @")
		b.WriteString(strings.TrimPrefix(mention, "@"))
	}
	for _, tag := range req.Hashtags {
		b.WriteString(" #")
		b.WriteString(strings.TrimPrefix(tag, "#"))
	}

	return b.String()
}
