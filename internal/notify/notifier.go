// Package notify delivers job outcome notifications to owners. Delivery is
// fire-and-forget: a notification failure is logged and dropped, it never
// changes a job's outcome.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/publish-dispatcher/internal/types"
)

// PlatformOutcome is the per-platform slice of a job summary.
type PlatformOutcome struct {
	Platform     types.Platform `json:"platform"`
	Success      bool           `json:"success"`
	RemoteURL    string         `json:"remoteUrl,omitempty"`
	ErrorCode    string         `json:"errorCode,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

// Summary describes the outcome of one processing round for a job.
type Summary struct {
	JobID     string            `json:"jobId"`
	OwnerID   string            `json:"ownerId"`
	Status    types.JobStatus   `json:"status"`
	Attempt   int               `json:"attempt"`
	Outcomes  []PlatformOutcome `json:"outcomes"`
	NextRunAt *time.Time        `json:"nextRunAt,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Notifier delivers job outcome summaries.
type Notifier interface {
	Notify(ctx context.Context, summary *Summary) error
}

// Redis key layout for notification delivery.
const (
	notificationListPrefix = "notifications:"
	notificationChannel    = "notifications.published"
	notificationListTTL    = 7 * 24 * time.Hour
	notificationListCap    = 500
)

// RedisNotifier pushes summaries onto a per-owner Redis list and announces
// them on a pub/sub channel for connected frontends.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier creates a notifier on the given Redis client.
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Notify implements Notifier.
func (n *RedisNotifier) Notify(ctx context.Context, summary *Summary) error {
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	listKey := notificationListPrefix + summary.OwnerID

	pipe := n.client.Pipeline()
	pipe.LPush(ctx, listKey, payload)
	pipe.LTrim(ctx, listKey, 0, notificationListCap-1)
	pipe.Expire(ctx, listKey, notificationListTTL)
	pipe.Publish(ctx, notificationChannel, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}

	return nil
}
