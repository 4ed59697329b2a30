package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/publish-dispatcher/internal/config"
	"github.com/redis/go-redis/v9"
)

// Redis key layout.
const (
	attemptKeyPrefix = "publish:attempt:"
	attemptKeyTTL    = 48 * time.Hour
)

// RedisStore wraps the Redis client used for notifications and the
// best-effort idempotency registry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis connection
func NewRedisStore(cfg *config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used in tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisStore) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// MarkPublished records that the platform accepted the post behind the given
// idempotency key. The registry is best-effort: a Redis outage degrades to
// publishing without the duplicate guard, it never blocks a job.
func (r *RedisStore) MarkPublished(ctx context.Context, idempotencyKey string) error {
	err := r.client.Set(ctx, attemptKeyPrefix+idempotencyKey, time.Now().UTC().Format(time.RFC3339), attemptKeyTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to mark %s published: %w", idempotencyKey, err)
	}
	return nil
}

// WasPublished reports whether a previous attempt already published behind
// the given idempotency key. Used on retries to skip platforms that already
// accepted the post.
func (r *RedisStore) WasPublished(ctx context.Context, idempotencyKey string) (bool, error) {
	count, err := r.client.Exists(ctx, attemptKeyPrefix+idempotencyKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", idempotencyKey, err)
	}
	return count > 0, nil
}
