package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/publish-dispatcher/internal/models"
	"github.com/publish-dispatcher/internal/types"
)

// Sentinel errors surfaced by the job repository.
var (
	// ErrJobNotFound means no scheduled post exists with the given id.
	ErrJobNotFound = errors.New("scheduled post not found")
	// ErrInvalidState means the requested transition is not allowed from the
	// post's current status.
	ErrInvalidState = errors.New("invalid state for requested transition")
)

const scheduledPostColumns = `
	job_id, owner_id, org_id, content, platforms, media_urls, hashtags,
	mentions, location, scheduled_at, next_attempt_at, status,
	attempt_count, max_attempts, last_error, created_at, updated_at
`

// JobRepository handles scheduled post persistence
type JobRepository struct {
	db *PostgresDB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *PostgresDB) *JobRepository {
	return &JobRepository{db: db}
}

// validate rejects posts the dispatcher could never publish.
func validate(post *models.ScheduledPost) error {
	if strings.TrimSpace(post.Content) == "" {
		return fmt.Errorf("content must not be empty")
	}
	if len(post.Platforms) == 0 {
		return fmt.Errorf("at least one target platform is required")
	}
	for _, platform := range post.Platforms {
		if !types.IsKnownPlatform(platform) {
			return fmt.Errorf("unknown platform %q", platform)
		}
	}
	return nil
}

// Create inserts a new scheduled post in pending status
func (r *JobRepository) Create(ctx context.Context, post *models.ScheduledPost) error {
	if err := validate(post); err != nil {
		return err
	}

	if post.Status == "" {
		post.Status = types.StatusPending
	}
	if post.MaxAttempts <= 0 {
		post.MaxAttempts = models.DefaultMaxAttempts
	}

	query := `
		INSERT INTO scheduled_posts (
			job_id, owner_id, org_id, content, platforms, media_urls,
			hashtags, mentions, location, scheduled_at, status,
			attempt_count, max_attempts
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		post.JobID,
		post.OwnerID,
		post.OrgID,
		post.Content,
		platformStrings(post.Platforms),
		post.MediaURLs,
		post.Hashtags,
		post.Mentions,
		post.Location,
		post.ScheduledAt,
		post.Status,
		post.AttemptCount,
		post.MaxAttempts,
	)

	if err != nil {
		return fmt.Errorf("failed to create scheduled post: %w", err)
	}

	return nil
}

// GetByID retrieves a scheduled post by job id
func (r *JobRepository) GetByID(ctx context.Context, jobID string) (*models.ScheduledPost, error) {
	query := `SELECT` + scheduledPostColumns + `FROM scheduled_posts WHERE job_id = $1`

	post, err := scanPost(r.db.Pool().QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get scheduled post: %w", err)
	}

	return post, nil
}

// ListDue retrieves pending posts whose run time has passed, oldest first.
// The run time is next_attempt_at when a retry was scheduled, otherwise
// scheduled_at.
func (r *JobRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	query := `
		SELECT` + scheduledPostColumns + `
		FROM scheduled_posts
		WHERE status = $1
		  AND COALESCE(next_attempt_at, scheduled_at) <= $2
		ORDER BY COALESCE(next_attempt_at, scheduled_at) ASC
		LIMIT $3
	`

	rows, err := r.db.Pool().Query(ctx, query, types.StatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled post: %w", err)
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due posts: %w", err)
	}

	return posts, nil
}

// ListByOwner retrieves an owner's posts, newest schedule first.
func (r *JobRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*models.ScheduledPost, error) {
	query := `
		SELECT` + scheduledPostColumns + `
		FROM scheduled_posts
		WHERE owner_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts by owner: %w", err)
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled post: %w", err)
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}

	return posts, nil
}

// MarkProcessing atomically claims a pending post: the status moves to
// processing and the attempt counter is consumed in the same statement, so
// two workers can never claim the same post. Returns the claimed post, or
// ErrInvalidState when the post was no longer pending.
func (r *JobRepository) MarkProcessing(ctx context.Context, jobID string) (*models.ScheduledPost, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $2, attempt_count = attempt_count + 1, updated_at = NOW()
		WHERE job_id = $1 AND status = $3
		RETURNING` + scheduledPostColumns

	post, err := scanPost(r.db.Pool().QueryRow(ctx, query, jobID, types.StatusProcessing, types.StatusPending))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, jobID); getErr != nil {
				return nil, getErr
			}
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("failed to claim scheduled post: %w", err)
	}

	return post, nil
}

// ReclaimStale returns posts stranded in processing to the queue. A post
// strands when the worker that claimed it died before settling; once its last
// update is older than the lease it moves back to pending, or straight to
// failed when the fatal claim had already consumed the final attempt. The
// consumed attempt stays consumed: the dead worker may have reached the
// platform, and duplicate suppression on retry is the idempotency registry's
// job. Returns the number of posts reclaimed.
func (r *JobRepository) ReclaimStale(ctx context.Context, now time.Time, lease time.Duration) (int, error) {
	query := `
		UPDATE scheduled_posts
		SET status = CASE WHEN attempt_count >= max_attempts THEN $2::text ELSE $3::text END,
			updated_at = NOW()
		WHERE status = $4 AND updated_at < $1
	`

	result, err := r.db.Pool().Exec(ctx, query,
		now.Add(-lease), types.StatusFailed, types.StatusPending, types.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stranded posts: %w", err)
	}

	return int(result.RowsAffected()), nil
}

// RecordOutcome finalizes one processing round: the post moves from
// processing to the given status, the last error and next run time are
// recorded, and when refundAttempt is set the attempt consumed by the claim
// is handed back (the round never reached the platform).
func (r *JobRepository) RecordOutcome(ctx context.Context, jobID string, status types.JobStatus, lastError *string, nextAttemptAt *time.Time, refundAttempt bool) error {
	refund := 0
	if refundAttempt {
		refund = 1
	}

	query := `
		UPDATE scheduled_posts
		SET status = $2, last_error = $3, next_attempt_at = $4,
			attempt_count = attempt_count - $5, updated_at = NOW()
		WHERE job_id = $1 AND status = $6
	`

	result, err := r.db.Pool().Exec(ctx, query,
		jobID, status, lastError, nextAttemptAt, refund, types.StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}

	if result.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, jobID); getErr != nil {
			return getErr
		}
		return ErrInvalidState
	}

	return nil
}

// Cancel moves a pending post to cancelled. Posts already claimed or in a
// terminal status cannot be cancelled; a post mid-flight may already be
// partially published.
func (r *JobRepository) Cancel(ctx context.Context, jobID, ownerID string) error {
	query := `
		UPDATE scheduled_posts
		SET status = $3, updated_at = NOW()
		WHERE job_id = $1 AND owner_id = $2 AND status = $4
	`

	result, err := r.db.Pool().Exec(ctx, query, jobID, ownerID, types.StatusCancelled, types.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel scheduled post: %w", err)
	}

	if result.RowsAffected() == 0 {
		post, getErr := r.GetByID(ctx, jobID)
		if getErr != nil {
			return getErr
		}
		if post.OwnerID != ownerID {
			return ErrJobNotFound
		}
		return ErrInvalidState
	}

	return nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.ScheduledPost, error) {
	var post models.ScheduledPost
	var platforms []string

	err := row.Scan(
		&post.JobID,
		&post.OwnerID,
		&post.OrgID,
		&post.Content,
		&platforms,
		&post.MediaURLs,
		&post.Hashtags,
		&post.Mentions,
		&post.Location,
		&post.ScheduledAt,
		&post.NextAttemptAt,
		&post.Status,
		&post.AttemptCount,
		&post.MaxAttempts,
		&post.LastError,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	post.Platforms = make([]types.Platform, len(platforms))
	for i, platform := range platforms {
		post.Platforms[i] = types.Platform(platform)
	}

	return &post, nil
}

func platformStrings(platforms []types.Platform) []string {
	out := make([]string, len(platforms))
	for i, platform := range platforms {
		out[i] = string(platform)
	}
	return out
}
