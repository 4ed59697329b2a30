package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/publish-dispatcher/internal/models"
	"github.com/publish-dispatcher/internal/types"
)

// PublishResultRepository stores the per-attempt audit log in ClickHouse.
// Records are append-only; the table is the source of truth for "what did we
// send to which platform and when".
type PublishResultRepository struct {
	db *ClickHouseDB
}

// NewPublishResultRepository creates a new publish result repository
func NewPublishResultRepository(db *ClickHouseDB) *PublishResultRepository {
	return &PublishResultRepository{db: db}
}

// Insert appends one attempt record
func (r *PublishResultRepository) Insert(ctx context.Context, record *models.PublishResultRecord) error {
	return r.BatchInsert(ctx, []*models.PublishResultRecord{record})
}

// BatchInsert appends the attempt records of one processing round
func (r *PublishResultRepository) BatchInsert(ctx context.Context, records []*models.PublishResultRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO publish_results (
			id, job_id, platform, attempt, success, remote_post_id,
			remote_url, error_code, error_message, retryable, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, record := range records {
		createdAt := record.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		err := batch.Append(
			record.ID,
			record.JobID,
			string(record.Platform),
			uint8(record.Attempt), // #nosec G115 - attempts are capped at single digits
			record.Success,
			record.RemotePostID,
			record.RemoteURL,
			record.ErrorCode,
			record.ErrorMessage,
			record.Retryable,
			createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append publish result: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert publish results: %w", err)
	}

	return nil
}

// ListByJob retrieves every attempt record for a job, oldest first
func (r *PublishResultRepository) ListByJob(ctx context.Context, jobID string) ([]*models.PublishResultRecord, error) {
	query := `
		SELECT id, job_id, platform, attempt, success, remote_post_id,
			   remote_url, error_code, error_message, retryable, created_at
		FROM publish_results
		WHERE job_id = ?
		ORDER BY created_at ASC, platform ASC
	`

	rows, err := r.db.Conn().Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query publish results: %w", err)
	}
	defer rows.Close()

	var records []*models.PublishResultRecord
	for rows.Next() {
		var record models.PublishResultRecord
		var platform string
		var attempt uint8

		err := rows.Scan(
			&record.ID,
			&record.JobID,
			&platform,
			&attempt,
			&record.Success,
			&record.RemotePostID,
			&record.RemoteURL,
			&record.ErrorCode,
			&record.ErrorMessage,
			&record.Retryable,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan publish result: %w", err)
		}

		record.Platform = types.Platform(platform)
		record.Attempt = int(attempt)
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating publish results: %w", err)
	}

	return records, nil
}
