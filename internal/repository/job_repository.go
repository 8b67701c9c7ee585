package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tallyfin/ledger-worker/internal/models"
)

var ErrJobNotFound = errors.New("job not found")

const jobColumns = `id, user_id, tenant_id, type, status, processing_mode, file_name, file_path,
	       content_hash, total_items, processed_items, failed_items,
	       error_code, error_message, status_message,
	       created_at, started_at, completed_at, updated_at`

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job in queued state.
func (r *JobRepository) Create(ctx context.Context, job models.IngestJob) error {
	query := `
		INSERT INTO ingest_job (
			id, user_id, tenant_id, type, status, processing_mode,
			file_name, file_path, content_hash, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.UserID,
		job.TenantID,
		job.Type,
		job.Status,
		job.ProcessingMode,
		job.FileName,
		job.FilePath,
		job.ContentHash,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by ID
func (r *JobRepository) GetByID(ctx context.Context, jobID string) (*models.IngestJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM ingest_job WHERE id = $1`, jobColumns)

	job, err := r.scanJob(r.db.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// FindActiveByHash returns the owner's most recent non-failed job with the
// given content hash, or nil when none exists. Used by the duplicate check
// on upload.
func (r *JobRepository) FindActiveByHash(ctx context.Context, tenantID, userID, contentHash string) (*models.IngestJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM ingest_job
		WHERE tenant_id = $1 AND user_id = $2 AND content_hash = $3 AND status != $4
		ORDER BY created_at DESC
		LIMIT 1
	`, jobColumns)

	job, err := r.scanJob(r.db.QueryRowContext(ctx, query, tenantID, userID, contentHash, models.JobStatusFailed))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query job by hash: %w", err)
	}
	return job, nil
}

// ClaimQueued flips a job from queued to processing. The conditional WHERE
// is the serialization point: of two concurrent sweeps only one sees
// RowsAffected == 1, the other's re-read finds the job already claimed.
func (r *JobRepository) ClaimQueued(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE ingest_job
		SET status = $1, started_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.ExecContext(ctx, query, models.JobStatusProcessing, time.Now(), jobID, models.JobStatusQueued)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// GetStuckQueuedJobs returns async jobs sitting in queued state for longer
// than the staleness window, oldest first, bounded by limit.
func (r *JobRepository) GetStuckQueuedJobs(ctx context.Context, olderThan time.Duration, limit int) ([]models.IngestJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM ingest_job
		WHERE status = $1 AND processing_mode = $2 AND created_at < $3
		ORDER BY created_at ASC
		LIMIT $4
	`, jobColumns)

	cutoff := time.Now().Add(-olderThan)
	rows, err := r.db.QueryContext(ctx, query, models.JobStatusQueued, models.ProcessingModeAsync, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck jobs: %w", err)
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

// MarkReviewing records a successful extraction+merge.
func (r *JobRepository) MarkReviewing(ctx context.Context, jobID string, total, processed, failed int, statusMessage string) error {
	query := `
		UPDATE ingest_job
		SET status = $1, total_items = $2, processed_items = $3, failed_items = $4,
		    status_message = $5, completed_at = $6, updated_at = $6
		WHERE id = $7
	`

	_, err := r.db.ExecContext(ctx, query, models.JobStatusReviewing, total, processed, failed, statusMessage, time.Now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job reviewing: %w", err)
	}
	return nil
}

// MarkFailed records an unrecoverable job failure with its classified code.
func (r *JobRepository) MarkFailed(ctx context.Context, jobID, errorCode, errorMessage, statusMessage string) error {
	query := `
		UPDATE ingest_job
		SET status = $1, error_code = $2, error_message = $3, status_message = $4,
		    completed_at = $5, updated_at = $5
		WHERE id = $6
	`

	_, err := r.db.ExecContext(ctx, query, models.JobStatusFailed, errorCode, errorMessage, statusMessage, time.Now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// JobFilter narrows List results. Zero values mean "no filter".
type JobFilter struct {
	Status models.JobStatus
	Type   models.JobType
	Limit  int
	Offset int
}

// List returns the owner's jobs, newest first.
func (r *JobRepository) List(ctx context.Context, tenantID, userID string, filter JobFilter) ([]models.IngestJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM ingest_job WHERE tenant_id = $1 AND user_id = $2`, jobColumns)
	args := []interface{}{tenantID, userID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

// DeleteFailed removes the owner's failed jobs; transactions cascade.
func (r *JobRepository) DeleteFailed(ctx context.Context, tenantID, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM ingest_job WHERE tenant_id = $1 AND user_id = $2 AND status = $3`,
		tenantID, userID, models.JobStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to delete failed jobs: %w", err)
	}
	return result.RowsAffected()
}

// DeleteEmpty removes completed jobs that produced no rows.
func (r *JobRepository) DeleteEmpty(ctx context.Context, tenantID, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM ingest_job
		 WHERE tenant_id = $1 AND user_id = $2 AND status = $3 AND processed_items = 0`,
		tenantID, userID, models.JobStatusReviewing)
	if err != nil {
		return 0, fmt.Errorf("failed to delete empty jobs: %w", err)
	}
	return result.RowsAffected()
}

// DeleteDuplicates removes, for each content hash, every job but the
// earliest. Force-uploaded duplicates accumulate; this is the cleanup.
func (r *JobRepository) DeleteDuplicates(ctx context.Context, tenantID, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM ingest_job
		WHERE tenant_id = $1 AND user_id = $2 AND id NOT IN (
			SELECT DISTINCT ON (content_hash) id
			FROM ingest_job
			WHERE tenant_id = $1 AND user_id = $2
			ORDER BY content_hash, created_at ASC
		)`,
		tenantID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete duplicate jobs: %w", err)
	}
	return result.RowsAffected()
}

// DeleteAllExceptLatest keeps only the most recent job for the owner.
func (r *JobRepository) DeleteAllExceptLatest(ctx context.Context, tenantID, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM ingest_job
		WHERE tenant_id = $1 AND user_id = $2 AND id != (
			SELECT id FROM ingest_job
			WHERE tenant_id = $1 AND user_id = $2
			ORDER BY created_at DESC
			LIMIT 1
		)`,
		tenantID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old jobs: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *JobRepository) scanJob(row rowScanner) (*models.IngestJob, error) {
	var job models.IngestJob
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.TenantID,
		&job.Type,
		&job.Status,
		&job.ProcessingMode,
		&job.FileName,
		&job.FilePath,
		&job.ContentHash,
		&job.TotalItems,
		&job.ProcessedItems,
		&job.FailedItems,
		&job.ErrorCode,
		&job.ErrorMessage,
		&job.StatusMessage,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// scanJobs scans database rows into an IngestJob slice
func (r *JobRepository) scanJobs(rows *sql.Rows) ([]models.IngestJob, error) {
	var jobs []models.IngestJob

	for rows.Next() {
		job, err := r.scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return jobs, nil
}
