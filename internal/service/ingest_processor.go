package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tallyfin/ledger-worker/internal/extraction"
	"github.com/tallyfin/ledger-worker/internal/fingerprint"
	"github.com/tallyfin/ledger-worker/internal/models"
	"github.com/tallyfin/ledger-worker/internal/storage"
)

// processTimeout is the hard wall-clock ceiling for one job, sized to fit
// serverless execution limits.
const processTimeout = 4 * time.Minute

// IngestProcessor owns the job lifecycle from upload through completion.
type IngestProcessor struct {
	jobs      JobStore
	blobs     storage.BlobStore
	extractor extraction.Extractor
	merge     *MergeEngine
	log       *logrus.Logger
}

func NewIngestProcessor(
	jobs JobStore,
	blobs storage.BlobStore,
	extractor extraction.Extractor,
	merge *MergeEngine,
	log *logrus.Logger,
) *IngestProcessor {
	return &IngestProcessor{
		jobs:      jobs,
		blobs:     blobs,
		extractor: extractor,
		merge:     merge,
		log:       log,
	}
}

// UploadRequest is a new file upload.
type UploadRequest struct {
	TenantID string
	UserID   string
	Type     models.JobType
	Mode     models.ProcessingMode
	FileName string
	Data     []byte
	Force    bool // bypass the duplicate check
}

// CreateJob fingerprints the upload, rejects duplicates unless forced,
// stores the bytes, and queues the job. Synchronous-mode jobs are kicked
// off immediately as a fire-and-forget background task; async jobs wait
// for the sweep.
func (p *IngestProcessor) CreateJob(ctx context.Context, req UploadRequest) (*models.IngestJob, error) {
	hash := fingerprint.Content(req.Data)

	if !req.Force {
		existing, err := p.jobs.FindActiveByHash(ctx, req.TenantID, req.UserID, hash)
		if err != nil {
			return nil, fmt.Errorf("failed to check for duplicate upload: %w", err)
		}
		if existing != nil {
			return nil, &DuplicateFileError{ExistingJobID: existing.ID}
		}
	}

	path, err := p.blobs.Put(ctx, hash, req.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	now := time.Now()
	job := models.IngestJob{
		ID:             uuid.New().String(),
		UserID:         req.UserID,
		TenantID:       req.TenantID,
		Type:           req.Type,
		Status:         models.JobStatusQueued,
		ProcessingMode: req.Mode,
		FileName:       req.FileName,
		FilePath:       &path,
		ContentHash:    hash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := p.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"tenant_id": job.TenantID,
		"type":      job.Type,
		"mode":      job.ProcessingMode,
	}).Info("job created")

	if req.Mode == models.ProcessingModeSync {
		go func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), processTimeout)
			defer cancel()
			if err := p.Process(bgCtx, job); err != nil {
				p.log.WithField("job_id", job.ID).WithError(err).Error("background processing failed")
			}
		}()
	}

	return &job, nil
}

// Process runs one job through download, extraction and merge. It first
// claims the job with a conditional queued→processing update; losing the
// claim means another invocation owns the job and Process backs off.
//
// Partial success (some rows skipped as duplicates) still ends in
// reviewing; only a total inability to extract or write is a failure.
func (p *IngestProcessor) Process(ctx context.Context, job models.IngestJob) error {
	claimed, err := p.jobs.ClaimQueued(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to claim job %s: %w", job.ID, err)
	}
	if !claimed {
		p.log.WithField("job_id", job.ID).Debug("job already claimed, skipping")
		return nil
	}

	if err := p.run(ctx, job); err != nil {
		code, statusMessage := Classify(err)
		p.log.WithFields(logrus.Fields{
			"job_id":     job.ID,
			"error_code": code,
		}).WithError(err).Error("job failed")

		if markErr := p.jobs.MarkFailed(ctx, job.ID, code, err.Error(), statusMessage); markErr != nil {
			return fmt.Errorf("failed to record job failure: %w", markErr)
		}
		return err
	}
	return nil
}

func (p *IngestProcessor) run(ctx context.Context, job models.IngestJob) error {
	if job.FilePath == nil {
		return fmt.Errorf("%w: job has no stored file", errDownloadStage)
	}

	data, err := p.blobs.Get(ctx, *job.FilePath)
	if err != nil {
		return fmt.Errorf("%w: %v", errDownloadStage, err)
	}

	rows, err := p.extractor.Extract(ctx, job.FileName, data)
	if err != nil {
		return fmt.Errorf("%w: %v", errExtractionStage, err)
	}

	result, err := p.merge.Merge(ctx, job.TenantID, job.UserID, &job.ID, models.SourceUpload, Items(rows))
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}

	total := len(rows)
	statusMessage := buildReviewMessage(result.Inserted, result.Skipped)
	if err := p.jobs.MarkReviewing(ctx, job.ID, total, result.Inserted, result.Skipped, statusMessage); err != nil {
		return fmt.Errorf("failed to record job completion: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"total":    total,
		"inserted": result.Inserted,
		"skipped":  result.Skipped,
	}).Info("job completed")

	return nil
}

// buildReviewMessage is deterministic: the same counts always produce the
// same user-facing text.
func buildReviewMessage(inserted, skipped int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Imported %d transactions", inserted)
	if skipped > 0 {
		fmt.Fprintf(&b, " (%d skipped as duplicates)", skipped)
	}
	return b.String()
}
