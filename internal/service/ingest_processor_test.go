package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyfin/ledger-worker/internal/extraction"
	"github.com/tallyfin/ledger-worker/internal/models"
	"github.com/tallyfin/ledger-worker/internal/storage"
)

type stubExtractor struct {
	rows []extraction.Row
	err  error
}

func (s *stubExtractor) Extract(ctx context.Context, fileName string, data []byte) ([]extraction.Row, error) {
	return s.rows, s.err
}

func newTestProcessor(jobs JobStore, ext extraction.Extractor) (*IngestProcessor, *memTransactionStore) {
	txStore := newMemTransactionStore()
	merge := NewMergeEngine(txStore, quietLogger())
	return NewIngestProcessor(jobs, storage.NewMemoryStore(), ext, merge, quietLogger()), txStore
}

func uploadReq(data []byte) UploadRequest {
	return UploadRequest{
		TenantID: "tenant-1",
		UserID:   "user-1",
		Type:     models.JobTypeSpreadsheet,
		Mode:     models.ProcessingModeAsync,
		FileName: "statement.xlsx",
		Data:     data,
	}
}

func TestCreateJobQueues(t *testing.T) {
	var created *models.IngestJob
	jobs := &mockJobStore{
		createFunc: func(_ context.Context, job models.IngestJob) error {
			created = &job
			return nil
		},
	}
	p, _ := newTestProcessor(jobs, &stubExtractor{})

	job, err := p.CreateJob(context.Background(), uploadReq([]byte("file-bytes")))
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, models.JobStatusQueued, created.Status)
	assert.NotEmpty(t, created.ContentHash)
	assert.NotNil(t, created.FilePath)
	assert.Equal(t, job.ID, created.ID)
}

func TestCreateJobRejectsDuplicateContent(t *testing.T) {
	jobs := &mockJobStore{
		findActiveByHashFunc: func(_ context.Context, _, _, _ string) (*models.IngestJob, error) {
			return &models.IngestJob{ID: "job-original"}, nil
		},
	}
	p, _ := newTestProcessor(jobs, &stubExtractor{})

	_, err := p.CreateJob(context.Background(), uploadReq([]byte("same-bytes")))
	var dup *DuplicateFileError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "job-original", dup.ExistingJobID)
}

func TestCreateJobForceBypassesDuplicateCheck(t *testing.T) {
	lookups := 0
	jobs := &mockJobStore{
		findActiveByHashFunc: func(_ context.Context, _, _, _ string) (*models.IngestJob, error) {
			lookups++
			return &models.IngestJob{ID: "job-original"}, nil
		},
	}
	p, _ := newTestProcessor(jobs, &stubExtractor{})

	req := uploadReq([]byte("same-bytes"))
	req.Force = true
	_, err := p.CreateJob(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, lookups)
}

func TestProcessSkipsWhenClaimLost(t *testing.T) {
	jobs := &mockJobStore{
		claimQueuedFunc: func(_ context.Context, _ string) (bool, error) { return false, nil },
	}
	p, _ := newTestProcessor(jobs, &stubExtractor{err: errors.New("should not run")})

	err := p.Process(context.Background(), models.IngestJob{ID: "job-1"})
	require.NoError(t, err)
}

func TestProcessHappyPathWithDuplicates(t *testing.T) {
	date := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]extraction.Row, 0, 10)
	for i := 0; i < 8; i++ {
		rows = append(rows, extraction.Row{
			Description: "Purchase",
			Amount:      decimal.NewFromInt(int64(-(i + 1))),
			Date:        &date,
		})
	}
	// Two exact repeats of the first row.
	rows = append(rows, rows[0], rows[0])

	var gotTotal, gotProcessed, gotFailed int
	var gotMessage string
	jobs := &mockJobStore{
		markReviewingFunc: func(_ context.Context, _ string, total, processed, failed int, statusMessage string) error {
			gotTotal, gotProcessed, gotFailed = total, processed, failed
			gotMessage = statusMessage
			return nil
		},
	}
	p, txStore := newTestProcessor(jobs, &stubExtractor{rows: rows})

	blobPath, err := p.blobs.Put(context.Background(), "hash-1", []byte("data"))
	require.NoError(t, err)
	job := models.IngestJob{
		ID:       "job-1",
		TenantID: "tenant-1",
		UserID:   "user-1",
		FileName: "statement.xlsx",
		FilePath: &blobPath,
	}

	require.NoError(t, p.Process(context.Background(), job))
	assert.Equal(t, 10, gotTotal)
	assert.Equal(t, 8, gotProcessed)
	assert.Equal(t, 2, gotFailed)
	assert.Equal(t, "Imported 8 transactions (2 skipped as duplicates)", gotMessage)
	assert.Len(t, txStore.rows, 8)
}

func TestProcessMarksFailedOnExtractionError(t *testing.T) {
	var gotCode, gotStatus string
	jobs := &mockJobStore{
		markFailedFunc: func(_ context.Context, _ string, errorCode, _, statusMessage string) error {
			gotCode = errorCode
			gotStatus = statusMessage
			return nil
		},
	}
	p, _ := newTestProcessor(jobs, &stubExtractor{err: extraction.ErrNoRows})

	blobPath, err := p.blobs.Put(context.Background(), "hash-1", []byte("data"))
	require.NoError(t, err)
	job := models.IngestJob{ID: "job-1", TenantID: "tenant-1", UserID: "user-1", FilePath: &blobPath}

	err = p.Process(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, CodeExtractionFailed, gotCode)
	assert.Equal(t, statusMessages[CodeExtractionFailed], gotStatus)
}

func TestProcessMarksFailedOnMissingBlob(t *testing.T) {
	var gotCode string
	jobs := &mockJobStore{
		markFailedFunc: func(_ context.Context, _ string, errorCode, _, _ string) error {
			gotCode = errorCode
			return nil
		},
	}
	p, _ := newTestProcessor(jobs, &stubExtractor{})

	missing := "uploads/not-there"
	job := models.IngestJob{ID: "job-1", FilePath: &missing}

	err := p.Process(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, CodeDownloadFailed, gotCode)
}

func TestBuildReviewMessageIsDeterministic(t *testing.T) {
	assert.Equal(t, "Imported 5 transactions", buildReviewMessage(5, 0))
	assert.Equal(t, "Imported 0 transactions (3 skipped as duplicates)", buildReviewMessage(0, 3))
	assert.Equal(t, buildReviewMessage(8, 2), buildReviewMessage(8, 2))
}
