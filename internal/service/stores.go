package service

import (
	"context"
	"time"

	"github.com/tallyfin/ledger-worker/internal/credentials"
	"github.com/tallyfin/ledger-worker/internal/models"
	"github.com/tallyfin/ledger-worker/internal/repository"
)

// Consumer-side store contracts, implemented by internal/repository and
// mocked in tests.

type JobStore interface {
	Create(ctx context.Context, job models.IngestJob) error
	GetByID(ctx context.Context, jobID string) (*models.IngestJob, error)
	FindActiveByHash(ctx context.Context, tenantID, userID, contentHash string) (*models.IngestJob, error)
	ClaimQueued(ctx context.Context, jobID string) (bool, error)
	GetStuckQueuedJobs(ctx context.Context, olderThan time.Duration, limit int) ([]models.IngestJob, error)
	MarkReviewing(ctx context.Context, jobID string, total, processed, failed int, statusMessage string) error
	MarkFailed(ctx context.Context, jobID, errorCode, errorMessage, statusMessage string) error
	List(ctx context.Context, tenantID, userID string, filter repository.JobFilter) ([]models.IngestJob, error)
	DeleteFailed(ctx context.Context, tenantID, userID string) (int64, error)
	DeleteEmpty(ctx context.Context, tenantID, userID string) (int64, error)
	DeleteDuplicates(ctx context.Context, tenantID, userID string) (int64, error)
	DeleteAllExceptLatest(ctx context.Context, tenantID, userID string) (int64, error)
}

type TransactionStore interface {
	Create(ctx context.Context, tx models.Transaction) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	FindByFingerprint(ctx context.Context, tenantID, userID, fp string) (*models.Transaction, error)
	GetByOwner(ctx context.Context, tenantID, userID string) ([]models.Transaction, error)
	ApplyExternal(ctx context.Context, id string, updates map[string]interface{}) error
	ApplyManual(ctx context.Context, id string, updates map[string]interface{}) error
	Confirm(ctx context.Context, id string) error
}

type ConnectionStore interface {
	GetByID(ctx context.Context, id string) (*models.SheetConnection, error)
	ListByTenant(ctx context.Context, tenantID string) ([]models.SheetConnection, error)
	ListAutoSync(ctx context.Context, limit int) ([]models.SheetConnection, error)
	ClaimSyncing(ctx context.Context, id string) (bool, error)
	ReleaseSync(ctx context.Context, id string, direction models.SyncDirection, success bool, syncErr *string) error
}

type ConflictStore interface {
	Create(ctx context.Context, conflict models.Conflict) error
	GetByID(ctx context.Context, id string) (*models.Conflict, error)
	ListPending(ctx context.Context, tenantID string) ([]models.Conflict, error)
	CountPendingForConnection(ctx context.Context, connectionID string) (int64, error)
	HasPendingForTransaction(ctx context.Context, transactionID string) (bool, error)
	MarkResolved(ctx context.Context, id, resolution, resolvedBy string) error
	MarkIgnored(ctx context.Context, id, resolvedBy string) error
}

type SyncRunStore interface {
	Create(ctx context.Context, run models.SyncRun) error
	Finish(ctx context.Context, runID string, status models.SyncRunStatus, counts models.SyncRun, errMsg *string) error
	ListByConnection(ctx context.Context, connectionID string, limit int) ([]models.SyncRun, error)
}

// CredentialResolver is the credential tier engine.
type CredentialResolver interface {
	Resolve(ctx context.Context, tenantID, userID string) (*credentials.Resolution, error)
}
