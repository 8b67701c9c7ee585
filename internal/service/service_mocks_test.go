package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tallyfin/ledger-worker/internal/credentials"
	"github.com/tallyfin/ledger-worker/internal/models"
	"github.com/tallyfin/ledger-worker/internal/repository"
	"github.com/tallyfin/ledger-worker/internal/sheets"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

type mockJobStore struct {
	createFunc                func(ctx context.Context, job models.IngestJob) error
	getByIDFunc               func(ctx context.Context, jobID string) (*models.IngestJob, error)
	findActiveByHashFunc      func(ctx context.Context, tenantID, userID, contentHash string) (*models.IngestJob, error)
	claimQueuedFunc           func(ctx context.Context, jobID string) (bool, error)
	getStuckQueuedJobsFunc    func(ctx context.Context, olderThan time.Duration, limit int) ([]models.IngestJob, error)
	markReviewingFunc         func(ctx context.Context, jobID string, total, processed, failed int, statusMessage string) error
	markFailedFunc            func(ctx context.Context, jobID, errorCode, errorMessage, statusMessage string) error
	listFunc                  func(ctx context.Context, tenantID, userID string, filter repository.JobFilter) ([]models.IngestJob, error)
	deleteFailedFunc          func(ctx context.Context, tenantID, userID string) (int64, error)
	deleteEmptyFunc           func(ctx context.Context, tenantID, userID string) (int64, error)
	deleteDuplicatesFunc      func(ctx context.Context, tenantID, userID string) (int64, error)
	deleteAllExceptLatestFunc func(ctx context.Context, tenantID, userID string) (int64, error)
}

func (m *mockJobStore) Create(ctx context.Context, job models.IngestJob) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, job)
	}
	return nil
}

func (m *mockJobStore) GetByID(ctx context.Context, jobID string) (*models.IngestJob, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, jobID)
	}
	return nil, nil
}

func (m *mockJobStore) FindActiveByHash(ctx context.Context, tenantID, userID, contentHash string) (*models.IngestJob, error) {
	if m.findActiveByHashFunc != nil {
		return m.findActiveByHashFunc(ctx, tenantID, userID, contentHash)
	}
	return nil, nil
}

func (m *mockJobStore) ClaimQueued(ctx context.Context, jobID string) (bool, error) {
	if m.claimQueuedFunc != nil {
		return m.claimQueuedFunc(ctx, jobID)
	}
	return true, nil
}

func (m *mockJobStore) GetStuckQueuedJobs(ctx context.Context, olderThan time.Duration, limit int) ([]models.IngestJob, error) {
	if m.getStuckQueuedJobsFunc != nil {
		return m.getStuckQueuedJobsFunc(ctx, olderThan, limit)
	}
	return nil, nil
}

func (m *mockJobStore) MarkReviewing(ctx context.Context, jobID string, total, processed, failed int, statusMessage string) error {
	if m.markReviewingFunc != nil {
		return m.markReviewingFunc(ctx, jobID, total, processed, failed, statusMessage)
	}
	return nil
}

func (m *mockJobStore) MarkFailed(ctx context.Context, jobID, errorCode, errorMessage, statusMessage string) error {
	if m.markFailedFunc != nil {
		return m.markFailedFunc(ctx, jobID, errorCode, errorMessage, statusMessage)
	}
	return nil
}

func (m *mockJobStore) List(ctx context.Context, tenantID, userID string, filter repository.JobFilter) ([]models.IngestJob, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, tenantID, userID, filter)
	}
	return nil, nil
}

func (m *mockJobStore) DeleteFailed(ctx context.Context, tenantID, userID string) (int64, error) {
	if m.deleteFailedFunc != nil {
		return m.deleteFailedFunc(ctx, tenantID, userID)
	}
	return 0, nil
}

func (m *mockJobStore) DeleteEmpty(ctx context.Context, tenantID, userID string) (int64, error) {
	if m.deleteEmptyFunc != nil {
		return m.deleteEmptyFunc(ctx, tenantID, userID)
	}
	return 0, nil
}

func (m *mockJobStore) DeleteDuplicates(ctx context.Context, tenantID, userID string) (int64, error) {
	if m.deleteDuplicatesFunc != nil {
		return m.deleteDuplicatesFunc(ctx, tenantID, userID)
	}
	return 0, nil
}

func (m *mockJobStore) DeleteAllExceptLatest(ctx context.Context, tenantID, userID string) (int64, error) {
	if m.deleteAllExceptLatestFunc != nil {
		return m.deleteAllExceptLatestFunc(ctx, tenantID, userID)
	}
	return 0, nil
}

// memTransactionStore is an in-memory TransactionStore good enough for
// exercising the merge and sync paths.
type memTransactionStore struct {
	rows map[string]*models.Transaction // by id

	applyExternalCalls []string
	applyManualCalls   []string
}

func newMemTransactionStore() *memTransactionStore {
	return &memTransactionStore{rows: map[string]*models.Transaction{}}
}

func (m *memTransactionStore) Create(ctx context.Context, tx models.Transaction) error {
	cp := tx
	m.rows[tx.ID] = &cp
	return nil
}

func (m *memTransactionStore) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	if tx, ok := m.rows[id]; ok {
		return tx, nil
	}
	return nil, repository.ErrTransactionNotFound
}

func (m *memTransactionStore) FindByFingerprint(ctx context.Context, tenantID, userID, fp string) (*models.Transaction, error) {
	for _, tx := range m.rows {
		if tx.TenantID == tenantID && tx.UserID == userID && tx.Fingerprint == fp {
			return tx, nil
		}
	}
	return nil, nil
}

func (m *memTransactionStore) GetByOwner(ctx context.Context, tenantID, userID string) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, tx := range m.rows {
		if tx.TenantID == tenantID && tx.UserID == userID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (m *memTransactionStore) ApplyExternal(ctx context.Context, id string, updates map[string]interface{}) error {
	tx, ok := m.rows[id]
	if !ok {
		return repository.ErrTransactionNotFound
	}
	tx.SyncVersion++
	tx.LastModifiedBy = models.ModifiedByExternal
	tx.UpdatedAt = time.Now()
	if desc, ok := updates["description"].(string); ok {
		tx.Description = desc
	}
	m.applyExternalCalls = append(m.applyExternalCalls, id)
	return nil
}

func (m *memTransactionStore) Confirm(ctx context.Context, id string) error {
	tx, ok := m.rows[id]
	if !ok {
		return repository.ErrTransactionNotFound
	}
	tx.Confirmed = true
	return nil
}

func (m *memTransactionStore) ApplyManual(ctx context.Context, id string, updates map[string]interface{}) error {
	tx, ok := m.rows[id]
	if !ok {
		return repository.ErrTransactionNotFound
	}
	tx.SyncVersion++
	tx.LastModifiedBy = models.ModifiedByLocal
	tx.UpdatedAt = time.Now()
	m.applyManualCalls = append(m.applyManualCalls, id)
	return nil
}

type mockConnectionStore struct {
	getByIDFunc      func(ctx context.Context, id string) (*models.SheetConnection, error)
	listByTenantFunc func(ctx context.Context, tenantID string) ([]models.SheetConnection, error)
	listAutoSyncFunc func(ctx context.Context, limit int) ([]models.SheetConnection, error)
	claimSyncingFunc func(ctx context.Context, id string) (bool, error)
	releaseSyncFunc  func(ctx context.Context, id string, direction models.SyncDirection, success bool, syncErr *string) error

	released bool
}

func (m *mockConnectionStore) GetByID(ctx context.Context, id string) (*models.SheetConnection, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockConnectionStore) ListByTenant(ctx context.Context, tenantID string) ([]models.SheetConnection, error) {
	if m.listByTenantFunc != nil {
		return m.listByTenantFunc(ctx, tenantID)
	}
	return nil, nil
}

func (m *mockConnectionStore) ListAutoSync(ctx context.Context, limit int) ([]models.SheetConnection, error) {
	if m.listAutoSyncFunc != nil {
		return m.listAutoSyncFunc(ctx, limit)
	}
	return nil, nil
}

func (m *mockConnectionStore) ClaimSyncing(ctx context.Context, id string) (bool, error) {
	if m.claimSyncingFunc != nil {
		return m.claimSyncingFunc(ctx, id)
	}
	return true, nil
}

func (m *mockConnectionStore) ReleaseSync(ctx context.Context, id string, direction models.SyncDirection, success bool, syncErr *string) error {
	m.released = true
	if m.releaseSyncFunc != nil {
		return m.releaseSyncFunc(ctx, id, direction, success, syncErr)
	}
	return nil
}

type mockConflictStore struct {
	created []models.Conflict

	getByIDFunc                   func(ctx context.Context, id string) (*models.Conflict, error)
	hasPendingForTransactionFunc  func(ctx context.Context, transactionID string) (bool, error)
	markResolvedFunc              func(ctx context.Context, id, resolution, resolvedBy string) error
	markIgnoredFunc               func(ctx context.Context, id, resolvedBy string) error
	listPendingFunc               func(ctx context.Context, tenantID string) ([]models.Conflict, error)
	countPendingForConnectionFunc func(ctx context.Context, connectionID string) (int64, error)
}

func (m *mockConflictStore) Create(ctx context.Context, conflict models.Conflict) error {
	m.created = append(m.created, conflict)
	return nil
}

func (m *mockConflictStore) GetByID(ctx context.Context, id string) (*models.Conflict, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockConflictStore) ListPending(ctx context.Context, tenantID string) ([]models.Conflict, error) {
	if m.listPendingFunc != nil {
		return m.listPendingFunc(ctx, tenantID)
	}
	return nil, nil
}

func (m *mockConflictStore) CountPendingForConnection(ctx context.Context, connectionID string) (int64, error) {
	if m.countPendingForConnectionFunc != nil {
		return m.countPendingForConnectionFunc(ctx, connectionID)
	}
	return 0, nil
}

func (m *mockConflictStore) HasPendingForTransaction(ctx context.Context, transactionID string) (bool, error) {
	if m.hasPendingForTransactionFunc != nil {
		return m.hasPendingForTransactionFunc(ctx, transactionID)
	}
	return false, nil
}

func (m *mockConflictStore) MarkResolved(ctx context.Context, id, resolution, resolvedBy string) error {
	if m.markResolvedFunc != nil {
		return m.markResolvedFunc(ctx, id, resolution, resolvedBy)
	}
	return nil
}

func (m *mockConflictStore) MarkIgnored(ctx context.Context, id, resolvedBy string) error {
	if m.markIgnoredFunc != nil {
		return m.markIgnoredFunc(ctx, id, resolvedBy)
	}
	return nil
}

type mockSyncRunStore struct {
	createFunc func(ctx context.Context, run models.SyncRun) error

	finished       bool
	finishedStatus models.SyncRunStatus
	finishedRun    models.SyncRun
}

func (m *mockSyncRunStore) Create(ctx context.Context, run models.SyncRun) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, run)
	}
	return nil
}

func (m *mockSyncRunStore) Finish(ctx context.Context, runID string, status models.SyncRunStatus, counts models.SyncRun, errMsg *string) error {
	m.finished = true
	m.finishedStatus = status
	m.finishedRun = counts
	return nil
}

func (m *mockSyncRunStore) ListByConnection(ctx context.Context, connectionID string, limit int) ([]models.SyncRun, error) {
	return nil, nil
}

type mockResolver struct {
	resolveFunc func(ctx context.Context, tenantID, userID string) (*credentials.Resolution, error)
}

func (m *mockResolver) Resolve(ctx context.Context, tenantID, userID string) (*credentials.Resolution, error) {
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx, tenantID, userID)
	}
	return &credentials.Resolution{Method: models.AuthUserOAuth}, nil
}

// fakeSheetClient is an in-memory sheet keyed by row index.
type fakeSheetClient struct {
	rows []sheets.RowData

	readErr   error
	flakyErr  error // returned readFails times before reads start succeeding
	readFails int
	readCalls int
	appended  []sheets.RowData
	updated   []sheets.RowData
	replaced  []sheets.RowData
}

func (f *fakeSheetClient) ReadRows(ctx context.Context, spreadsheetID, sheetName string) ([]sheets.RowData, error) {
	f.readCalls++
	if f.readFails > 0 {
		f.readFails--
		return nil, f.flakyErr
	}
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.rows, nil
}

func (f *fakeSheetClient) AppendRows(ctx context.Context, spreadsheetID, sheetName string, rows []sheets.RowData) error {
	f.appended = append(f.appended, rows...)
	return nil
}

func (f *fakeSheetClient) UpdateRow(ctx context.Context, spreadsheetID, sheetName string, row sheets.RowData) error {
	f.updated = append(f.updated, row)
	return nil
}

func (f *fakeSheetClient) ReplaceAllRows(ctx context.Context, spreadsheetID, sheetName string, rows []sheets.RowData) error {
	f.replaced = rows
	return nil
}
