package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tallyfin/ledger-worker/internal/models"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrDuplicateTransaction: the insert hit the fingerprint unique
	// index, meaning a concurrent merge stored the same row first.
	ErrDuplicateTransaction = errors.New("transaction already exists")
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a new transaction row
func (r *TransactionRepository) Create(ctx context.Context, tx models.Transaction) error {
	if err := r.db.WithContext(ctx).Create(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a transaction by ID
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	result := r.db.WithContext(ctx).First(&tx, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", result.Error)
	}
	return &tx, nil
}

// FindByFingerprint returns the owner's row with the given fingerprint, or
// nil when none exists. This is the merge engine's dedup lookup.
func (r *TransactionRepository) FindByFingerprint(ctx context.Context, tenantID, userID, fp string) (*models.Transaction, error) {
	var tx models.Transaction
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ? AND fingerprint = ?", tenantID, userID, fp).
		First(&tx)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query fingerprint: %w", result.Error)
	}
	return &tx, nil
}

// GetByOwner retrieves all of the owner's rows, newest date first.
func (r *TransactionRepository) GetByOwner(ctx context.Context, tenantID, userID string) ([]models.Transaction, error) {
	var txs []models.Transaction
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Order("date DESC NULLS LAST, created_at DESC").
		Find(&txs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", result.Error)
	}
	return txs, nil
}

// ApplyExternal overwrites a row with values from the external side and
// bumps sync_version. Used by pull-sync updates and by conflict resolution
// in favor of the external snapshot.
func (r *TransactionRepository) ApplyExternal(ctx context.Context, id string, updates map[string]interface{}) error {
	updates["sync_version"] = gorm.Expr("sync_version + 1")
	updates["last_modified_by"] = models.ModifiedByExternal
	updates["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to apply external update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// ApplyManual overwrites a row with caller-supplied values (the manual
// conflict resolution path) and bumps sync_version.
func (r *TransactionRepository) ApplyManual(ctx context.Context, id string, updates map[string]interface{}) error {
	updates["sync_version"] = gorm.Expr("sync_version + 1")
	updates["last_modified_by"] = models.ModifiedByLocal
	updates["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to apply manual update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// Confirm marks a row as human-confirmed.
func (r *TransactionRepository) Confirm(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"confirmed":  true,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to confirm transaction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}
