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
	ErrConflictNotFound = errors.New("conflict not found")
	ErrConflictTerminal = errors.New("conflict already resolved or ignored")
)

type ConflictRepository struct {
	db *gorm.DB
}

func NewConflictRepository(db *gorm.DB) *ConflictRepository {
	return &ConflictRepository{db: db}
}

// Create records a detected conflict
func (r *ConflictRepository) Create(ctx context.Context, conflict models.Conflict) error {
	if err := r.db.WithContext(ctx).Create(&conflict).Error; err != nil {
		return fmt.Errorf("failed to create conflict: %w", err)
	}
	return nil
}

// GetByID retrieves a conflict by ID
func (r *ConflictRepository) GetByID(ctx context.Context, id string) (*models.Conflict, error) {
	var conflict models.Conflict
	result := r.db.WithContext(ctx).First(&conflict, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrConflictNotFound
		}
		return nil, fmt.Errorf("failed to get conflict: %w", result.Error)
	}
	return &conflict, nil
}

// ListPending lists a tenant's unresolved conflicts, oldest first.
func (r *ConflictRepository) ListPending(ctx context.Context, tenantID string) ([]models.Conflict, error) {
	var conflicts []models.Conflict
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, models.ConflictStatusPending).
		Order("created_at ASC").
		Find(&conflicts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", result.Error)
	}
	return conflicts, nil
}

// CountPendingForConnection counts unresolved conflicts on one connection.
func (r *ConflictRepository) CountPendingForConnection(ctx context.Context, connectionID string) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Conflict{}).
		Where("connection_id = ? AND status = ?", connectionID, models.ConflictStatusPending).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count conflicts: %w", result.Error)
	}
	return count, nil
}

// HasPendingForTransaction reports whether the row already has an open
// conflict, so repeated syncs don't queue duplicates for the same divergence.
func (r *ConflictRepository) HasPendingForTransaction(ctx context.Context, transactionID string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Conflict{}).
		Where("transaction_id = ? AND status = ?", transactionID, models.ConflictStatusPending).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to check pending conflict: %w", result.Error)
	}
	return count > 0, nil
}

// MarkResolved stamps the resolution outcome. Conditional on pending
// status: resolved and ignored are terminal, never re-opened.
func (r *ConflictRepository) MarkResolved(ctx context.Context, id, resolution, resolvedBy string) error {
	return r.finalize(ctx, id, models.ConflictStatusResolved, &resolution, resolvedBy)
}

// MarkIgnored closes the conflict without touching the underlying row.
func (r *ConflictRepository) MarkIgnored(ctx context.Context, id, resolvedBy string) error {
	return r.finalize(ctx, id, models.ConflictStatusIgnored, nil, resolvedBy)
}

func (r *ConflictRepository) finalize(ctx context.Context, id string, status models.ConflictStatus, resolution *string, resolvedBy string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.Conflict{}).
		Where("id = ? AND status = ?", id, models.ConflictStatusPending).
		Updates(map[string]interface{}{
			"status":      status,
			"resolution":  resolution,
			"resolved_by": resolvedBy,
			"resolved_at": now,
			"updated_at":  now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finalize conflict: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Either missing or already terminal; tell the caller which.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrConflictTerminal
	}
	return nil
}
