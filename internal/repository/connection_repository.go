package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tallyfin/ledger-worker/internal/models"
)

var ErrConnectionNotFound = errors.New("connection not found")

type ConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// GetByID retrieves a connection by ID
func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*models.SheetConnection, error) {
	var conn models.SheetConnection
	result := r.db.WithContext(ctx).First(&conn, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", result.Error)
	}
	return &conn, nil
}

// ListByTenant lists a tenant's connections.
func (r *ConnectionRepository) ListByTenant(ctx context.Context, tenantID string) ([]models.SheetConnection, error) {
	var conns []models.SheetConnection
	result := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&conns)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list connections: %w", result.Error)
	}
	return conns, nil
}

// ListAutoSync returns connections with scheduled syncing enabled that are
// not currently mid-sync.
func (r *ConnectionRepository) ListAutoSync(ctx context.Context, limit int) ([]models.SheetConnection, error) {
	var conns []models.SheetConnection
	result := r.db.WithContext(ctx).
		Where("auto_sync = ? AND sync_status != ?", true, models.SyncStatusSyncing).
		Order("last_sync_at ASC NULLS FIRST").
		Limit(limit).
		Find(&conns)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list auto-sync connections: %w", result.Error)
	}
	return conns, nil
}

// ClaimSyncing flips sync_status to syncing iff no sync is running. The
// conditional update is the whole concurrency guard: the process may be
// stateless, so no in-memory lock can be relied on across invocations.
func (r *ConnectionRepository) ClaimSyncing(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.SheetConnection{}).
		Where("id = ? AND sync_status != ?", id, models.SyncStatusSyncing).
		Updates(map[string]interface{}{
			"sync_status": models.SyncStatusSyncing,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim connection: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ReleaseSync records the outcome of a sync attempt and always leaves
// sync_status in a recoverable state. Every sync path must reach this,
// success or failure, or the syncing flag would wedge the connection.
func (r *ConnectionRepository) ReleaseSync(ctx context.Context, id string, direction models.SyncDirection, success bool, syncErr *string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"last_sync_at":        now,
		"last_sync_direction": direction,
		"last_sync_error":     syncErr,
		"updated_at":          now,
	}
	if success {
		updates["sync_status"] = models.SyncStatusIdle
		updates["last_success_sync_at"] = now
	} else {
		updates["sync_status"] = models.SyncStatusError
	}

	result := r.db.WithContext(ctx).Model(&models.SheetConnection{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to release connection: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConnectionNotFound
	}
	return nil
}
