package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tallyfin/ledger-worker/internal/models"
)

type SyncRunRepository struct {
	db *gorm.DB
}

func NewSyncRunRepository(db *gorm.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Create opens a sync run in running state.
func (r *SyncRunRepository) Create(ctx context.Context, run models.SyncRun) error {
	if err := r.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	return nil
}

// Finish records the run outcome and counters.
func (r *SyncRunRepository) Finish(ctx context.Context, runID string, status models.SyncRunStatus, counts models.SyncRun, errMsg *string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.SyncRun{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"status":             status,
			"rows_pushed":        counts.RowsPushed,
			"rows_pulled":        counts.RowsPulled,
			"rows_skipped":       counts.RowsSkipped,
			"rows_updated":       counts.RowsUpdated,
			"conflicts_detected": counts.ConflictsDetected,
			"error_message":      errMsg,
			"finished_at":        now,
			"duration_ms":        gorm.Expr("EXTRACT(EPOCH FROM (? - started_at)) * 1000", now),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finish sync run: %w", result.Error)
	}
	return nil
}

// ListByConnection returns a connection's sync history, newest first.
func (r *SyncRunRepository) ListByConnection(ctx context.Context, connectionID string, limit int) ([]models.SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []models.SyncRun
	result := r.db.WithContext(ctx).
		Where("connection_id = ?", connectionID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", result.Error)
	}
	return runs, nil
}
