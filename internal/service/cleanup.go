package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Bulk cleanup categories.
const (
	CleanupFailed          = "failed"
	CleanupEmpty           = "empty"
	CleanupDuplicates      = "duplicates"
	CleanupAllExceptLatest = "all_except_latest"
)

// CleanupService removes stale jobs in bulk for one owner. Deleting a job
// cascades to the transactions it imported.
type CleanupService struct {
	jobs JobStore
	log  *logrus.Logger
}

func NewCleanupService(jobs JobStore, log *logrus.Logger) *CleanupService {
	return &CleanupService{jobs: jobs, log: log}
}

func (s *CleanupService) Cleanup(ctx context.Context, tenantID, userID, category string) (int64, error) {
	var (
		deleted int64
		err     error
	)
	switch category {
	case CleanupFailed:
		deleted, err = s.jobs.DeleteFailed(ctx, tenantID, userID)
	case CleanupEmpty:
		deleted, err = s.jobs.DeleteEmpty(ctx, tenantID, userID)
	case CleanupDuplicates:
		deleted, err = s.jobs.DeleteDuplicates(ctx, tenantID, userID)
	case CleanupAllExceptLatest:
		deleted, err = s.jobs.DeleteAllExceptLatest(ctx, tenantID, userID)
	default:
		return 0, fmt.Errorf("unknown cleanup category %q", category)
	}
	if err != nil {
		return 0, fmt.Errorf("cleanup %s failed: %w", category, err)
	}

	s.log.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"user_id":   userID,
		"category":  category,
		"deleted":   deleted,
	}).Info("bulk cleanup completed")
	return deleted, nil
}
