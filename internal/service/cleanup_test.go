package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupDispatchesByCategory(t *testing.T) {
	calls := map[string]int{}
	jobs := &mockJobStore{
		deleteFailedFunc: func(_ context.Context, _, _ string) (int64, error) {
			calls["failed"]++
			return 2, nil
		},
		deleteEmptyFunc: func(_ context.Context, _, _ string) (int64, error) {
			calls["empty"]++
			return 1, nil
		},
		deleteDuplicatesFunc: func(_ context.Context, _, _ string) (int64, error) {
			calls["duplicates"]++
			return 3, nil
		},
		deleteAllExceptLatestFunc: func(_ context.Context, _, _ string) (int64, error) {
			calls["all_except_latest"]++
			return 7, nil
		},
	}
	svc := NewCleanupService(jobs, quietLogger())
	ctx := context.Background()

	for category, want := range map[string]int64{
		CleanupFailed:          2,
		CleanupEmpty:           1,
		CleanupDuplicates:      3,
		CleanupAllExceptLatest: 7,
	} {
		deleted, err := svc.Cleanup(ctx, "tenant-1", "user-1", category)
		require.NoError(t, err)
		assert.Equal(t, want, deleted, category)
	}
	assert.Len(t, calls, 4)
}

func TestCleanupRejectsUnknownCategory(t *testing.T) {
	svc := NewCleanupService(&mockJobStore{}, quietLogger())
	_, err := svc.Cleanup(context.Background(), "tenant-1", "user-1", "everything")
	require.Error(t, err)
}
