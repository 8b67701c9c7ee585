package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyfin/ledger-worker/internal/extraction"
	"github.com/tallyfin/ledger-worker/internal/fingerprint"
	"github.com/tallyfin/ledger-worker/internal/models"
	"github.com/tallyfin/ledger-worker/internal/repository"
)

func testRows() []extraction.Row {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	return []extraction.Row{
		{Description: "Coffee Shop", Amount: decimal.NewFromFloat(-4.50), Date: &date},
		{Description: "Grocery Store", Amount: decimal.NewFromFloat(-62.10), Date: &date},
		{Description: "Salary", Amount: decimal.NewFromInt(2500), Date: &date},
	}
}

func TestMergeInsertsNewRows(t *testing.T) {
	store := newMemTransactionStore()
	engine := NewMergeEngine(store, quietLogger())

	result, err := engine.Merge(context.Background(), "tenant-1", "user-1", nil, models.SourceUpload, Items(testRows()))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Inserted)
	assert.Equal(t, 0, result.Skipped)
	assert.Len(t, store.rows, 3)

	for _, tx := range store.rows {
		assert.Equal(t, 1, tx.SyncVersion)
		assert.Equal(t, models.ModifiedByLocal, tx.LastModifiedBy)
		assert.NotEmpty(t, tx.Fingerprint)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	store := newMemTransactionStore()
	engine := NewMergeEngine(store, quietLogger())
	ctx := context.Background()

	first, err := engine.Merge(ctx, "tenant-1", "user-1", nil, models.SourceUpload, Items(testRows()))
	require.NoError(t, err)
	require.Equal(t, 3, first.Inserted)

	second, err := engine.Merge(ctx, "tenant-1", "user-1", nil, models.SourceUpload, Items(testRows()))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 3, second.Skipped)
	assert.Len(t, store.rows, 3)
}

func TestMergeSkipsAcrossSources(t *testing.T) {
	// A pulled copy of a manually uploaded row must dedup: the fingerprint
	// ignores where the row came from.
	store := newMemTransactionStore()
	engine := NewMergeEngine(store, quietLogger())
	ctx := context.Background()

	rows := testRows()[:1]
	_, err := engine.Merge(ctx, "tenant-1", "user-1", nil, models.SourceUpload, Items(rows))
	require.NoError(t, err)

	sourceID := "sheet-1#5"
	result, err := engine.Merge(ctx, "tenant-1", "user-1", nil, models.SourceExternalSync,
		[]MergeItem{{Row: rows[0], SourceID: &sourceID}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 1, result.Skipped)
}

func TestMergeSeparatesOwners(t *testing.T) {
	store := newMemTransactionStore()
	engine := NewMergeEngine(store, quietLogger())
	ctx := context.Background()

	rows := testRows()[:1]
	_, err := engine.Merge(ctx, "tenant-1", "user-1", nil, models.SourceUpload, Items(rows))
	require.NoError(t, err)

	result, err := engine.Merge(ctx, "tenant-1", "user-2", nil, models.SourceUpload, Items(rows))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted, "the same row under a different owner is not a duplicate")
}

// racingTransactionStore loses one insert to a concurrent writer: the
// first Create hits the unique index after the winner's row lands.
type racingTransactionStore struct {
	*memTransactionStore
	winner models.Transaction
	raced  bool
}

func (r *racingTransactionStore) Create(ctx context.Context, tx models.Transaction) error {
	if !r.raced {
		r.raced = true
		if err := r.memTransactionStore.Create(ctx, r.winner); err != nil {
			return err
		}
		return repository.ErrDuplicateTransaction
	}
	return r.memTransactionStore.Create(ctx, tx)
}

func TestMergeOneTreatsInsertRaceAsSkip(t *testing.T) {
	row := testRows()[0]
	winner := models.Transaction{
		ID:          "tx-winner",
		TenantID:    "tenant-1",
		UserID:      "user-1",
		Description: row.Description,
		Amount:      row.Amount,
		Date:        row.Date,
		Fingerprint: fingerprint.Row(row.Description, row.Amount, row.Date),
	}
	store := &racingTransactionStore{memTransactionStore: newMemTransactionStore(), winner: winner}
	engine := NewMergeEngine(store, quietLogger())

	tx, inserted, err := engine.MergeOne(context.Background(), "tenant-1", "user-1", nil,
		models.SourceUpload, MergeItem{Row: row})
	require.NoError(t, err)
	assert.False(t, inserted, "losing the race is a skip, not a failure")
	require.NotNil(t, tx)
	assert.Equal(t, "tx-winner", tx.ID)
	assert.Len(t, store.rows, 1)
}

func TestMergeOneMarksExternalRows(t *testing.T) {
	store := newMemTransactionStore()
	engine := NewMergeEngine(store, quietLogger())

	tx, inserted, err := engine.MergeOne(context.Background(), "tenant-1", "user-1", nil,
		models.SourceExternalSync, MergeItem{Row: testRows()[0]})
	require.NoError(t, err)
	require.True(t, inserted)
	assert.Equal(t, models.ModifiedByExternal, tx.LastModifiedBy,
		"a pulled row must not look like a pending local edit")
	assert.Equal(t, models.SourceExternalSync, tx.SourceType)
}
