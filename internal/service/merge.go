package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tallyfin/ledger-worker/internal/extraction"
	"github.com/tallyfin/ledger-worker/internal/fingerprint"
	"github.com/tallyfin/ledger-worker/internal/models"
	"github.com/tallyfin/ledger-worker/internal/repository"
)

// MergeItem is one incoming row plus its optional external identity, set
// when the row came from a pull-sync.
type MergeItem struct {
	Row      extraction.Row
	SourceID *string
}

type MergeResult struct {
	Inserted int
	Skipped  int
}

// MergeEngine reconciles incoming rows against existing storage. It is the
// single dedup mechanism for both ingestion paths: uploads and pull-syncs
// go through the same fingerprint, so a re-uploaded statement and a pulled
// copy of a manual upload both skip instead of duplicating.
type MergeEngine struct {
	transactions TransactionStore
	log          *logrus.Logger
}

func NewMergeEngine(transactions TransactionStore, log *logrus.Logger) *MergeEngine {
	return &MergeEngine{transactions: transactions, log: log}
}

// MergeOne applies a single incoming row. It returns the stored row (the
// freshly created one, or the existing fingerprint match) and whether an
// insert happened.
func (m *MergeEngine) MergeOne(
	ctx context.Context,
	tenantID, userID string,
	jobID *string,
	source models.TransactionSource,
	item MergeItem,
) (*models.Transaction, bool, error) {
	fp := fingerprint.Row(item.Row.Description, item.Row.Amount, item.Row.Date)

	existing, err := m.transactions.FindByFingerprint(ctx, tenantID, userID, fp)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check fingerprint: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	modifiedBy := models.ModifiedByLocal
	if source == models.SourceExternalSync {
		modifiedBy = models.ModifiedByExternal
	}

	now := time.Now()
	tx := models.Transaction{
		ID:             uuid.New().String(),
		UserID:         userID,
		TenantID:       tenantID,
		JobID:          jobID,
		Description:    item.Row.Description,
		Amount:         item.Row.Amount,
		Date:           item.Row.Date,
		Category:       item.Row.Category,
		Subcategory:    item.Row.Subcategory,
		Confidence:     item.Row.Confidence,
		SourceType:     source,
		SourceID:       item.SourceID,
		Fingerprint:    fp,
		SyncVersion:    1,
		LastModifiedBy: modifiedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := m.transactions.Create(ctx, tx); err != nil {
		if errors.Is(err, repository.ErrDuplicateTransaction) {
			// Lost the insert race to a concurrent merge of the same row.
			// The winner's copy is the stored one; count a skip.
			winner, findErr := m.transactions.FindByFingerprint(ctx, tenantID, userID, fp)
			if findErr == nil && winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return &tx, true, nil
}

// Merge applies incoming rows for one owner. Fingerprint-duplicate rows
// are counted and skipped, never an error.
func (m *MergeEngine) Merge(
	ctx context.Context,
	tenantID, userID string,
	jobID *string,
	source models.TransactionSource,
	items []MergeItem,
) (MergeResult, error) {
	var result MergeResult

	for _, item := range items {
		_, inserted, err := m.MergeOne(ctx, tenantID, userID, jobID, source, item)
		if err != nil {
			return result, err
		}
		if inserted {
			result.Inserted++
		} else {
			result.Skipped++
		}
	}

	m.log.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"user_id":   userID,
		"inserted":  result.Inserted,
		"skipped":   result.Skipped,
		"source":    source,
	}).Info("merge completed")

	return result, nil
}

// Items adapts plain extraction rows (no external identity) for Merge.
func Items(rows []extraction.Row) []MergeItem {
	items := make([]MergeItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, MergeItem{Row: row})
	}
	return items
}
