package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/tallyfin/ledger-worker/internal/credentials"
	"github.com/tallyfin/ledger-worker/internal/extraction"
	"github.com/tallyfin/ledger-worker/internal/models"
	"github.com/tallyfin/ledger-worker/internal/sheets"
)

// retryBaseDelay seeds the exponential backoff for transient sheet API
// failures.
const retryBaseDelay = 500 * time.Millisecond

// SheetClientFactory builds a sheet client bound to resolved credentials.
// Injected so tests can substitute a fake without any Google plumbing.
type SheetClientFactory func(ts oauth2.TokenSource) sheets.Client

// SyncEngine drives push, pull and bidirectional synchronization between
// stored transactions and a connected external spreadsheet.
//
// Concurrency: the connection's sync_status is the mutex. Sync claims it
// with a conditional idle→syncing update and always releases it, so two
// invocations can never write the same sheet at once even across process
// boundaries.
type SyncEngine struct {
	connections  ConnectionStore
	transactions TransactionStore
	conflicts    ConflictStore
	runs         SyncRunStore
	resolver     CredentialResolver
	newClient    SheetClientFactory
	merge        *MergeEngine
	maxRetries   int
	log          *logrus.Logger
}

func NewSyncEngine(
	connections ConnectionStore,
	transactions TransactionStore,
	conflicts ConflictStore,
	runs SyncRunStore,
	resolver CredentialResolver,
	newClient SheetClientFactory,
	merge *MergeEngine,
	maxRetries int,
	log *logrus.Logger,
) *SyncEngine {
	return &SyncEngine{
		connections:  connections,
		transactions: transactions,
		conflicts:    conflicts,
		runs:         runs,
		resolver:     resolver,
		newClient:    newClient,
		merge:        merge,
		maxRetries:   maxRetries,
		log:          log,
	}
}

// Sync runs one synchronization pass for a connection and records it as a
// sync run. Returns ErrSyncInProgress when another pass holds the claim.
//
// A pass that detects conflicts but hits no errors still succeeds: the
// conflicted rows are parked in the conflict queue and everything else
// synced, so the success baseline advances.
func (e *SyncEngine) Sync(
	ctx context.Context,
	connectionID string,
	direction models.SyncDirection,
	fullRefresh bool,
) (*models.SyncRun, error) {
	conn, err := e.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}
	if direction == "" {
		direction = models.DirectionBidirectional
	}

	claimed, err := e.connections.ClaimSyncing(ctx, conn.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim connection: %w", err)
	}
	if !claimed {
		return nil, ErrSyncInProgress
	}

	run := models.SyncRun{
		ID:           uuid.New().String(),
		ConnectionID: conn.ID,
		TenantID:     conn.TenantID,
		Direction:    direction,
		Status:       models.SyncRunStatusRunning,
		StartedAt:    time.Now(),
	}
	if err := e.runs.Create(ctx, run); err != nil {
		// Release the claim before bailing or the connection stays stuck.
		relErr := e.connections.ReleaseSync(ctx, conn.ID, direction, false, strPtr(err.Error()))
		if relErr != nil {
			e.log.WithField("connection_id", conn.ID).WithError(relErr).Error("failed to release sync claim")
		}
		return nil, fmt.Errorf("failed to record sync run: %w", err)
	}

	syncErr := e.execute(ctx, conn, direction, fullRefresh, &run)

	var errMsg *string
	status := models.SyncRunStatusSuccess
	if syncErr != nil {
		status = models.SyncRunStatusFailed
		errMsg = strPtr(syncErr.Error())
	} else if run.ConflictsDetected > 0 {
		status = models.SyncRunStatusPartial
	}
	run.Status = status

	if err := e.connections.ReleaseSync(ctx, conn.ID, direction, syncErr == nil, errMsg); err != nil {
		e.log.WithField("connection_id", conn.ID).WithError(err).Error("failed to release sync claim")
	}
	if err := e.runs.Finish(ctx, run.ID, status, run, errMsg); err != nil {
		e.log.WithField("run_id", run.ID).WithError(err).Error("failed to finalize sync run")
	}

	e.log.WithFields(logrus.Fields{
		"connection_id": conn.ID,
		"run_id":        run.ID,
		"direction":     direction,
		"status":        status,
		"pushed":        run.RowsPushed,
		"pulled":        run.RowsPulled,
		"updated":       run.RowsUpdated,
		"skipped":       run.RowsSkipped,
		"conflicts":     run.ConflictsDetected,
	}).Info("sync finished")

	if syncErr != nil {
		return &run, syncErr
	}
	return &run, nil
}

func (e *SyncEngine) execute(
	ctx context.Context,
	conn *models.SheetConnection,
	direction models.SyncDirection,
	fullRefresh bool,
	run *models.SyncRun,
) error {
	owner := ""
	if conn.UserID != nil {
		owner = *conn.UserID
	}

	res, err := e.resolver.Resolve(ctx, conn.TenantID, owner)
	if err != nil {
		return fmt.Errorf("credential resolution failed: %w", err)
	}
	client := e.newClient(res.TokenSource)

	// Read both sides before writing anything. Choices are made against a
	// consistent picture, not one mutated mid-pass.
	var extRows []sheets.RowData
	err = e.withRetry(ctx, "read sheet", func() error {
		var readErr error
		extRows, readErr = client.ReadRows(ctx, conn.SpreadsheetID, conn.SheetName)
		return classifySheetError(readErr)
	})
	if err != nil {
		return fmt.Errorf("failed to read external sheet: %w", err)
	}

	locals, err := e.transactions.GetByOwner(ctx, conn.TenantID, owner)
	if err != nil {
		return fmt.Errorf("failed to load transactions: %w", err)
	}

	baseline := conn.LastSuccessSyncAt

	localByID := make(map[string]models.Transaction, len(locals))
	for _, tx := range locals {
		localByID[tx.ID] = tx
	}

	// Rows with a known transaction id pair up with storage; everything
	// else is new on the external side.
	extByID := make(map[string]sheets.RowData)
	var extNew []sheets.RowData
	for _, row := range extRows {
		if row.TransactionID != "" {
			if _, ok := localByID[row.TransactionID]; ok {
				extByID[row.TransactionID] = row
				continue
			}
		}
		extNew = append(extNew, row)
	}

	pull := direction == models.DirectionPull || direction == models.DirectionBidirectional
	push := direction == models.DirectionPush || direction == models.DirectionBidirectional

	if pull {
		if err := e.pullNewRows(ctx, conn, client, owner, extNew, run); err != nil {
			return err
		}
	}

	var appendBatch []sheets.RowData
	for _, tx := range locals {
		row, matched := extByID[tx.ID]
		if !matched {
			if push && !fullRefresh {
				appendBatch = append(appendBatch, rowFromTransaction(tx))
			}
			continue
		}

		switch reconcileRow(tx, row, baseline) {
		case actionConflict:
			// Directional passes park double-edited rows too: a push-only
			// sync must not overwrite an external edit, and skipping it
			// silently would hide the divergence.
			if err := e.recordConflict(ctx, conn, tx, row, run); err != nil {
				return err
			}
		case actionPush:
			if !push {
				run.RowsSkipped++
				continue
			}
			if fullRefresh {
				continue // the rewrite below carries it
			}
			out := rowFromTransaction(tx)
			out.RowIndex = row.RowIndex
			err := e.withRetry(ctx, "update row", func() error {
				return classifySheetError(client.UpdateRow(ctx, conn.SpreadsheetID, conn.SheetName, out))
			})
			if err != nil {
				return fmt.Errorf("failed to push row update: %w", err)
			}
			run.RowsUpdated++
		case actionPull:
			if !pull {
				run.RowsSkipped++
				continue
			}
			if err := e.transactions.ApplyExternal(ctx, tx.ID, updatesFromRow(row)); err != nil {
				return fmt.Errorf("failed to apply external edit: %w", err)
			}
			run.RowsPulled++
		default:
			run.RowsSkipped++
		}
	}

	if push && fullRefresh {
		// Rebuild the sheet wholesale from storage. Pull and conflict
		// detection already ran, so nothing external is silently lost.
		// Re-read to pick up the rows the pull pass just wrote.
		refreshed, err := e.transactions.GetByOwner(ctx, conn.TenantID, owner)
		if err != nil {
			return fmt.Errorf("failed to reload transactions: %w", err)
		}
		rows := make([]sheets.RowData, 0, len(refreshed))
		for _, tx := range refreshed {
			rows = append(rows, rowFromTransaction(tx))
		}
		err = e.withRetry(ctx, "replace sheet", func() error {
			return classifySheetError(client.ReplaceAllRows(ctx, conn.SpreadsheetID, conn.SheetName, rows))
		})
		if err != nil {
			return fmt.Errorf("failed to rewrite sheet: %w", err)
		}
		run.RowsPushed += len(rows)
		return nil
	}

	if push && len(appendBatch) > 0 {
		err := e.withRetry(ctx, "append rows", func() error {
			return classifySheetError(client.AppendRows(ctx, conn.SpreadsheetID, conn.SheetName, appendBatch))
		})
		if err != nil {
			return fmt.Errorf("failed to append rows: %w", err)
		}
		run.RowsPushed += len(appendBatch)
	}

	return nil
}

// pullNewRows merges external-only rows into storage via the shared
// fingerprint path, then writes the stored id back into column A so future
// passes match the row instead of re-importing it.
func (e *SyncEngine) pullNewRows(
	ctx context.Context,
	conn *models.SheetConnection,
	client sheets.Client,
	owner string,
	extNew []sheets.RowData,
	run *models.SyncRun,
) error {
	for _, row := range extNew {
		sourceID := fmt.Sprintf("%s#%d", conn.SpreadsheetID, row.RowIndex)
		item := MergeItem{
			Row: extraction.Row{
				Description: row.Description,
				Amount:      row.Amount,
				Date:        row.Date,
				Category:    optStr(row.Category),
				Subcategory: optStr(row.Subcategory),
				Confidence:  1.0,
			},
			SourceID: &sourceID,
		}

		tx, inserted, err := e.merge.MergeOne(ctx, conn.TenantID, owner, nil, models.SourceExternalSync, item)
		if err != nil {
			return fmt.Errorf("failed to merge external row %d: %w", row.RowIndex, err)
		}
		if inserted {
			run.RowsPulled++
		} else {
			run.RowsSkipped++
		}

		if row.RowIndex > 0 && row.TransactionID != tx.ID {
			back := row
			back.TransactionID = tx.ID
			err := e.withRetry(ctx, "write back id", func() error {
				return classifySheetError(client.UpdateRow(ctx, conn.SpreadsheetID, conn.SheetName, back))
			})
			if err != nil {
				return fmt.Errorf("failed to write back row id: %w", err)
			}
		}
	}
	return nil
}

func (e *SyncEngine) recordConflict(
	ctx context.Context,
	conn *models.SheetConnection,
	tx models.Transaction,
	row sheets.RowData,
	run *models.SyncRun,
) error {
	pending, err := e.conflicts.HasPendingForTransaction(ctx, tx.ID)
	if err != nil {
		return fmt.Errorf("failed to check pending conflicts: %w", err)
	}
	if pending {
		run.RowsSkipped++
		return nil
	}

	conflict := models.Conflict{
		ID:               uuid.New().String(),
		TransactionID:    tx.ID,
		ConnectionID:     conn.ID,
		TenantID:         conn.TenantID,
		LocalSnapshot:    localSnapshot(tx),
		ExternalSnapshot: externalSnapshot(row),
		Status:           models.ConflictStatusPending,
	}
	if err := e.conflicts.Create(ctx, conflict); err != nil {
		return fmt.Errorf("failed to record conflict: %w", err)
	}
	run.ConflictsDetected++

	e.log.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"connection_id":  conn.ID,
		"row_index":      row.RowIndex,
	}).Warn("conflict detected, both sides changed since last sync")
	return nil
}

// withRetry retries fn with bounded exponential backoff, but only for
// failures IsRetryable classifies as transient.
func (e *SyncEngine) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << uint(attempt-1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		e.log.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt + 1,
		}).WithError(err).Warn("transient sheet failure, retrying")
	}
	return err
}

type rowAction int

const (
	actionNone rowAction = iota
	actionPush
	actionPull
	actionConflict
)

// reconcileRow decides what to do with one matched (stored, external) row
// pair given the last successful sync time. A nil baseline means no pass
// has ever succeeded, so any evidence of an edit on either side counts.
func reconcileRow(tx models.Transaction, row sheets.RowData, baseline *time.Time) rowAction {
	localChanged := tx.LastModifiedBy == models.ModifiedByLocal &&
		(baseline == nil || tx.UpdatedAt.After(*baseline))
	extChanged := row.EditedAt != nil &&
		(baseline == nil || row.EditedAt.After(*baseline))

	switch {
	case localChanged && extChanged:
		return actionConflict
	case localChanged:
		return actionPush
	case extChanged:
		return actionPull
	}
	return actionNone
}

func rowFromTransaction(tx models.Transaction) sheets.RowData {
	row := sheets.RowData{
		TransactionID: tx.ID,
		Date:          tx.Date,
		Description:   tx.Description,
		Amount:        tx.Amount,
		Confirmed:     tx.Confirmed,
		SyncVersion:   tx.SyncVersion,
	}
	if tx.Category != nil {
		row.Category = *tx.Category
	}
	if tx.Subcategory != nil {
		row.Subcategory = *tx.Subcategory
	}
	return row
}

func updatesFromRow(row sheets.RowData) map[string]interface{} {
	return map[string]interface{}{
		"description": row.Description,
		"amount":      row.Amount,
		"date":        row.Date,
		"category":    optStr(row.Category),
		"subcategory": optStr(row.Subcategory),
		"confirmed":   row.Confirmed,
	}
}

func localSnapshot(tx models.Transaction) models.JSONB {
	snap := models.JSONB{
		"description":  tx.Description,
		"amount":       tx.Amount.StringFixed(2),
		"confirmed":    tx.Confirmed,
		"sync_version": tx.SyncVersion,
		"updated_at":   tx.UpdatedAt.Format(time.RFC3339),
	}
	if tx.Date != nil {
		snap["date"] = tx.Date.Format("2006-01-02")
	}
	if tx.Category != nil {
		snap["category"] = *tx.Category
	}
	if tx.Subcategory != nil {
		snap["subcategory"] = *tx.Subcategory
	}
	return snap
}

func externalSnapshot(row sheets.RowData) models.JSONB {
	snap := models.JSONB{
		"description":  row.Description,
		"amount":       row.Amount.StringFixed(2),
		"confirmed":    row.Confirmed,
		"sync_version": row.SyncVersion,
		"row_index":    row.RowIndex,
	}
	if row.Date != nil {
		snap["date"] = row.Date.Format("2006-01-02")
	}
	if row.EditedAt != nil {
		snap["edited_at"] = row.EditedAt.Format(time.RFC3339)
	}
	if row.Category != "" {
		snap["category"] = row.Category
	}
	if row.Subcategory != "" {
		snap["subcategory"] = row.Subcategory
	}
	return snap
}

// classifySheetError maps Google API failures onto the engine's error
// taxonomy so retry and failure handling see stable sentinels.
func classifySheetError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case sheets.IsAuthError(err):
		return fmt.Errorf("%w: %v", credentials.ErrReconnectRequired, err)
	case sheets.IsPermissionError(err):
		return fmt.Errorf("%w: %v", ErrExternalPermission, err)
	}
	return err
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strPtr(s string) *string { return &s }
