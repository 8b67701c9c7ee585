package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tallyfin/ledger-worker/internal/models"
)

// ConflictService owns the durable conflict queue: listing pending
// conflicts and applying a resolution choice. Conflict rows are never
// deleted; resolving or ignoring finalizes them in place.
type ConflictService struct {
	conflicts    ConflictStore
	transactions TransactionStore
	log          *logrus.Logger
}

func NewConflictService(conflicts ConflictStore, transactions TransactionStore, log *logrus.Logger) *ConflictService {
	return &ConflictService{conflicts: conflicts, transactions: transactions, log: log}
}

func (s *ConflictService) ListPending(ctx context.Context, tenantID string) ([]models.Conflict, error) {
	return s.conflicts.ListPending(ctx, tenantID)
}

// Get loads a single conflict so callers can check ownership before
// acting on it.
func (s *ConflictService) Get(ctx context.Context, conflictID string) (*models.Conflict, error) {
	return s.conflicts.GetByID(ctx, conflictID)
}

// CountPending reports how many unresolved conflicts a connection has
// parked, so callers can surface the count next to the connection.
func (s *ConflictService) CountPending(ctx context.Context, connectionID string) (int64, error) {
	return s.conflicts.CountPendingForConnection(ctx, connectionID)
}

// Resolve applies one of the three resolution choices:
//
//   - "db" keeps the stored row and marks it locally modified, so the next
//     push overwrites the external side with it.
//   - "external" overwrites the stored row from the conflict's external
//     snapshot taken at detection time, not from a fresh read,
//     so the user resolves exactly what they were shown.
//   - "manual" applies caller-supplied field values as a local edit.
//
// The conflict is finalized only after the transaction write succeeds.
func (s *ConflictService) Resolve(
	ctx context.Context,
	conflictID, choice, resolvedBy string,
	manualValues map[string]interface{},
) error {
	conflict, err := s.conflicts.GetByID(ctx, conflictID)
	if err != nil {
		return fmt.Errorf("failed to load conflict: %w", err)
	}

	if choice == "merge" {
		choice = models.ResolutionManual
	}

	switch choice {
	case models.ResolutionKeepDB:
		// An empty manual update still bumps sync_version and stamps the
		// row locally modified, which is all "keep ours" needs.
		if err := s.transactions.ApplyManual(ctx, conflict.TransactionID, map[string]interface{}{}); err != nil {
			return fmt.Errorf("failed to mark transaction for re-push: %w", err)
		}
	case models.ResolutionKeepExternal:
		updates, err := updatesFromSnapshot(conflict.ExternalSnapshot)
		if err != nil {
			return fmt.Errorf("invalid external snapshot: %w", err)
		}
		if err := s.transactions.ApplyExternal(ctx, conflict.TransactionID, updates); err != nil {
			return fmt.Errorf("failed to apply external snapshot: %w", err)
		}
	case models.ResolutionManual:
		if len(manualValues) == 0 {
			return fmt.Errorf("manual resolution requires field values")
		}
		if err := s.transactions.ApplyManual(ctx, conflict.TransactionID, manualValues); err != nil {
			return fmt.Errorf("failed to apply manual values: %w", err)
		}
	default:
		return fmt.Errorf("unknown resolution choice %q", choice)
	}

	if err := s.conflicts.MarkResolved(ctx, conflictID, choice, resolvedBy); err != nil {
		return fmt.Errorf("failed to finalize conflict: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"conflict_id": conflictID,
		"choice":      choice,
		"resolved_by": resolvedBy,
	}).Info("conflict resolved")
	return nil
}

// Ignore finalizes a conflict without touching either side.
func (s *ConflictService) Ignore(ctx context.Context, conflictID, resolvedBy string) error {
	if err := s.conflicts.MarkIgnored(ctx, conflictID, resolvedBy); err != nil {
		return fmt.Errorf("failed to ignore conflict: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"conflict_id": conflictID,
		"resolved_by": resolvedBy,
	}).Info("conflict ignored")
	return nil
}

// updatesFromSnapshot converts a stored external snapshot back into a
// transaction update map. Snapshots survive a JSONB round trip, so values
// arrive as generic JSON types.
func updatesFromSnapshot(snap models.JSONB) (map[string]interface{}, error) {
	updates := map[string]interface{}{}

	desc, ok := snap["description"].(string)
	if !ok {
		return nil, fmt.Errorf("snapshot missing description")
	}
	updates["description"] = desc

	amountStr, ok := snap["amount"].(string)
	if !ok {
		return nil, fmt.Errorf("snapshot missing amount")
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("snapshot amount %q: %w", amountStr, err)
	}
	updates["amount"] = amount

	if dateStr, ok := snap["date"].(string); ok {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("snapshot date %q: %w", dateStr, err)
		}
		updates["date"] = date
	} else {
		updates["date"] = nil
	}

	if category, ok := snap["category"].(string); ok {
		updates["category"] = category
	} else {
		updates["category"] = nil
	}
	if subcategory, ok := snap["subcategory"].(string); ok {
		updates["subcategory"] = subcategory
	} else {
		updates["subcategory"] = nil
	}
	if confirmed, ok := snap["confirmed"].(bool); ok {
		updates["confirmed"] = confirmed
	}

	return updates, nil
}
