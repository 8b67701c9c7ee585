// Command row-quality-cleanup scans stored transactions for rows that are
// statement furniture rather than real activity (balance lines, totals,
// empty descriptions) and removes them. Dry-run by default; pass -apply to
// delete.
package main

import (
	"context"
	"flag"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/tallyfin/ledger-worker/internal/config"
	"github.com/tallyfin/ledger-worker/internal/database"
	"github.com/tallyfin/ledger-worker/internal/models"
)

// junkPhrases mark rows that spreadsheet extraction sometimes lets through
// when a statement has no clean header row.
var junkPhrases = []string{
	"opening balance",
	"closing balance",
	"balance brought forward",
	"balance carried forward",
	"statement total",
	"subtotal",
	"page total",
}

func main() {
	var (
		apply    = flag.Bool("apply", false, "delete the flagged rows instead of just reporting them")
		tenantID = flag.String("tenant", "", "limit the scan to one tenant")
	)
	flag.Parse()

	log := config.GetLogger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration error")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := run(ctx, db, log, *tenantID, *apply); err != nil {
		log.WithError(err).Fatal("cleanup failed")
	}
}

func run(ctx context.Context, db *gorm.DB, log *logrus.Logger, tenantID string, apply bool) error {
	q := db.WithContext(ctx).Model(&models.Transaction{}).Where("confirmed = ?", false)
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}

	var txs []models.Transaction
	if err := q.Find(&txs).Error; err != nil {
		return err
	}

	var flagged []string
	for _, tx := range txs {
		if isJunkRow(tx) {
			flagged = append(flagged, tx.ID)
			log.WithFields(logrus.Fields{
				"transaction_id": tx.ID,
				"tenant_id":      tx.TenantID,
				"description":    tx.Description,
				"amount":         tx.Amount.StringFixed(2),
			}).Info("flagged low-quality row")
		}
	}

	log.WithFields(logrus.Fields{
		"scanned": len(txs),
		"flagged": len(flagged),
		"apply":   apply,
	}).Info("scan complete")

	if !apply || len(flagged) == 0 {
		return nil
	}

	result := db.WithContext(ctx).Where("id IN ?", flagged).Delete(&models.Transaction{})
	if result.Error != nil {
		return result.Error
	}
	log.WithField("deleted", result.RowsAffected).Info("flagged rows deleted")
	return nil
}

// isJunkRow decides whether a row looks like statement furniture. Confirmed
// rows are never scanned, so a human decision always sticks.
func isJunkRow(tx models.Transaction) bool {
	desc := strings.ToLower(strings.TrimSpace(tx.Description))
	if desc == "" {
		return true
	}
	if tx.Amount.IsZero() && tx.Date == nil {
		return true
	}
	for _, phrase := range junkPhrases {
		if strings.Contains(desc, phrase) {
			return true
		}
	}
	return false
}
