package sheets

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RowData is one transaction row as laid out in the connected sheet.
// Column A carries the transaction id written by push so pull can match
// rows back to storage. EditedAt (column I) is maintained by the onEdit
// hook installed with the connection; the Sheets API does not fire simple
// triggers, so sync-originated writes never stamp it; only organic human
// edits do.
type RowData struct {
	TransactionID string
	Date          *time.Time
	Description   string
	Amount        decimal.Decimal
	Category      string
	Subcategory   string
	Confirmed     bool
	SyncVersion   int
	EditedAt      *time.Time
	RowIndex      int // 1-based row in the sheet, 0 for rows not yet written
}

// Client is the row-level contract the sync engine needs from the external
// spreadsheet system.
type Client interface {
	ReadRows(ctx context.Context, spreadsheetID, sheetName string) ([]RowData, error)
	AppendRows(ctx context.Context, spreadsheetID, sheetName string, rows []RowData) error
	UpdateRow(ctx context.Context, spreadsheetID, sheetName string, row RowData) error
	ReplaceAllRows(ctx context.Context, spreadsheetID, sheetName string, rows []RowData) error
}
