package sheets

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	gsheets "google.golang.org/api/sheets/v4"
	"google.golang.org/api/option"
)

var headerRow = []interface{}{"ID", "Date", "Description", "Amount", "Category", "Subcategory", "Confirmed", "Version", "Edited At"}

const (
	dataRange   = "A2:I"
	dateLayout  = "2006-01-02"
	stampLayout = time.RFC3339
)

// GoogleClient talks to the Google Sheets API with whatever token source
// the credential resolver produced.
type GoogleClient struct {
	tokenSource oauth2.TokenSource
}

func NewGoogleClient(ts oauth2.TokenSource) *GoogleClient {
	return &GoogleClient{tokenSource: ts}
}

func (c *GoogleClient) service(ctx context.Context) (*gsheets.Service, error) {
	svc, err := gsheets.NewService(ctx, option.WithTokenSource(c.tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return svc, nil
}

// ReadRows reads every data row below the header.
func (c *GoogleClient) ReadRows(ctx context.Context, spreadsheetID, sheetName string) ([]RowData, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Spreadsheets.Values.
		Get(spreadsheetID, fmt.Sprintf("%s!%s", sheetName, dataRange)).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}

	rows := make([]RowData, 0, len(resp.Values))
	for i, raw := range resp.Values {
		row, ok := decodeRow(raw, i+2)
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// AppendRows adds rows at the bottom of the sheet.
func (c *GoogleClient) AppendRows(ctx context.Context, spreadsheetID, sheetName string, rows []RowData) error {
	if len(rows) == 0 {
		return nil
	}
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}

	values := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		values = append(values, encodeRow(row))
	}

	_, err = svc.Spreadsheets.Values.
		Append(spreadsheetID, fmt.Sprintf("%s!%s", sheetName, dataRange), &gsheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append rows: %w", err)
	}
	return nil
}

// UpdateRow rewrites one existing row in place.
func (c *GoogleClient) UpdateRow(ctx context.Context, spreadsheetID, sheetName string, row RowData) error {
	if row.RowIndex < 2 {
		return errors.New("row index must point below the header")
	}
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}

	rangeRef := fmt.Sprintf("%s!A%d:I%d", sheetName, row.RowIndex, row.RowIndex)
	_, err = svc.Spreadsheets.Values.
		Update(spreadsheetID, rangeRef, &gsheets.ValueRange{Values: [][]interface{}{encodeRow(row)}}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update row %d: %w", row.RowIndex, err)
	}
	return nil
}

// ReplaceAllRows clears the data region and rewrites it, header included.
// Used by full-refresh pushes for consistency repair.
func (c *GoogleClient) ReplaceAllRows(ctx context.Context, spreadsheetID, sheetName string, rows []RowData) error {
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}

	_, err = svc.Spreadsheets.Values.
		Clear(spreadsheetID, fmt.Sprintf("%s!A:I", sheetName), &gsheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear sheet: %w", err)
	}

	values := [][]interface{}{headerRow}
	for _, row := range rows {
		values = append(values, encodeRow(row))
	}

	_, err = svc.Spreadsheets.Values.
		Update(spreadsheetID, fmt.Sprintf("%s!A1", sheetName), &gsheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to rewrite sheet: %w", err)
	}
	return nil
}

func encodeRow(row RowData) []interface{} {
	date := ""
	if row.Date != nil {
		date = row.Date.Format(dateLayout)
	}
	edited := ""
	if row.EditedAt != nil {
		edited = row.EditedAt.Format(stampLayout)
	}
	return []interface{}{
		row.TransactionID,
		date,
		row.Description,
		row.Amount.StringFixed(2),
		row.Category,
		row.Subcategory,
		strconv.FormatBool(row.Confirmed),
		strconv.Itoa(row.SyncVersion),
		edited,
	}
}

func decodeRow(raw []interface{}, rowIndex int) (RowData, bool) {
	cell := func(i int) string {
		if i >= len(raw) {
			return ""
		}
		s, _ := raw[i].(string)
		return s
	}

	description := cell(2)
	if description == "" && cell(0) == "" {
		return RowData{}, false
	}

	amount, err := decimal.NewFromString(cell(3))
	if err != nil {
		amount = decimal.Zero
	}

	row := RowData{
		TransactionID: cell(0),
		Description:   description,
		Amount:        amount,
		Category:      cell(4),
		Subcategory:   cell(5),
		Confirmed:     cell(6) == "true" || cell(6) == "TRUE",
		RowIndex:      rowIndex,
	}

	if v := cell(1); v != "" {
		if t, err := time.Parse(dateLayout, v); err == nil {
			row.Date = &t
		}
	}
	if v := cell(7); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			row.SyncVersion = n
		}
	}
	if v := cell(8); v != "" {
		if t, err := time.Parse(stampLayout, v); err == nil {
			row.EditedAt = &t
		}
	}

	return row, true
}

// IsAuthError reports credential faults (expired grant, revoked consent).
// These are never retried; the user must reconnect.
func IsAuthError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusUnauthorized
	}
	return false
}

// IsPermissionError reports authorization faults (no access to the sheet).
func IsPermissionError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusForbidden
	}
	return false
}

// IsTransient reports faults worth a bounded retry: rate limits, 5xx and
// transport failures where the request never produced a response at all
// (connection reset, dial timeout).
func IsTransient(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
