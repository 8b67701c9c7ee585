package extraction

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one structured line item produced by an extractor.
type Row struct {
	Description string
	Amount      decimal.Decimal
	Date        *time.Time
	Category    *string
	Subcategory *string
	Confidence  float64
}

// Extractor turns uploaded file bytes into structured rows. Implementations
// exist for xlsx and csv statements and for the receipt OCR service.
type Extractor interface {
	Extract(ctx context.Context, fileName string, data []byte) ([]Row, error)
}

// ErrNoRows means the file parsed but contained nothing usable.
var ErrNoRows = errors.New("no transaction rows found")

// ErrUnsupportedFormat means no extractor handles the file type.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Dispatcher routes a file to the right extractor by job type and extension.
type Dispatcher struct {
	Spreadsheet Extractor // xlsx
	CSV         Extractor
	Receipt     Extractor // OCR collaborator, may be nil when unconfigured
}

func (d *Dispatcher) Extract(ctx context.Context, fileName string, data []byte) ([]Row, error) {
	name := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(name, ".xlsx") || strings.HasSuffix(name, ".xls"):
		return d.Spreadsheet.Extract(ctx, fileName, data)
	case strings.HasSuffix(name, ".csv"):
		return d.CSV.Extract(ctx, fileName, data)
	case strings.HasSuffix(name, ".pdf") || strings.HasSuffix(name, ".jpg") ||
		strings.HasSuffix(name, ".jpeg") || strings.HasSuffix(name, ".png"):
		if d.Receipt == nil {
			return nil, ErrUnsupportedFormat
		}
		return d.Receipt.Extract(ctx, fileName, data)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// parseDate tries the date layouts seen across bank statement exports.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)

	formats := []string{
		"2006-01-02",
		"02/01/2006",
		"01/02/2006",
		"02-01-2006",
		"2 Jan 2006",
		"Jan 2, 2006",
		"2006-01-02T15:04:05",
		time.RFC3339,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			return t, nil
		}
	}

	return time.Time{}, errors.New("unable to parse date: " + value)
}

// parseAmount accepts amounts with currency symbols and thousands separators.
func parseAmount(value string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(value)
	cleaned = strings.TrimPrefix(cleaned, "£")
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.TrimPrefix(cleaned, "€")
	cleaned = strings.ReplaceAll(cleaned, ",", "")

	// Accounting-style negatives: (12.50)
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned = "-" + cleaned[1:len(cleaned)-1]
	}

	return decimal.NewFromString(cleaned)
}
