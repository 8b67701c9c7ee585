package extraction

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSXExtractor parses uploaded .xlsx bank statements. The first sheet is
// assumed to carry the statement; the first row that maps to known columns
// is treated as the header.
type XLSXExtractor struct{}

func NewXLSXExtractor() *XLSXExtractor {
	return &XLSXExtractor{}
}

func (e *XLSXExtractor) Extract(_ context.Context, fileName string, data []byte) ([]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", fileName, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoRows
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}

	return parseTable(rows)
}

// parseTable is shared by the xlsx and csv extractors: find the header,
// then parse every following row, skipping ones that don't parse rather
// than failing the whole file.
func parseTable(table [][]string) ([]Row, error) {
	headerIdx := -1
	var cols columnMap
	for i, row := range table {
		if m := mapHeader(row); m.usable() {
			headerIdx, cols = i, m
			break
		}
	}
	if headerIdx < 0 {
		return nil, ErrNoRows
	}

	var out []Row
	for _, raw := range table[headerIdx+1:] {
		row, ok := parseDataRow(raw, cols)
		if ok {
			out = append(out, row)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoRows
	}
	return out, nil
}

func parseDataRow(raw []string, cols columnMap) (Row, bool) {
	description := cellAt(raw, cols.description)
	if description == "" {
		return Row{}, false
	}

	amountCell := cellAt(raw, cols.amount)
	var row Row
	row.Description = description
	row.Confidence = 1.0 // direct parse, not inferred

	switch {
	case amountCell != "":
		amount, err := parseAmount(amountCell)
		if err != nil {
			return Row{}, false
		}
		row.Amount = amount
	default:
		// Separate debit/credit columns: debits become negative amounts.
		if debit := cellAt(raw, cols.debit); debit != "" {
			amount, err := parseAmount(debit)
			if err != nil {
				return Row{}, false
			}
			row.Amount = amount.Neg()
		} else if credit := cellAt(raw, cols.credit); credit != "" {
			amount, err := parseAmount(credit)
			if err != nil {
				return Row{}, false
			}
			row.Amount = amount
		} else {
			return Row{}, false
		}
	}

	if dateCell := cellAt(raw, cols.date); dateCell != "" {
		if t, err := parseDate(dateCell); err == nil {
			row.Date = &t
		}
	}

	if category := cellAt(raw, cols.category); category != "" {
		row.Category = &category
	}

	return row, true
}
