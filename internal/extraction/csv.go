package extraction

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
)

// CSVExtractor parses .csv statement exports with the same header mapping
// and row rules as the xlsx extractor.
type CSVExtractor struct{}

func NewCSVExtractor() *CSVExtractor {
	return &CSVExtractor{}
}

func (e *CSVExtractor) Extract(_ context.Context, fileName string, data []byte) ([]Row, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // ragged exports are common

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv %s: %w", fileName, err)
	}

	return parseTable(records)
}
