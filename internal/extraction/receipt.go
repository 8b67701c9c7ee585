package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ReceiptClient calls the external document-AI service that turns receipt
// and invoice images into line items. The extraction logic itself lives in
// that service; this client only moves bytes and maps the response.
type ReceiptClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewReceiptClient(baseURL, apiKey string) *ReceiptClient {
	return &ReceiptClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // OCR on large PDFs is slow
		},
	}
}

type receiptRequest struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"` // base64
}

type receiptLineItem struct {
	Description string   `json:"description"`
	Amount      string   `json:"amount"`
	Date        string   `json:"date"`
	Category    *string  `json:"category"`
	Subcategory *string  `json:"subcategory"`
	Confidence  *float64 `json:"confidence"`
}

type receiptResponse struct {
	LineItems []receiptLineItem `json:"line_items"`
}

func (c *ReceiptClient) Extract(ctx context.Context, fileName string, data []byte) ([]Row, error) {
	reqBody, err := json.Marshal(receiptRequest{
		FileName: fileName,
		Content:  base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction service error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed receiptResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}

	if len(parsed.LineItems) == 0 {
		return nil, ErrNoRows
	}

	rows := make([]Row, 0, len(parsed.LineItems))
	for _, item := range parsed.LineItems {
		if item.Description == "" {
			continue
		}
		amount, err := parseAmount(item.Amount)
		if err != nil {
			continue
		}
		row := Row{
			Description: item.Description,
			Amount:      amount,
			Category:    item.Category,
			Subcategory: item.Subcategory,
			Confidence:  0.8, // OCR default when the service omits a score
		}
		if item.Confidence != nil {
			row.Confidence = *item.Confidence
		}
		if item.Date != "" {
			if t, err := parseDate(item.Date); err == nil {
				row.Date = &t
			}
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows, nil
}
