package extraction

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestCSVExtractor_ParsesStatement(t *testing.T) {
	data := []byte("Date,Description,Amount\n" +
		"2025-03-01,TESCO STORES 3412,-42.50\n" +
		"02/03/2025,SALARY ACME LTD,\"2,100.00\"\n" +
		"2025-03-03,,10.00\n")

	rows, err := NewCSVExtractor().Extract(context.Background(), "statement.csv", data)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "TESCO STORES 3412", rows[0].Description)
	assert.Equal(t, "-42.5", rows[0].Amount.String())
	require.NotNil(t, rows[0].Date)
	assert.Equal(t, "2025-03-01", rows[0].Date.Format("2006-01-02"))

	assert.Equal(t, "SALARY ACME LTD", rows[1].Description)
	assert.Equal(t, "2100", rows[1].Amount.String())
}

func TestCSVExtractor_DebitCreditColumns(t *testing.T) {
	data := []byte("Date,Details,Debit,Credit\n" +
		"2025-03-01,COFFEE SHOP,4.20,\n" +
		"2025-03-02,REFUND,,15.00\n")

	rows, err := NewCSVExtractor().Extract(context.Background(), "statement.csv", data)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Amount.IsNegative(), "debit should be negative")
	assert.True(t, rows[1].Amount.IsPositive(), "credit should be positive")
}

func TestCSVExtractor_PreambleBeforeHeader(t *testing.T) {
	data := []byte("Account Statement\n" +
		"Generated 2025-03-10\n" +
		"Date,Description,Amount\n" +
		"2025-03-01,ONE,1.00\n")

	rows, err := NewCSVExtractor().Extract(context.Background(), "statement.csv", data)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestCSVExtractor_NoUsableHeader(t *testing.T) {
	_, err := NewCSVExtractor().Extract(context.Background(), "junk.csv", []byte("a,b\n1,2\n"))
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestXLSXExtractor_ParsesWorkbook(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]string{"Date", "Description", "Amount"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]string{"2025-03-01", "TESCO STORES 3412", "-42.50"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]string{"2025-03-02", "(accounting negative)", "(12.50)"}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	rows, err := NewXLSXExtractor().Extract(context.Background(), "statement.xlsx", buf.Bytes())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "-42.5", rows[0].Amount.String())
	assert.Equal(t, "-12.5", rows[1].Amount.String())
}

func TestReceiptClient_MapsLineItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/extract", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"line_items":[
			{"description":"Flat white","amount":"3.40","date":"2025-03-01","confidence":0.93},
			{"description":"Croissant","amount":"2.80","date":"2025-03-01"}
		]}`))
	}))
	defer server.Close()

	client := NewReceiptClient(server.URL, "test-key")
	rows, err := client.Extract(context.Background(), "receipt.jpg", []byte("image-bytes"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Flat white", rows[0].Description)
	assert.Equal(t, 0.93, rows[0].Confidence)
	assert.Equal(t, 0.8, rows[1].Confidence)
}

func TestReceiptClient_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewReceiptClient(server.URL, "test-key")
	_, err := client.Extract(context.Background(), "receipt.jpg", []byte("image-bytes"))
	assert.Error(t, err)
}

func TestDispatcher_RoutesByExtension(t *testing.T) {
	d := &Dispatcher{Spreadsheet: NewXLSXExtractor(), CSV: NewCSVExtractor()}

	_, err := d.Extract(context.Background(), "statement.csv", []byte("Date,Description,Amount\n2025-01-01,X,1\n"))
	assert.NoError(t, err)

	_, err = d.Extract(context.Background(), "receipt.png", nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = d.Extract(context.Background(), "notes.txt", nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
