package fingerprint

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestContent_Deterministic(t *testing.T) {
	data := []byte("statement bytes")
	assert.Equal(t, Content(data), Content(data))
	assert.NotEqual(t, Content(data), Content([]byte("other bytes")))
	assert.Len(t, Content(data), 64)
}

func TestRow_StableAcrossSources(t *testing.T) {
	date := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	amount := decimal.NewFromFloat(-42.50)

	a := Row("TESCO STORES 3412", amount, &date)
	b := Row("TESCO STORES 3412", amount, &date)
	assert.Equal(t, a, b)
}

func TestRow_NormalizesDescription(t *testing.T) {
	date := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	amount := decimal.NewFromInt(10)

	assert.Equal(t,
		Row("Tesco   Stores  3412", amount, &date),
		Row("tesco stores 3412", amount, &date),
	)
}

func TestRow_TimeOfDayIgnored(t *testing.T) {
	amount := decimal.NewFromInt(10)
	morning := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2025, 3, 14, 22, 15, 0, 0, time.UTC)

	assert.Equal(t, Row("coffee", amount, &morning), Row("coffee", amount, &evening))
}

func TestRow_DatelessFallback(t *testing.T) {
	amount := decimal.NewFromFloat(9.99)
	date := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

	withDate := Row("spotify", amount, &date)
	withoutDate := Row("spotify", amount, nil)
	assert.NotEqual(t, withDate, withoutDate)
	assert.Equal(t, withoutDate, Row("spotify", amount, nil))
}

func TestRow_AmountScaleNormalized(t *testing.T) {
	date := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

	assert.Equal(t,
		Row("rent", decimal.NewFromInt(1200), &date),
		Row("rent", decimal.RequireFromString("1200.00"), &date),
	)
}
