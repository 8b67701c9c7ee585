package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Content hashes raw uploaded bytes. Collisions are treated as true
// duplicates; there is no second-level comparison.
func Content(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Row fingerprints a transaction's semantic fields. Two rows with the same
// normalized description, amount and date fingerprint identically no matter
// which ingestion path produced them, so uploads and pull-syncs dedup
// against each other.
//
// Rows without a date fall back to description+amount only. Some external
// sources omit dates; the higher false-duplicate risk is accepted.
func Row(description string, amount decimal.Decimal, date *time.Time) string {
	parts := []string{normalize(description), amount.StringFixed(2)}
	if date != nil {
		parts = append(parts, date.Format("2006-01-02"))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// normalize lowercases and collapses interior whitespace so cosmetic
// differences between statement exports don't defeat dedup.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
