package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionSource string

const (
	SourceUpload       TransactionSource = "upload"
	SourceExternalSync TransactionSource = "external_sync"
)

// Last-modified-source values. "local" covers user edits and ingestion;
// "external" marks rows whose latest write came from a pull-sync, so the
// sync engine can tell organic local edits apart from its own writes.
const (
	ModifiedByLocal    = "local"
	ModifiedByExternal = "external"
)

// Transaction is one categorized financial line item belonging to a job.
// sync_version only increases; it is the vector used for conflict detection.
type Transaction struct {
	ID             string            `gorm:"column:id;primaryKey" json:"id"`
	UserID         string            `gorm:"column:user_id;index" json:"user_id"`
	TenantID       string            `gorm:"column:tenant_id;index" json:"tenant_id"`
	JobID          *string           `gorm:"column:job_id;index" json:"job_id,omitempty"`
	Description    string            `gorm:"column:description" json:"description"`
	Amount         decimal.Decimal   `gorm:"column:amount;type:numeric(14,2)" json:"amount"`
	Date           *time.Time        `gorm:"column:date;index" json:"date,omitempty"`
	Category       *string           `gorm:"column:category" json:"category,omitempty"`
	Subcategory    *string           `gorm:"column:subcategory" json:"subcategory,omitempty"`
	Confidence     float64           `gorm:"column:confidence" json:"confidence"`
	Confirmed      bool              `gorm:"column:confirmed" json:"confirmed"`
	SourceType     TransactionSource `gorm:"column:source_type" json:"source_type"`
	SourceID       *string           `gorm:"column:source_id" json:"source_id,omitempty"`
	Fingerprint    string            `gorm:"column:fingerprint;index" json:"-"`
	SyncVersion    int               `gorm:"column:sync_version" json:"sync_version"`
	LastModifiedBy string            `gorm:"column:last_modified_by" json:"last_modified_by"`
	DocumentPath   *string           `gorm:"column:document_path" json:"document_path,omitempty"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Transaction) TableName() string {
	return "transaction"
}
