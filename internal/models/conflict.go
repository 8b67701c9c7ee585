package models

import "time"

type ConflictStatus string

const (
	ConflictStatusPending  ConflictStatus = "pending"
	ConflictStatusResolved ConflictStatus = "resolved"
	ConflictStatusIgnored  ConflictStatus = "ignored"
)

// Resolution choices. "manual" means the caller supplied the final values;
// there is no automatic field-level merge.
const (
	ResolutionKeepDB       = "db"
	ResolutionKeepExternal = "external"
	ResolutionManual       = "manual"
)

// Conflict records a divergence detected at sync time: both the stored row
// and the external row changed since the last successful sync. Conflict
// rows are never deleted; resolved and ignored are terminal and the row
// stays as an audit trail.
type Conflict struct {
	ID               string         `gorm:"column:id;primaryKey" json:"id"`
	TransactionID    string         `gorm:"column:transaction_id;index" json:"transaction_id"`
	ConnectionID     string         `gorm:"column:connection_id;index" json:"connection_id"`
	TenantID         string         `gorm:"column:tenant_id;index" json:"tenant_id"`
	LocalSnapshot    JSONB          `gorm:"column:local_snapshot;type:jsonb" json:"local_snapshot"`
	ExternalSnapshot JSONB          `gorm:"column:external_snapshot;type:jsonb" json:"external_snapshot"`
	Status           ConflictStatus `gorm:"column:status;index" json:"status"`
	Resolution       *string        `gorm:"column:resolution" json:"resolution,omitempty"`
	ResolvedBy       *string        `gorm:"column:resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time     `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Conflict) TableName() string {
	return "sync_conflict"
}
