package models

import "time"

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"     // Created, waiting for a processor
	JobStatusProcessing JobStatus = "processing" // Claimed by a processor or the sweep
	JobStatusReviewing  JobStatus = "reviewing"  // Extraction + merge done, awaiting human confirmation
	JobStatusFailed     JobStatus = "failed"     // Unrecoverable; re-upload starts a new job
)

type JobType string

const (
	JobTypeSpreadsheet JobType = "spreadsheet"
	JobTypeInvoice     JobType = "invoice"
	JobTypeBatch       JobType = "batch"
)

type ProcessingMode string

const (
	ProcessingModeSync  ProcessingMode = "sync"  // Processed inline after upload
	ProcessingModeAsync ProcessingMode = "async" // Picked up by the staleness sweep
)

// IngestJob is one ingestion unit: an uploaded file or a batch.
// content_hash is unique per (user, tenant) among active jobs unless the
// upload carried the force flag.
type IngestJob struct {
	ID             string         `gorm:"column:id;primaryKey" json:"id"`
	UserID         string         `gorm:"column:user_id;index" json:"user_id"`
	TenantID       string         `gorm:"column:tenant_id;index" json:"tenant_id"`
	Type           JobType        `gorm:"column:type" json:"type"`
	Status         JobStatus      `gorm:"column:status;index" json:"status"`
	ProcessingMode ProcessingMode `gorm:"column:processing_mode" json:"processing_mode"`
	FileName       string         `gorm:"column:file_name" json:"file_name"`
	FilePath       *string        `gorm:"column:file_path" json:"-"`
	ContentHash    string         `gorm:"column:content_hash;index" json:"content_hash"`
	TotalItems     int            `gorm:"column:total_items" json:"total_items"`
	ProcessedItems int            `gorm:"column:processed_items" json:"processed_items"`
	FailedItems    int            `gorm:"column:failed_items" json:"failed_items"`
	ErrorCode      *string        `gorm:"column:error_code" json:"error_code,omitempty"`
	ErrorMessage   *string        `gorm:"column:error_message" json:"error_message,omitempty"`
	StatusMessage  *string        `gorm:"column:status_message" json:"status_message,omitempty"`
	CreatedAt      time.Time      `gorm:"column:created_at" json:"created_at"`
	StartedAt      *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	UpdatedAt      time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (IngestJob) TableName() string {
	return "ingest_job"
}
