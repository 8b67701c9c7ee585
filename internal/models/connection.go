package models

import "time"

// Integration tiers, lowest to highest. The tier decides which credential
// strategies the resolver may try for a tenant.
const (
	TierStandard   = "standard"   // per-user OAuth only
	TierTeam       = "team"       // tenant-admin OAuth
	TierEnterprise = "enterprise" // domain-wide-delegated service account
)

type AuthMethod string

const (
	AuthUserOAuth       AuthMethod = "user_oauth"
	AuthTenantOAuth     AuthMethod = "tenant_oauth"
	AuthDomainDelegated AuthMethod = "domain_delegated"
)

type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusError   SyncStatus = "error"
)

type SyncDirection string

const (
	DirectionPush          SyncDirection = "push"
	DirectionPull          SyncDirection = "pull"
	DirectionBidirectional SyncDirection = "bidirectional"
)

// Conflict-resolution defaults a connection can carry.
const (
	ConflictPolicyQueue = "queue" // record a conflict row, touch neither side
	ConflictPolicyDB    = "db"
	ConflictPolicyExt   = "external"
)

// Tenant holds the per-organization integration settings the credential
// resolver reads. DelegationSubject is the mailbox the enterprise service
// account impersonates; an enterprise tenant without one downgrades to
// the OAuth tiers.
type Tenant struct {
	ID                string     `gorm:"column:id;primaryKey"`
	Name              string     `gorm:"column:name"`
	IntegrationTier   string     `gorm:"column:integration_tier"`
	DelegationSubject *string    `gorm:"column:delegation_subject"`
	CreatedAt         time.Time  `gorm:"column:created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
	DeletedAt         *time.Time `gorm:"column:deleted_at"`
}

func (Tenant) TableName() string {
	return "tenant"
}

// OAuthCredential stores a Google OAuth grant. UserID nil means a
// tenant-admin grant. Token material is AES-GCM sealed before it reaches
// this row and opened only inside the credential resolver.
type OAuthCredential struct {
	ID              string     `gorm:"column:id;primaryKey"`
	TenantID        string     `gorm:"column:tenant_id;index"`
	UserID          *string    `gorm:"column:user_id;index"`
	Provider        string     `gorm:"column:provider"`
	AccessTokenEnc  string     `gorm:"column:access_token_enc"`
	RefreshTokenEnc *string    `gorm:"column:refresh_token_enc"`
	ExpiresAt       *time.Time `gorm:"column:expires_at"`
	Scope           *string    `gorm:"column:scope"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

func (OAuthCredential) TableName() string {
	return "oauth_credential"
}

// SheetConnection links a user or tenant to one external spreadsheet.
// Exactly one active connection may exist per (tenant, user, provider,
// spreadsheet), enforced by a unique index. sync_status doubles as the
// cross-invocation mutex: a sync claims the connection by flipping
// idle → syncing with a conditional update.
type SheetConnection struct {
	ID                string         `gorm:"column:id;primaryKey" json:"id"`
	TenantID          string         `gorm:"column:tenant_id;index" json:"tenant_id"`
	UserID            *string        `gorm:"column:user_id;index" json:"user_id,omitempty"`
	Provider          string         `gorm:"column:provider" json:"provider"`
	AuthMethod        AuthMethod     `gorm:"column:auth_method" json:"auth_method"`
	SpreadsheetID     string         `gorm:"column:spreadsheet_id" json:"spreadsheet_id"`
	SheetName         string         `gorm:"column:sheet_name" json:"sheet_name"`
	SyncStatus        SyncStatus     `gorm:"column:sync_status" json:"sync_status"`
	LastSyncAt        *time.Time     `gorm:"column:last_sync_at" json:"last_sync_at,omitempty"`
	LastSuccessSyncAt *time.Time     `gorm:"column:last_success_sync_at" json:"last_success_sync_at,omitempty"`
	LastSyncDirection *SyncDirection `gorm:"column:last_sync_direction" json:"last_sync_direction,omitempty"`
	LastSyncError     *string        `gorm:"column:last_sync_error" json:"last_sync_error,omitempty"`
	AutoSync          bool           `gorm:"column:auto_sync" json:"auto_sync"`
	ConflictPolicy    string         `gorm:"column:conflict_policy" json:"conflict_policy"`
	CreatedAt         time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (SheetConnection) TableName() string {
	return "sheet_connection"
}

type SyncRunStatus string

const (
	SyncRunStatusRunning SyncRunStatus = "running"
	SyncRunStatusSuccess SyncRunStatus = "success"
	SyncRunStatusPartial SyncRunStatus = "partial"
	SyncRunStatusFailed  SyncRunStatus = "failed"
)

// SyncRun is one row of sync history for a connection.
type SyncRun struct {
	ID                string        `gorm:"column:id;primaryKey" json:"id"`
	ConnectionID      string        `gorm:"column:connection_id;index" json:"connection_id"`
	TenantID          string        `gorm:"column:tenant_id;index" json:"tenant_id"`
	Direction         SyncDirection `gorm:"column:direction" json:"direction"`
	Status            SyncRunStatus `gorm:"column:status" json:"status"`
	RowsPushed        int           `gorm:"column:rows_pushed" json:"rows_pushed"`
	RowsPulled        int           `gorm:"column:rows_pulled" json:"rows_pulled"`
	RowsSkipped       int           `gorm:"column:rows_skipped" json:"rows_skipped"`
	RowsUpdated       int           `gorm:"column:rows_updated" json:"rows_updated"`
	ConflictsDetected int           `gorm:"column:conflicts_detected" json:"conflicts_detected"`
	ErrorMessage      *string       `gorm:"column:error_message" json:"error_message,omitempty"`
	StartedAt         time.Time     `gorm:"column:started_at" json:"started_at"`
	FinishedAt        *time.Time    `gorm:"column:finished_at" json:"finished_at,omitempty"`
	DurationMs        int64         `gorm:"column:duration_ms" json:"duration_ms"`
}

func (SyncRun) TableName() string {
	return "sync_run"
}
