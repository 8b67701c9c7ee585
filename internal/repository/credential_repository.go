package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tallyfin/ledger-worker/internal/models"
)

var ErrTenantNotFound = errors.New("tenant not found")

// CredentialRepository backs the credential resolver: tenant settings plus
// stored OAuth grants. Grant lookups return (nil, nil) when no grant
// exists; absence is an expected downgrade path, not an error.
type CredentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// GetTenant retrieves a tenant by ID
func (r *CredentialRepository) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	var tenant models.Tenant
	result := r.db.WithContext(ctx).First(&tenant, "id = ? AND deleted_at IS NULL", tenantID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", result.Error)
	}
	return &tenant, nil
}

// GetTenantAdmin returns the tenant-level admin grant (user_id IS NULL).
func (r *CredentialRepository) GetTenantAdmin(ctx context.Context, tenantID, provider string) (*models.OAuthCredential, error) {
	var cred models.OAuthCredential
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id IS NULL AND provider = ?", tenantID, provider).
		First(&cred)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tenant-admin credential: %w", result.Error)
	}
	return &cred, nil
}

// GetUser returns an individual user's grant.
func (r *CredentialRepository) GetUser(ctx context.Context, tenantID, userID, provider string) (*models.OAuthCredential, error) {
	var cred models.OAuthCredential
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ? AND provider = ?", tenantID, userID, provider).
		First(&cred)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user credential: %w", result.Error)
	}
	return &cred, nil
}

// UpdateTokens persists refreshed encrypted token material and expiry.
func (r *CredentialRepository) UpdateTokens(ctx context.Context, credentialID, accessTokenEnc string, refreshTokenEnc *string, expiresAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.OAuthCredential{}).
		Where("id = ?", credentialID).
		Updates(map[string]interface{}{
			"access_token_enc":  accessTokenEnc,
			"refresh_token_enc": refreshTokenEnc,
			"expires_at":        expiresAt,
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update tokens: %w", result.Error)
	}
	return nil
}
