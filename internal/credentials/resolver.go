package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/tallyfin/ledger-worker/internal/models"
	"github.com/tallyfin/ledger-worker/internal/secrets"
)

// Provider is the identity provider credentials are stored under.
const Provider = "google"

// ErrNoCredentials means no tier could produce a usable credential. The
// wrapped message tells the user whether they never connected or whether
// the tenant configuration is incomplete.
var ErrNoCredentials = errors.New("no credentials available")

// ErrReconnectRequired means a refresh token was rejected. Not retryable;
// the user has to run through the OAuth consent flow again.
var ErrReconnectRequired = errors.New("reconnect required")

// tokenSkew treats tokens expiring inside this window as already expired,
// so a resolved client never dies mid-operation.
const tokenSkew = 5 * time.Minute

// Resolution is a successfully resolved credential: the token source to
// build API clients with, and which tier produced it.
type Resolution struct {
	Method      models.AuthMethod
	TokenSource oauth2.TokenSource
}

// TenantStore is the tenant lookup the resolver needs.
type TenantStore interface {
	GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error)
}

// CredentialStore reads and re-persists OAuth grants. Lookups return
// (nil, nil) when no grant exists.
type CredentialStore interface {
	GetTenantAdmin(ctx context.Context, tenantID, provider string) (*models.OAuthCredential, error)
	GetUser(ctx context.Context, tenantID, userID, provider string) (*models.OAuthCredential, error)
	UpdateTokens(ctx context.Context, credentialID, accessTokenEnc string, refreshTokenEnc *string, expiresAt time.Time) error
}

// Resolver picks the credential tier for a tenant. Strategies are tried in
// order: domain-delegated service account, tenant-admin OAuth, per-user
// OAuth. A tier that is configured but incomplete is skipped with a logged
// downgrade, never treated as fatal.
type Resolver struct {
	tenants            TenantStore
	credentials        CredentialStore
	box                *secrets.Box
	log                *logrus.Logger
	clientID           string
	clientSecret       string
	serviceAccountJSON []byte
	tokenURL           string
}

func NewResolver(
	tenants TenantStore,
	credentials CredentialStore,
	box *secrets.Box,
	log *logrus.Logger,
	clientID, clientSecret, serviceAccountJSON string,
) *Resolver {
	var saJSON []byte
	if serviceAccountJSON != "" {
		saJSON = []byte(serviceAccountJSON)
	}
	return &Resolver{
		tenants:            tenants,
		credentials:        credentials,
		box:                box,
		log:                log,
		clientID:           clientID,
		clientSecret:       clientSecret,
		serviceAccountJSON: saJSON,
		tokenURL:           "https://oauth2.googleapis.com/token",
	}
}

type strategy func(ctx context.Context, tenant *models.Tenant, userID string) (*Resolution, error)

// Resolve returns the first tier that produces a working credential.
func (r *Resolver) Resolve(ctx context.Context, tenantID, userID string) (*Resolution, error) {
	tenant, err := r.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}

	strategies := []struct {
		name string
		fn   strategy
	}{
		{"domain_delegated", r.resolveDomainDelegated},
		{"tenant_admin", r.resolveTenantAdmin},
		{"user_oauth", r.resolveUserOAuth},
	}

	for _, s := range strategies {
		res, err := s.fn(ctx, tenant, userID)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
		r.log.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"tier":      s.name,
		}).Debug("credential tier not applicable, falling through")
	}

	if tenant.IntegrationTier != models.TierStandard {
		return nil, fmt.Errorf("%w: tenant configuration incomplete for tier %q and no user grant exists", ErrNoCredentials, tenant.IntegrationTier)
	}
	return nil, fmt.Errorf("%w: no Google account connected for this user", ErrNoCredentials)
}

// resolveDomainDelegated applies only on the enterprise tier with a
// delegation subject configured. A missing subject is a logged downgrade.
func (r *Resolver) resolveDomainDelegated(ctx context.Context, tenant *models.Tenant, _ string) (*Resolution, error) {
	if tenant.IntegrationTier != models.TierEnterprise {
		return nil, nil
	}
	if tenant.DelegationSubject == nil || *tenant.DelegationSubject == "" {
		r.log.WithField("tenant_id", tenant.ID).
			Warn("enterprise tier configured without delegation subject, downgrading to OAuth tiers")
		return nil, nil
	}
	if len(r.serviceAccountJSON) == 0 {
		r.log.WithField("tenant_id", tenant.ID).
			Warn("enterprise tier configured but no service account key loaded, downgrading to OAuth tiers")
		return nil, nil
	}

	ts, err := r.delegatedTokenSource(ctx, *tenant.DelegationSubject)
	if err != nil {
		return nil, err
	}
	return &Resolution{Method: models.AuthDomainDelegated, TokenSource: ts}, nil
}

// resolveTenantAdmin applies on team tier and above when an admin grant
// exists for the tenant.
func (r *Resolver) resolveTenantAdmin(ctx context.Context, tenant *models.Tenant, _ string) (*Resolution, error) {
	if tenant.IntegrationTier != models.TierTeam && tenant.IntegrationTier != models.TierEnterprise {
		return nil, nil
	}

	cred, err := r.credentials.GetTenantAdmin(ctx, tenant.ID, Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to look up tenant-admin grant: %w", err)
	}
	if cred == nil {
		r.log.WithField("tenant_id", tenant.ID).
			Warn("tenant tier allows admin OAuth but no admin grant connected, downgrading to user OAuth")
		return nil, nil
	}

	ts, err := r.oauthTokenSource(ctx, cred)
	if err != nil {
		return nil, err
	}
	return &Resolution{Method: models.AuthTenantOAuth, TokenSource: ts}, nil
}

// resolveUserOAuth is the default tier: the individual user's own grant.
func (r *Resolver) resolveUserOAuth(ctx context.Context, tenant *models.Tenant, userID string) (*Resolution, error) {
	cred, err := r.credentials.GetUser(ctx, tenant.ID, userID, Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user grant: %w", err)
	}
	if cred == nil {
		return nil, nil
	}

	ts, err := r.oauthTokenSource(ctx, cred)
	if err != nil {
		return nil, err
	}
	return &Resolution{Method: models.AuthUserOAuth, TokenSource: ts}, nil
}

// oauthTokenSource opens the stored grant, refreshing and re-persisting it
// first when expired. The new encrypted token material is written back
// before the token source is returned, so a caller never holds a client
// whose refresh token silently rotated without persistence.
func (r *Resolver) oauthTokenSource(ctx context.Context, cred *models.OAuthCredential) (oauth2.TokenSource, error) {
	accessToken, err := r.box.Open(cred.AccessTokenEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}

	if !r.isExpired(cred.ExpiresAt) {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}), nil
	}

	if cred.RefreshTokenEnc == nil {
		return nil, fmt.Errorf("%w: access token expired and no refresh token stored", ErrReconnectRequired)
	}
	refreshToken, err := r.box.Open(*cred.RefreshTokenEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	newToken, err := r.refresh(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: token refresh rejected: %v", ErrReconnectRequired, err)
	}

	// Persist before use. Google may rotate the refresh token on refresh;
	// losing the rotated value invalidates every later call.
	accessEnc, err := r.box.Seal(newToken.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt refreshed access token: %w", err)
	}
	refreshValue := newToken.RefreshToken
	if refreshValue == "" {
		refreshValue = refreshToken
	}
	refreshEnc, err := r.box.Seal(refreshValue)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt refreshed refresh token: %w", err)
	}
	if err := r.credentials.UpdateTokens(ctx, cred.ID, accessEnc, &refreshEnc, newToken.Expiry); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"credential_id": cred.ID,
		"expires_at":    newToken.Expiry,
	}).Info("refreshed OAuth token")

	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: newToken.AccessToken, TokenType: "Bearer"}), nil
}

func (r *Resolver) isExpired(expiresAt *time.Time) bool {
	if expiresAt == nil {
		return true // assume expired if no expiry time
	}
	return time.Now().Add(tokenSkew).After(*expiresAt)
}

// refresh exchanges a refresh token for a new access token. Failure is
// surfaced as-is; the caller maps it to ErrReconnectRequired and never
// retries.
func (r *Resolver) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	cfg := &oauth2.Config{
		ClientID:     r.clientID,
		ClientSecret: r.clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: r.tokenURL,
		},
	}
	return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
}
