package credentials

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes granted to resolved clients. Drive scope is needed to open
// spreadsheets shared with the delegated identity.
var scopes = []string{
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/drive",
}

// delegatedTokenSource builds a domain-wide-delegated token source that
// impersonates the tenant's delegation subject.
func (r *Resolver) delegatedTokenSource(ctx context.Context, subject string) (oauth2.TokenSource, error) {
	jwtCfg, err := google.JWTConfigFromJSON(r.serviceAccountJSON, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}
	jwtCfg.Subject = subject
	return jwtCfg.TokenSource(ctx), nil
}
