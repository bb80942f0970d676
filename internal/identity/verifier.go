// Package identity verifies inbound bearer tokens against the
// configured OIDC issuer and extracts the claims the user directory
// cares about.
package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	dErrors "github.com/joelborellis/mcp-registry/pkg/domain-errors"
)

// Claims is the identity-provider view of an authenticated caller.
type Claims struct {
	// Subject is the stable external identifier of the user. Prefers
	// the `oid` claim when the issuer provides one, falling back to
	// the token subject.
	Subject     string
	Email       string
	DisplayName string
	// Groups lists the identity-provider group IDs the user belongs
	// to, used to reconcile the directory's admin flag.
	Groups []string
}

// Verifier validates ID tokens using the issuer's published JWKS.
// Keys are fetched via OIDC discovery and cached by the underlying
// provider, so verification is local after the first request.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewVerifier performs OIDC discovery against the issuer and prepares
// a token verifier bound to the expected audience.
func NewVerifier(ctx context.Context, issuerURL, audience string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %s: %w", issuerURL, err)
	}
	return &Verifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: audience}),
	}, nil
}

// Verify checks the raw token's signature, issuer, audience and expiry,
// and maps its claims into the directory's shape.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid or expired token")
	}

	var raw struct {
		OID               string   `json:"oid"`
		Email             string   `json:"email"`
		PreferredUsername string   `json:"preferred_username"`
		Name              string   `json:"name"`
		Groups            []string `json:"groups"`
	}
	if err := token.Claims(&raw); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "malformed token claims")
	}

	claims := &Claims{
		Subject:     token.Subject,
		Email:       raw.Email,
		DisplayName: raw.Name,
		Groups:      raw.Groups,
	}
	if raw.OID != "" {
		claims.Subject = raw.OID
	}
	if claims.Email == "" {
		claims.Email = raw.PreferredUsername
	}
	if claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token carries no subject")
	}
	return claims, nil
}
