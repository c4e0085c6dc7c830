// Package auth verifies OIDC ID tokens presented as bearer credentials.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Claims are the ID token claims used to identify a user.
type Claims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// Username is the name the user is stored under: the email when present,
// the preferred username otherwise.
func (c *Claims) Username() string {
	if c.Email != "" {
		return strings.ToLower(c.Email)
	}
	return c.PreferredUsername
}

// TokenVerifier verifies a raw bearer token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

// OIDCVerifier verifies ID tokens issued for this client by the configured issuer.
type OIDCVerifier struct {
	verifier       *oidc.IDTokenVerifier
	allowedDomains []string
}

// Ensure OIDCVerifier implements TokenVerifier.
var _ TokenVerifier = (*OIDCVerifier)(nil)

// NewOIDCVerifier discovers the issuer's keys and creates a verifier.
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID string, allowedDomains []string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return &OIDCVerifier{
		verifier:       provider.Verifier(&oidc.Config{ClientID: clientID}),
		allowedDomains: allowedDomains,
	}, nil
}

// Verify checks the token signature, issuer, audience and expiry, then
// the domain restriction.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	if err := ValidateClaims(&claims, v.allowedDomains); err != nil {
		return nil, err
	}
	return &claims, nil
}

// ValidateClaims checks that the claims identify a user and, when
// allowedDomains is set, that the email belongs to one of them.
func ValidateClaims(claims *Claims, allowedDomains []string) error {
	if claims.Username() == "" {
		return fmt.Errorf("email or preferred_username claim is required")
	}

	if len(allowedDomains) > 0 {
		emailParts := strings.Split(claims.Email, "@")
		if len(emailParts) != 2 {
			return fmt.Errorf("invalid email format")
		}
		domain := strings.ToLower(emailParts[1])

		allowed := false
		for _, d := range allowedDomains {
			if strings.ToLower(d) == domain {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("email domain %s is not allowed", domain)
		}
	}

	return nil
}

// LooksLikeJWT reports whether a bearer token has the three-part JWT shape.
func LooksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}
