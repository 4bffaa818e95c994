package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants for the auth flows. These are the
// source-of-truth defaults; app config may override them per deployment.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 1 * time.Hour

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// DefaultPreAuthTTL is the default lifetime for the short pre-auth
	// token handed out when a login still needs MFA completion.
	DefaultPreAuthTTL = 5 * time.Minute
)

// Token type values carried in the "typ" claim. Access and refresh tokens
// share the codec but must never be interchangeable.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims are the token claims used across the service. Kept additive to
// preserve compatibility with already-issued tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Role of the authenticated user ("admin", "user", "verifier").
	Role string `json:"role,omitempty"`

	// TokenType distinguishes access from refresh tokens.
	TokenType string `json:"typ,omitempty"`

	// MFARequired marks a pre-auth token issued after the credential check
	// but before MFA completion. Tokens carrying this flag are only good
	// for finishing the MFA challenge, never for protected resources.
	MFARequired bool `json:"mfa_required,omitempty"`
}

// NewClaims builds minimally-correct claims for a token of the given type.
// Every call mints a fresh jti so individual tokens can be revoked without
// touching the user's other outstanding tokens.
func NewClaims(subject, role, tokenType string, ttl time.Duration, issuer string, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Role:      role,
		TokenType: tokenType,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// IsRefresh reports whether the claims belong to a refresh token.
func (c *Claims) IsRefresh() bool { return c.TokenType == TypeRefresh }
