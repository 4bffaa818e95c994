package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed  = errors.New("jwtx: malformed token")
	ErrInvalidSig = errors.New("jwtx: invalid signature")
	ErrExpired    = errors.New("jwtx: token expired")
	ErrIssuer     = errors.New("jwtx: issuer mismatch")
	ErrTokenType  = errors.New("jwtx: unexpected token type")
)

// Codec signs and verifies bearer tokens with a process-wide symmetric
// secret. The secret is fixed at startup; regenerating it mid-process would
// invalidate every outstanding token, so the app treats it as immutable
// configuration.
type Codec struct {
	secret []byte
	issuer string
}

// NewCodec builds a Codec from the configured signing secret.
func NewCodec(secret []byte, issuer string) (*Codec, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwtx: signing secret must be at least 32 bytes")
	}
	return &Codec{secret: secret, issuer: issuer}, nil
}

// Issuer returns the issuer claim the codec stamps on tokens.
func (c *Codec) Issuer() string { return c.issuer }

// Sign serializes and signs the given claims with HS256.
func (c *Codec) Sign(claims Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}

// Issue mints a token of the given type for the subject. Each issuance gets
// a fresh jti independent of the payload.
func (c *Codec) Issue(subject, role, tokenType string, ttl time.Duration, now time.Time) (string, Claims, error) {
	claims := NewClaims(subject, role, tokenType, ttl, c.issuer, now)
	signed, err := c.Sign(claims)
	return signed, claims, err
}

// IssuePreAuth mints the short-lived token returned when primary credentials
// checked out but MFA completion is still pending. It carries mfa_required
// and must be rejected anywhere a full access token is expected.
func (c *Codec) IssuePreAuth(subject, role string, ttl time.Duration, now time.Time) (string, Claims, error) {
	claims := NewClaims(subject, role, TypeAccess, ttl, c.issuer, now)
	claims.MFARequired = true
	signed, err := c.Sign(claims)
	return signed, claims, err
}

// Verify parses and validates a token, returning its claims. Signature and
// expiry failures come back as distinct sentinel errors so callers can map
// them to the right client-facing failure.
func (c *Codec) Verify(token string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: alg %v", ErrInvalidSig, t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSig
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, ErrMalformed
		default:
			return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalidSig
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return Claims{}, ErrIssuer
	}
	return claims, nil
}

// VerifyRefresh verifies a token and additionally requires it to be a
// refresh token. Access tokens presented on the refresh path fail with
// ErrTokenType.
func (c *Codec) VerifyRefresh(token string) (Claims, error) {
	claims, err := c.Verify(token)
	if err != nil {
		return Claims{}, err
	}
	if !claims.IsRefresh() {
		return Claims{}, ErrTokenType
	}
	return claims, nil
}
