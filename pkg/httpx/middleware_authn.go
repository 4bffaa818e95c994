package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/veridianhq/idverify/pkg/jwtx"
	"github.com/veridianhq/idverify/pkg/slogx"
)

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (jwtx.Claims, error)
}

// RevocationChecker answers whether a token id has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// AuthnMiddleware authenticates requests carrying a bearer access token.
// Validation order is cheap checks first: signature and expiry via the
// codec, then the revocation ledger. A ledger failure rejects the request
// (fail closed) rather than assuming the token is still good.
//
// Pre-auth tokens (mfa_required claim set) are rejected here: they are only
// good for finishing an MFA challenge, never for protected resources.
func AuthnMiddleware(v TokenVerifier, rev RevocationChecker) Middleware {
	return authn(v, rev, false)
}

// AuthnAllowPreAuth is AuthnMiddleware for the MFA enrollment endpoints,
// which a user holding only a pre-auth token must be able to reach. Every
// other check still applies.
func AuthnAllowPreAuth(v TokenVerifier, rev RevocationChecker) Middleware {
	return authn(v, rev, true)
}

func authn(v TokenVerifier, rev RevocationChecker, allowPreAuth bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims, err := v.Verify(raw)
			if err != nil {
				switch {
				case errors.Is(err, jwtx.ErrExpired):
					writeBearerError(w, "token expired")
				default:
					writeBearerError(w, "token verification failed")
					log.Warn("jwt verify failed", "err", err)
				}
				return
			}

			if claims.IsRefresh() {
				writeBearerError(w, "refresh token not accepted here")
				return
			}

			if claims.MFARequired && !allowPreAuth {
				writeBearerError(w, "MFA completion required")
				return
			}

			revoked, err := rev.IsRevoked(ctx, claims.ID)
			if err != nil {
				log.Error("revocation check failed", "err", err)
				WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"error": "service_unavailable",
				})
				return
			}
			if revoked {
				writeBearerError(w, "token revoked")
				return
			}

			ctx = contextWithAuth(ctx, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func contextWithAuth(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyRole, c.Role)
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	w.WriteHeader(http.StatusUnauthorized)
}
