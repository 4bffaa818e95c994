package domain

import "time"

// TokenPair is what a completed authentication returns: a short-lived access
// token and a longer-lived refresh token, both stateless JWTs.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	TokenType    string        `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn    time.Duration `json:"expires_in"`           // seconds until the access token expires
}

// RevokedToken is a ledger entry. Once a jti is present here the matching
// token must fail validation regardless of signature and expiry, until the
// entry is pruned after the token's natural lifetime has passed anyway.
type RevokedToken struct {
	JTI       string
	UserID    string
	Reason    string
	RevokedAt time.Time
}

// Revocation reasons recorded in the ledger.
const (
	RevocationReasonLogout          = "logout"
	RevocationReasonAccountDeletion = "account_deletion"
	RevocationReasonPasswordChange  = "password_change"
)
