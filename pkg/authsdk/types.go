package authsdk

import "time"

// ErrorResponse is the standard error body, used internally for parsing
// failed HTTP responses. Client code sees APIError instead.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// TokenResponse is returned by login completion and refresh.
type TokenResponse struct {
	// AccessToken is the JWT presented on authenticated API requests
	AccessToken string `json:"access_token"`

	// RefreshToken is the longer-lived JWT for minting new access tokens.
	// Absent from refresh responses: refresh tokens are not rotated.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds
	ExpiresIn int `json:"expires_in"`
}

// RegisterRequest creates a new account. Role is not accepted here;
// self-registration always yields a standard user.
type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest starts a login. Identifier accepts either email or username.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// MFACompleteRequest finishes a challenged login. Code may be a TOTP code
// or a single-use backup code.
type MFACompleteRequest struct {
	MFAToken string `json:"mfa_token"`
	Code     string `json:"code"`
}

// RefreshRequest exchanges a refresh token for a new access token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest revokes the caller's tokens. The access token comes from
// the Authorization header; the refresh token rides in the body so it gets
// revoked in the same call.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ChangePasswordRequest swaps the account password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// DeleteAccountRequest removes the account after re-proving the password.
type DeleteAccountRequest struct {
	Password string `json:"password"`
}

// MFAEnrollResponse is the provisioning material for a new authenticator.
// The secret appears here once and is never retrievable again.
type MFAEnrollResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	Issuer          string `json:"issuer"`
	Account         string `json:"account"`
}

// MFAVerifyRequest activates a pending enrollment or proves possession of
// the authenticator for backup-code regeneration and MFA removal.
type MFAVerifyRequest struct {
	Code string `json:"code"`
}

// UpdateRoleRequest assigns a role to a user. Admin only.
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// MFAChallengeResponse carries a fresh single-use challenge token for a
// step-up-guarded operation.
type MFAChallengeResponse struct {
	MFAToken  string `json:"mfa_token"`
	ExpiresIn int    `json:"expires_in"`
}

// BackupCodesResponse carries freshly minted single-use backup codes. Like
// the TOTP secret, they are shown exactly once.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// UserResponse describes an account.
type UserResponse struct {
	UserID     string     `json:"user_id"`
	Email      string     `json:"email"`
	Username   string     `json:"username"`
	Role       string     `json:"role"`
	Active     bool       `json:"active"`
	MFAEnabled bool       `json:"mfa_enabled"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// AuditEventResponse is one entry of the account activity feed.
type AuditEventResponse struct {
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ActivityResponse is the account activity feed, newest first.
type ActivityResponse struct {
	Events []AuditEventResponse `json:"events"`
}

// HealthChecks reports per-dependency health in readiness responses.
type HealthChecks struct {
	Database string `json:"database"`
}

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}
