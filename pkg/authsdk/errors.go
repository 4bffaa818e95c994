package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/veridianhq/idverify/pkg/httpx"
)

// Error codes shared between server responses and the SDK.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeInvalidToken       = "invalid_token"
	ErrorCodeInvalidGrant       = "invalid_grant"
	ErrorCodeMFARequired        = "mfa_required"
	ErrorCodeMFASetupRequired   = "mfa_setup_required"
	ErrorCodeAccountLocked      = "account_locked"
	ErrorCodeAccountDisabled    = "account_disabled"
	ErrorCodeConflict           = "conflict"
	ErrorCodeWeakPassword       = "weak_password"
	ErrorCodeInsufficientRole   = "insufficient_role"
	ErrorCodeNotFound           = "not_found"
	ErrorCodeServerError        = "server_error"
)

// APIError is the service's standard error response body. It implements the
// error interface and is used both by the server (to write HTTP responses)
// and by the SDK client (to represent failed calls).
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the machine-readable error code (e.g., "invalid_credentials")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

// Predefined errors for the common failure modes.
var (
	// ErrInvalidRequest is returned when the request body is malformed or
	// missing required fields.
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrInvalidCredentials is returned for a failed login. The description
	// is identical whether the account exists or not.
	ErrInvalidCredentials = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCredentials,
		Description: "invalid credentials",
	}

	// ErrInvalidToken is returned when an access token is missing, invalid,
	// expired or revoked.
	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the access token is missing, invalid, expired or revoked",
	}

	// ErrInvalidGrant is returned when a refresh token or MFA challenge
	// token is invalid, expired, or already used.
	ErrInvalidGrant = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidGrant,
		Description: "the presented token is invalid, expired, or already used",
	}

	// ErrAccountLocked is returned while a lockout from repeated failed
	// logins is in effect.
	ErrAccountLocked = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeAccountLocked,
		Description: "account temporarily locked after repeated failed logins",
	}

	// ErrAccountDisabled is returned for deactivated accounts.
	ErrAccountDisabled = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeAccountDisabled,
		Description: "account is disabled",
	}

	// ErrServerError is returned for unexpected internal failures.
	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// NewAPIError creates an APIError with a custom description.
func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Description: description}
}

// MFARequiredError is returned when the password checked out but the login
// still needs a second factor. It carries the single-use challenge token to
// redeem and a pre-auth token accepted only by the MFA endpoints. Served as
// HTTP 409 Conflict: the request was valid but cannot complete in one step.
type MFARequiredError struct {
	// MFAToken is the opaque challenge token for the completion endpoint.
	// Empty when SetupRequired is set.
	MFAToken string `json:"mfa_token,omitempty"`

	// PreAuthToken authenticates the user to the MFA enrollment endpoints
	// and nothing else.
	PreAuthToken string `json:"pre_auth_token"`

	// SetupRequired is set when the account's role mandates MFA but no
	// authenticator is enrolled yet.
	SetupRequired bool `json:"mfa_setup_required,omitempty"`

	// ExpiresIn is the challenge lifetime in seconds.
	ExpiresIn int `json:"expires_in"`
}

// Error implements the error interface.
func (e *MFARequiredError) Error() string {
	if e.SetupRequired {
		return "MFA enrollment required before login can complete"
	}
	return "MFA required to complete login"
}

// WriteError writes the MFA challenge as a 409 Conflict.
func (e *MFARequiredError) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)

	code := ErrorCodeMFARequired
	if e.SetupRequired {
		code = ErrorCodeMFASetupRequired
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":              code,
		"error_description":  e.Error(),
		"mfa_token":          e.MFAToken,
		"pre_auth_token":     e.PreAuthToken,
		"mfa_setup_required": e.SetupRequired,
		"expires_in":         e.ExpiresIn,
	})
}

// parseErrorResponse turns a non-2xx HTTP response into a typed error.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// 409 carries the MFA continuation
	if resp.StatusCode == http.StatusConflict {
		var mfaResp struct {
			Error         string `json:"error"`
			MFAToken      string `json:"mfa_token"`
			PreAuthToken  string `json:"pre_auth_token"`
			SetupRequired bool   `json:"mfa_setup_required"`
			ExpiresIn     int    `json:"expires_in"`
		}
		if err := json.Unmarshal(body, &mfaResp); err == nil {
			if mfaResp.Error == ErrorCodeMFARequired || mfaResp.Error == ErrorCodeMFASetupRequired {
				return &MFARequiredError{
					MFAToken:      mfaResp.MFAToken,
					PreAuthToken:  mfaResp.PreAuthToken,
					SetupRequired: mfaResp.SetupRequired,
					ExpiresIn:     mfaResp.ExpiresIn,
				}
			}
		}
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
