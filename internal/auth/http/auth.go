package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/veridianhq/idverify/internal/auth/service"
	"github.com/veridianhq/idverify/internal/auth/store"
	"github.com/veridianhq/idverify/pkg/authsdk"
	"github.com/veridianhq/idverify/pkg/httpx"
	"github.com/veridianhq/idverify/pkg/slogx"
)

// readJSON decodes a JSON request body, capping it at a sane size.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return false
	}
	return true
}

// writeServiceError maps service-layer sentinels onto the API's error
// vocabulary. Unknown errors become a 500 with no internal detail leaked.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		authsdk.ErrInvalidCredentials.WriteError(w)
	case errors.Is(err, service.ErrAccountLocked):
		authsdk.ErrAccountLocked.WriteError(w)
	case errors.Is(err, service.ErrAccountDisabled):
		authsdk.ErrAccountDisabled.WriteError(w)
	case errors.Is(err, service.ErrEmailTaken):
		authsdk.NewAPIError(http.StatusConflict, authsdk.ErrorCodeConflict, "email already registered").WriteError(w)
	case errors.Is(err, service.ErrUsernameTaken):
		authsdk.NewAPIError(http.StatusConflict, authsdk.ErrorCodeConflict, "username already taken").WriteError(w)
	case errors.Is(err, service.ErrWeakPassword):
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeWeakPassword, "password does not meet the minimum requirements").WriteError(w)
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrInvalidUsername),
		errors.Is(err, service.ErrInvalidRole):
		authsdk.ErrInvalidRequest.WriteError(w)
	case errors.Is(err, store.ErrNotFound):
		authsdk.NewAPIError(http.StatusNotFound, authsdk.ErrorCodeNotFound, "no such resource").WriteError(w)
	case errors.Is(err, service.ErrMFARequired):
		authsdk.NewAPIError(http.StatusUnauthorized, authsdk.ErrorCodeMFARequired, "a fresh MFA proof is required for this operation").WriteError(w)
	case errors.Is(err, service.ErrInvalidRefresh),
		errors.Is(err, service.ErrTokenRevoked),
		errors.Is(err, service.ErrMFASessionNotFound),
		errors.Is(err, service.ErrMFASessionExpired),
		errors.Is(err, service.ErrMFASessionUsed):
		authsdk.ErrInvalidGrant.WriteError(w)
	case errors.Is(err, service.ErrInvalidTOTPCode):
		authsdk.NewAPIError(http.StatusUnauthorized, authsdk.ErrorCodeInvalidGrant, "invalid verification code").WriteError(w)
	case errors.Is(err, service.ErrMFANotEnabled),
		errors.Is(err, service.ErrMFANotEnrolled),
		errors.Is(err, service.ErrMFAAlreadyEnabled):
		authsdk.NewAPIError(http.StatusConflict, authsdk.ErrorCodeConflict, err.Error()).WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("request failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

type RegisterHandler struct {
	AuthService *service.AuthService
}

// ServeHTTP creates a new account and returns its public shape. The role is
// always "user"; nothing in the request can influence it.
func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if !readJSON(w, r, &req) {
		return
	}

	user, err := h.AuthService.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusCreated, authsdk.UserResponse{
		UserID:     user.ID,
		Email:      user.Email,
		Username:   user.Username,
		Role:       string(user.Role),
		Active:     user.Active,
		MFAEnabled: user.MFAEnabled,
		CreatedAt:  user.CreatedAt,
	})
}

type LoginHandler struct {
	AuthService *service.AuthService
}

// ServeHTTP authenticates a password login. Accounts that owe an MFA proof
// get a 409 challenge instead of tokens.
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.AuthService.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if res.MFARequired {
		mfaErr := &authsdk.MFARequiredError{
			MFAToken:      res.MFAToken,
			PreAuthToken:  res.PreAuthToken,
			SetupRequired: res.MFASetupRequired,
			ExpiresIn:     int(res.ExpiresIn.Seconds()),
		}
		mfaErr.WriteError(w)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		TokenType:    res.Tokens.TokenType,
		ExpiresIn:    int(res.Tokens.ExpiresIn.Seconds()),
	})
}

type MFACompleteHandler struct {
	AuthService *service.AuthService
}

// ServeHTTP redeems an MFA challenge token with a TOTP or backup code and
// issues the full token pair.
func (h *MFACompleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.MFACompleteRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.MFAToken == "" || req.Code == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.AuthService.CompleteMFALogin(r.Context(), req.MFAToken, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int(pair.ExpiresIn.Seconds()),
	})
}

type RefreshHandler struct {
	AuthService *service.AuthService
}

// ServeHTTP exchanges a refresh token for a fresh access token. The refresh
// token is not rotated and is absent from the response.
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.AuthService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   pair.TokenType,
		ExpiresIn:   int(pair.ExpiresIn.Seconds()),
	})
}

type LogoutHandler struct {
	AuthService *service.AuthService
}

// ServeHTTP revokes the access token from the Authorization header plus any
// refresh token sent in the body.
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LogoutRequest
	if r.ContentLength > 0 && !readJSON(w, r, &req) {
		return
	}

	accessToken := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer"))
	if err := h.AuthService.Logout(r.Context(), accessToken, req.RefreshToken); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
