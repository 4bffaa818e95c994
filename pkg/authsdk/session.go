package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// refreshSkew is how long before actual expiry a token counts as expired,
// absorbing clock drift and request latency.
const refreshSkew = 30 * time.Second

// Session is an authenticated connection to the service. It is safe for
// concurrent use; the access token is refreshed at most once at a time.
type Session struct {
	client *SDKClient

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	stepUpToken  string
}

func newSession(c *SDKClient, tokens TokenResponse) *Session {
	return &Session{
		client:       c,
		accessToken:  tokens.AccessToken,
		refreshToken: tokens.RefreshToken,
		expiresAt:    time.Now().Add(time.Duration(tokens.ExpiresIn)*time.Second - refreshSkew),
	}
}

// AccessToken returns the current access token without triggering a refresh.
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

// RefreshToken returns the refresh token, e.g. for persisting the session.
func (s *Session) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshToken
}

// getValidToken returns the access token, refreshing it first when it is at
// or past the skew-adjusted expiry.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if s.refreshToken == "" {
		return "", ErrInvalidToken
	}

	var tokens TokenResponse
	err := s.client.postJSON(ctx, "/v1/auth/refresh", RefreshRequest{
		RefreshToken: s.refreshToken,
	}, &tokens, http.StatusOK)
	if err != nil {
		return "", fmt.Errorf("failed to refresh access token: %w", err)
	}

	s.accessToken = tokens.AccessToken
	s.expiresAt = time.Now().Add(time.Duration(tokens.ExpiresIn)*time.Second - refreshSkew)
	return s.accessToken, nil
}

// UserInfo returns the authenticated account.
func (s *Session) UserInfo(ctx context.Context) (UserResponse, error) {
	var user UserResponse
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/userinfo", nil)
	if err != nil {
		return UserResponse{}, err
	}
	err = decodeJSON(resp, &user, http.StatusOK)
	return user, err
}

// Logout revokes both tokens. The session is unusable afterwards.
func (s *Session) Logout(ctx context.Context) error {
	resp, err := s.postAuthJSON(ctx, "/v1/auth/logout", LogoutRequest{
		RefreshToken: s.RefreshToken(),
	})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// ChangePassword swaps the password; the server revokes the session's
// tokens, so callers should log in again afterwards.
func (s *Session) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	resp, err := s.postAuthJSON(ctx, "/v1/account/password", ChangePasswordRequest{
		CurrentPassword: currentPassword,
		NewPassword:     newPassword,
	})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// DeleteAccount permanently removes the account.
func (s *Session) DeleteAccount(ctx context.Context, password string) error {
	payload, err := json.Marshal(DeleteAccountRequest{Password: password})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, "/v1/account", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// Activity returns the account's recent security events, newest first.
func (s *Session) Activity(ctx context.Context) (ActivityResponse, error) {
	var activity ActivityResponse
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/account/activity", nil)
	if err != nil {
		return ActivityResponse{}, err
	}
	err = decodeJSON(resp, &activity, http.StatusOK)
	return activity, err
}

// EnrollTOTP starts MFA enrollment and returns the provisioning material.
func (s *Session) EnrollTOTP(ctx context.Context) (MFAEnrollResponse, error) {
	var enrollment MFAEnrollResponse
	resp, err := s.postAuthJSON(ctx, "/v1/mfa/totp/enroll", struct{}{})
	if err != nil {
		return MFAEnrollResponse{}, err
	}
	err = decodeJSON(resp, &enrollment, http.StatusOK)
	return enrollment, err
}

// VerifyTOTP activates a pending enrollment and returns the one-time batch
// of backup codes.
func (s *Session) VerifyTOTP(ctx context.Context, code string) (BackupCodesResponse, error) {
	var codes BackupCodesResponse
	resp, err := s.postAuthJSON(ctx, "/v1/mfa/totp/verify", MFAVerifyRequest{Code: code})
	if err != nil {
		return BackupCodesResponse{}, err
	}
	err = decodeJSON(resp, &codes, http.StatusOK)
	return codes, err
}

// RegenerateBackupCodes replaces the backup code batch after a TOTP check.
func (s *Session) RegenerateBackupCodes(ctx context.Context, code string) (BackupCodesResponse, error) {
	var codes BackupCodesResponse
	resp, err := s.postAuthJSON(ctx, "/v1/mfa/backup-codes", MFAVerifyRequest{Code: code})
	if err != nil {
		return BackupCodesResponse{}, err
	}
	err = decodeJSON(resp, &codes, http.StatusOK)
	return codes, err
}

// SetUserRole assigns a role to another user. The server rejects callers
// without the admin role.
func (s *Session) SetUserRole(ctx context.Context, userID, role string) (UserResponse, error) {
	var user UserResponse
	payload, err := json.Marshal(UpdateRoleRequest{Role: role})
	if err != nil {
		return UserResponse{}, fmt.Errorf("failed to encode request: %w", err)
	}
	resp, err := s.doAuthRequest(ctx, http.MethodPatch, "/v1/admin/users/"+userID+"/role", bytes.NewReader(payload))
	if err != nil {
		return UserResponse{}, err
	}
	err = decodeJSON(resp, &user, http.StatusOK)
	return user, err
}

// StepUp trades a current TOTP or backup code for a single-use challenge
// token and arms the session with it. The next request spends the token;
// sensitive operations like ChangePassword and DeleteAccount demand one
// when the account has MFA.
func (s *Session) StepUp(ctx context.Context, code string) error {
	var challenge MFAChallengeResponse
	resp, err := s.postAuthJSON(ctx, "/v1/mfa/challenge", MFAVerifyRequest{Code: code})
	if err != nil {
		return err
	}
	if err := decodeJSON(resp, &challenge, http.StatusOK); err != nil {
		return err
	}

	s.mu.Lock()
	s.stepUpToken = challenge.MFAToken
	s.mu.Unlock()
	return nil
}

// RemoveTOTP disables MFA after a TOTP check.
func (s *Session) RemoveTOTP(ctx context.Context, code string) error {
	payload, err := json.Marshal(MFAVerifyRequest{Code: code})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, "/v1/mfa/totp", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// doAuthRequest performs an HTTP request with the session's access token,
// refreshing it first if needed.
func (s *Session) doAuthRequest(
	ctx context.Context,
	method, path string,
	body io.Reader,
) (*http.Response, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, s.client.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// A step-up token is single-use on the server; drop it after one send.
	s.mu.Lock()
	if s.stepUpToken != "" {
		req.Header.Set("X-MFA-Token", s.stepUpToken)
		s.stepUpToken = ""
	}
	s.mu.Unlock()

	resp, err := s.client.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

func (s *Session) postAuthJSON(ctx context.Context, path string, reqBody any) (*http.Response, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return s.doAuthRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
}
