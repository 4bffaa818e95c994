package http

import (
	"net/http"

	"github.com/veridianhq/idverify/internal/auth/domain"
	"github.com/veridianhq/idverify/internal/auth/service"
	"github.com/veridianhq/idverify/pkg/authsdk"
	"github.com/veridianhq/idverify/pkg/httpx"
)

// StepUpHeader carries the single-use challenge token that sensitive
// operations demand on top of a valid access token.
const StepUpHeader = "X-MFA-Token"

type MFAHandler struct {
	AuthService  *service.AuthService
	MFAService   *service.MFAService
	AuditService *service.AuditService
}

// HandleStepUpChallenge trades a current TOTP or backup code for a fresh
// challenge token to spend on one sensitive operation.
func (h *MFAHandler) HandleStepUpChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.MFAVerifyRequest
	if !readJSON(w, r, &req) {
		return
	}

	token, ttl, err := h.AuthService.CreateStepUpChallenge(ctx, userID, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.MFAChallengeResponse{
		MFAToken:  token,
		ExpiresIn: int(ttl.Seconds()),
	})
}

// requireFreshMFA guards a sensitive operation. Users with MFA must present
// a live challenge token in the step-up header; it is consumed even when
// the wrapped handler later fails, so every attempt costs one challenge.
func requireFreshMFA(auth *service.AuthService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := httpx.UserIDFromContext(ctx)
			if userID == "" {
				authsdk.ErrInvalidToken.WriteError(w)
				return
			}
			if err := auth.StepUp(ctx, userID, r.Header.Get(StepUpHeader)); err != nil {
				writeServiceError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HandleEnroll starts TOTP enrollment for the authenticated user. The
// response is the only time the plaintext secret leaves the service.
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	enrollment, err := h.MFAService.EnrollTOTP(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.AuditService.Success(ctx, userID, service.AuditActionMFAEnroll)

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.MFAEnrollResponse{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		Issuer:          enrollment.Issuer,
		Account:         enrollment.Account,
	})
}

// HandleVerify activates a pending enrollment with the first valid TOTP
// code and returns the one-time batch of backup codes.
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.MFAVerifyRequest
	if !readJSON(w, r, &req) {
		return
	}

	codes, err := h.MFAService.ActivateTOTP(ctx, userID, req.Code)
	if err != nil {
		h.AuditService.Failure(ctx, userID, service.AuditActionMFAActivate, "activation failed")
		writeServiceError(w, r, err)
		return
	}

	h.AuditService.Success(ctx, userID, service.AuditActionMFAActivate)

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.BackupCodesResponse{BackupCodes: codes})
}

// HandleRegenerateBackupCodes replaces the backup code batch after a TOTP
// check. The previous batch stops working immediately.
func (h *MFAHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.MFAVerifyRequest
	if !readJSON(w, r, &req) {
		return
	}

	codes, err := h.MFAService.RegenerateBackupCodes(ctx, userID, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.BackupCodesResponse{BackupCodes: codes})
}

// HandleRemove disables MFA after a TOTP check. Users whose role mandates
// MFA can remove it here but will be challenged to re-enroll on next login.
func (h *MFAHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.MFAVerifyRequest
	if !readJSON(w, r, &req) {
		return
	}

	if err := h.MFAService.RemoveMFA(ctx, userID, req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.AuditService.Record(ctx, userID, service.AuditActionMFARemove, domain.AuditStatusSuccess, "")
	w.WriteHeader(http.StatusNoContent)
}
