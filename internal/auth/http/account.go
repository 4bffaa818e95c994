package http

import (
	"context"
	"net/http"

	"github.com/veridianhq/idverify/internal/auth/service"
	"github.com/veridianhq/idverify/pkg/authsdk"
	"github.com/veridianhq/idverify/pkg/httpx"
)

type AccountHandler struct {
	AuthService  *service.AuthService
	AuditService *service.AuditService
}

// HandleChangePassword swaps the password after proving the current one.
// The presented access token is revoked as part of the change, so the
// client must log in again.
func (h *AccountHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.ChangePasswordRequest
	if !readJSON(w, r, &req) {
		return
	}

	jtis := presentedJTIs(ctx)
	if err := h.AuthService.ChangePassword(ctx, userID, req.CurrentPassword, req.NewPassword, jtis...); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete removes the account after re-proving the password. The
// presented token's ledger entry outlives the account.
func (h *AccountHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.DeleteAccountRequest
	if !readJSON(w, r, &req) {
		return
	}

	jtis := presentedJTIs(ctx)
	if err := h.AuthService.DeleteAccount(ctx, userID, req.Password, jtis...); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleActivity returns the caller's recent security events.
func (h *AccountHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	events, err := h.AuditService.RecentActivity(ctx, userID, 50)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := authsdk.ActivityResponse{Events: make([]authsdk.AuditEventResponse, 0, len(events))}
	for _, ev := range events {
		out.Events = append(out.Events, authsdk.AuditEventResponse{
			Action:    ev.Action,
			Status:    ev.Status,
			Details:   ev.Details,
			IPAddress: ev.IPAddress,
			CreatedAt: ev.CreatedAt,
		})
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, out)
}

// presentedJTIs collects the token id of the request's access token so the
// account mutations can revoke it alongside the change.
func presentedJTIs(ctx context.Context) []string {
	if claims, ok := httpx.ClaimsFromContext(ctx); ok {
		return []string{claims.ID}
	}
	return nil
}
