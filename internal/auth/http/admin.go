package http

import (
	"net/http"

	"github.com/veridianhq/idverify/internal/auth/domain"
	"github.com/veridianhq/idverify/internal/auth/service"
	"github.com/veridianhq/idverify/pkg/authsdk"
	"github.com/veridianhq/idverify/pkg/httpx"
)

type AdminHandler struct {
	UserService *service.UserService
}

// HandleSetRole assigns a role to a user. Reachable only through the admin
// role guard; the caller's own tokens keep their old role claim until
// refresh.
func (h *AdminHandler) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	targetID := r.PathValue("id")
	if targetID == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	var req authsdk.UpdateRoleRequest
	if !readJSON(w, r, &req) {
		return
	}

	user, err := h.UserService.SetRole(ctx, targetID, domain.Role(req.Role))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserResponse{
		UserID:     user.ID,
		Email:      user.Email,
		Username:   user.Username,
		Role:       string(user.Role),
		Active:     user.Active,
		MFAEnabled: user.MFAEnabled,
		LastLogin:  user.LastLogin,
		CreatedAt:  user.CreatedAt,
	})
}
