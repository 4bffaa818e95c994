package http

import (
	"net/http"

	"github.com/veridianhq/idverify/internal/auth/service"
	"github.com/veridianhq/idverify/pkg/authsdk"
	"github.com/veridianhq/idverify/pkg/httpx"
	"github.com/veridianhq/idverify/pkg/slogx"
)

type UserInfoHandler struct {
	UserService *service.UserService
}

// ServeHTTP returns the authenticated account's public shape. The MFA
// secret and credential hash never appear here regardless of state.
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	user, err := h.UserService.GetUserByID(ctx, userID)
	if err != nil {
		log.Warn("failed to load user", "user_id", userID, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	response := authsdk.UserResponse{
		UserID:     user.ID,
		Email:      user.Email,
		Username:   user.Username,
		Role:       string(user.Role),
		Active:     user.Active,
		MFAEnabled: user.MFAEnabled,
		LastLogin:  user.LastLogin,
		CreatedAt:  user.CreatedAt,
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}
