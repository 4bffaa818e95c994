package service

import (
	"context"
	"errors"

	"github.com/veridianhq/idverify/internal/auth/domain"
	"github.com/veridianhq/idverify/internal/auth/store"
)

var ErrInvalidRole = errors.New("invalid_role")

type UserService struct {
	Store store.Store
	Audit *AuditService
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, userID)
}

// SetRole assigns a new role to a user. Admin-only at the HTTP layer;
// self-registration can never reach this. Tokens issued before the change
// keep their old role claim until they expire or are refreshed.
func (s *UserService) SetRole(ctx context.Context, userID string, role domain.Role) (domain.User, error) {
	if !role.Valid() {
		return domain.User{}, ErrInvalidRole
	}
	if err := s.Store.Users().UpdateRole(ctx, userID, role); err != nil {
		return domain.User{}, err
	}
	s.Audit.Record(ctx, userID, AuditActionRoleChange, domain.AuditStatusSuccess, "role set to "+string(role))
	return s.Store.Users().GetUserByID(ctx, userID)
}
