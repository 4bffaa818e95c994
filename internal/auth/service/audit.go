package service

import (
	"context"
	"time"

	"github.com/veridianhq/idverify/internal/auth/domain"
	"github.com/veridianhq/idverify/internal/auth/store"
	"github.com/veridianhq/idverify/pkg/idx"
	"github.com/veridianhq/idverify/pkg/slogx"
)

// Audit action names recorded by the auth flows.
const (
	AuditActionRegister       = "register"
	AuditActionLogin          = "login"
	AuditActionMFAChallenge   = "mfa_challenge"
	AuditActionMFAComplete    = "mfa_complete"
	AuditActionMFAEnroll      = "mfa_enroll"
	AuditActionMFAActivate    = "mfa_activate"
	AuditActionMFARemove      = "mfa_remove"
	AuditActionTokenRefresh   = "token_refresh"
	AuditActionLogout         = "logout"
	AuditActionPasswordChange = "password_change"
	AuditActionAccountDelete  = "account_delete"
	AuditActionRoleChange     = "role_change"
)

// AuditService records security-relevant events. Recording is best-effort:
// a failed append is logged and swallowed so audit storage problems never
// fail the flow being audited.
type AuditService struct {
	Store store.Store
}

// Record appends an audit event for a user action. The client address is
// picked up from the context when the transport layer tagged it via
// ContextWithRemoteAddr.
func (s *AuditService) Record(ctx context.Context, userID, action, status, detail string) {
	event := domain.AuditEvent{
		ID:        idx.New().String(),
		UserID:    userID,
		Action:    action,
		Status:    status,
		Details:   detail,
		IPAddress: remoteAddrFromContext(ctx),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Store.AuditEvents().AppendAuditEvent(ctx, event); err != nil {
		slogx.FromContext(ctx).Warn("failed to append audit event",
			"action", action,
			"status", status,
			"error", err,
		)
	}
}

// Success records a successful action.
func (s *AuditService) Success(ctx context.Context, userID, action string) {
	s.Record(ctx, userID, action, domain.AuditStatusSuccess, "")
}

// Failure records a failed action with a short reason.
func (s *AuditService) Failure(ctx context.Context, userID, action, detail string) {
	s.Record(ctx, userID, action, domain.AuditStatusFailure, detail)
}

type remoteAddrKey struct{}

// ContextWithRemoteAddr tags a context with the client address so audit
// events recorded downstream can carry it.
func ContextWithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey{}, addr)
}

func remoteAddrFromContext(ctx context.Context) string {
	addr, _ := ctx.Value(remoteAddrKey{}).(string)
	return addr
}

// RecentActivity returns the newest audit events for a user.
func (s *AuditService) RecentActivity(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error) {
	return s.Store.AuditEvents().ListAuditEventsForUser(ctx, userID, limit)
}
