package domain

import "time"

// AuditEvent is a write-once security trail record. Appending one is
// fire-and-forget from the auth flows: a failed append is logged but never
// aborts the operation being audited.
type AuditEvent struct {
	ID           string
	UserID       string
	Action       string // e.g. "login", "register", "mfa_verify"
	ResourceType string
	ResourceID   string
	Details      string // sanitized free-form JSON, never credentials or secrets
	IPAddress    string
	Status       string // "success" or "failure"
	CreatedAt    time.Time
}

const (
	AuditStatusSuccess = "success"
	AuditStatusFailure = "failure"
)
