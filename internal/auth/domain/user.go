package domain

import "time"

// Role is the coarse authorization level of a user.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleUser     Role = "user"
	RoleVerifier Role = "verifier"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleVerifier:
		return true
	}
	return false
}

// MFAMandatory reports whether the role forces MFA regardless of the user's
// own enrollment choice. Admin accounts always step through MFA.
func (r Role) MFAMandatory() bool {
	return r == RoleAdmin
}

type User struct {
	ID           string
	Email        string // globally unique
	Username     string // globally unique
	PasswordHash string // argon2id encoded
	Role         Role
	Active       bool

	MFAEnabled  bool
	MFAVerified bool    // first TOTP code confirmed after enrollment
	MFASecret   *string // TOTP secret, AES-GCM sealed at rest (nullable)

	FailedLogins int        // consecutive failed password attempts
	LockedUntil  *time.Time // account lock expiry after too many failures

	LastLogin *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RequiresMFA reports whether a login for this user must produce an MFA
// proof before full tokens are issued.
func (u User) RequiresMFA() bool {
	return u.Role.MFAMandatory() || u.MFAEnabled
}

// Locked reports whether the account is currently locked out.
func (u User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}
