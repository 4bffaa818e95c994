package domain

import "time"

// MFASession is a pending or consumed MFA challenge. The raw challenge token
// is only ever returned to the client; the store keeps its fingerprint.
type MFASession struct {
	ID        string
	UserID    string
	TokenHash string // SHA-256 fingerprint of the challenge token
	Used      bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its validity window. The
// boundary instant itself counts as expired.
func (s MFASession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// MFAEnrollment is returned when a user starts TOTP enrollment. The
// provisioning URI is rendered as a QR code client-side; rendering itself
// is out of scope here.
type MFAEnrollment struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	Issuer          string `json:"issuer"`
	Account         string `json:"account"`
}
