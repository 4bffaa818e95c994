package service

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/veridianhq/idverify/internal/auth/domain"
	"github.com/veridianhq/idverify/internal/auth/store/drivers/sqlite"
	"github.com/veridianhq/idverify/pkg/cryptox"
	"github.com/veridianhq/idverify/pkg/jwtx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store    *sqlite.Store
	codec    *jwtx.Codec
	auth     *AuthService
	mfa      *MFAService
	sessions *MFASessionService
	rev      *RevocationService
	audit    *AuditService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cryptox.SetPepperPath(filepath.Join(t.TempDir(), "test-pepper"))

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	codec, err := jwtx.NewCodec(bytes.Repeat([]byte("s"), 32), "idverify-test")
	require.NoError(t, err)

	cipher, err := cryptox.NewFieldCipher(bytes.Repeat([]byte("k"), cryptox.FieldKeySize))
	require.NoError(t, err)

	audit := &AuditService{Store: st}
	mfa := &MFAService{Store: st, Cipher: cipher, Issuer: "IDVerify"}
	sessions := &MFASessionService{Store: st}
	rev := &RevocationService{Store: st}

	return &harness{
		store:    st,
		codec:    codec,
		mfa:      mfa,
		sessions: sessions,
		rev:      rev,
		audit:    audit,
		auth: &AuthService{
			Codec:       codec,
			Store:       st,
			MFA:         mfa,
			Sessions:    sessions,
			Revocations: rev,
			Audit:       audit,
		},
	}
}

const testPassword = "Correct-Horse-Battery-9"

func (h *harness) register(t *testing.T, email, username string) domain.User {
	t.Helper()
	user, err := h.auth.Register(context.Background(), email, username, testPassword)
	require.NoError(t, err)
	return user
}

// enableMFA walks the real enrollment flow and returns the plaintext TOTP
// secret plus the one-time backup codes.
func (h *harness) enableMFA(t *testing.T, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	enr, err := h.mfa.EnrollTOTP(ctx, userID)
	require.NoError(t, err)

	codes, err := h.mfa.ActivateTOTP(ctx, userID, totpCode(t, enr.Secret))
	require.NoError(t, err)
	require.Len(t, codes, backupCodeCount)
	return enr.Secret, codes
}

func totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}
