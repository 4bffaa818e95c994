package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/veridianhq/idverify/internal/auth/domain"
	"github.com/veridianhq/idverify/internal/auth/service"
	"github.com/veridianhq/idverify/internal/auth/store/drivers/sqlite"
	"github.com/veridianhq/idverify/pkg/authsdk"
	"github.com/veridianhq/idverify/pkg/cryptox"
	"github.com/veridianhq/idverify/pkg/httpx"
	"github.com/veridianhq/idverify/pkg/jwtx"
	"github.com/veridianhq/idverify/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// Every request in these tests shares one client IP, so the per-IP
	// brute force limits would starve unrelated tests of each other's quota.
	relaxed := httpx.RateLimitConfig{RequestsPerWindow: 10000, Window: time.Minute, Burst: 10000}
	httpx.StrictLimit = relaxed
	httpx.ModerateLimit = relaxed
	httpx.LenientLimit = relaxed
	os.Exit(m.Run())
}

type testEnv struct {
	store  *sqlite.Store
	codec  *jwtx.Codec
	server *httptest.Server
	client *authsdk.SDKClient
}

func newTestEnv(t *testing.T) *testEnv {
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

	audit := &service.AuditService{Store: st}
	mfa := &service.MFAService{Store: st, Cipher: cipher, Issuer: "IDVerify"}
	sessions := &service.MFASessionService{Store: st}
	rev := &service.RevocationService{Store: st}
	auth := &service.AuthService{
		Codec:       codec,
		Store:       st,
		MFA:         mfa,
		Sessions:    sessions,
		Revocations: rev,
		Audit:       audit,
	}

	router := NewRouter(codec, "test", st, slogx.Discard())
	router.AuthService = auth
	router.UserService = &service.UserService{Store: st, Audit: audit}
	router.MFAService = mfa
	router.RevocationService = rev
	router.AuditService = audit
	router.ApplyRoutes()

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{
		store:  st,
		codec:  codec,
		server: server,
		client: authsdk.NewSDKClient(server.URL),
	}
}

const testPassword = "Correct-Horse-Battery-9"

func totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestRegisterLoginRefreshLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.client.Register(ctx, "alice@example.com", "alice", testPassword)
	require.NoError(t, err)
	require.Equal(t, "user", user.Role)
	require.False(t, user.MFAEnabled)

	sess, err := env.client.Login(ctx, "alice@example.com", testPassword)
	require.NoError(t, err)

	info, err := sess.UserInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, user.UserID, info.UserID)
	require.Equal(t, "alice", info.Username)

	// Force a refresh by rebuilding the session with an expired access TTL
	refreshed := env.client.NewSessionFromTokens(sess.AccessToken(), sess.RefreshToken(), 0)
	info, err = refreshed.UserInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, user.UserID, info.UserID)

	require.NoError(t, sess.Logout(ctx))

	_, err = sess.UserInfo(ctx)
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestRegisterConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client.Register(ctx, "alice@example.com", "alice", testPassword)
	require.NoError(t, err)

	_, err = env.client.Register(ctx, "alice@example.com", "someone", testPassword)
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, authsdk.ErrorCodeConflict, apiErr.Code)
	require.Equal(t, http.StatusConflict, apiErr.StatusCode)
}

func TestLoginBadPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client.Register(ctx, "alice@example.com", "alice", testPassword)
	require.NoError(t, err)

	_, err = env.client.Login(ctx, "alice@example.com", "wrong password")
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, authsdk.ErrorCodeInvalidCredentials, apiErr.Code)
}

func TestMFAEnrollmentAndChallengedLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client.Register(ctx, "alice@example.com", "alice", testPassword)
	require.NoError(t, err)
	sess, err := env.client.Login(ctx, "alice@example.com", testPassword)
	require.NoError(t, err)

	enrollment, err := sess.EnrollTOTP(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)

	codes, err := sess.VerifyTOTP(ctx, totpCode(t, enrollment.Secret))
	require.NoError(t, err)
	require.Len(t, codes.BackupCodes, 10)

	// Next login is challenged instead of returning tokens
	_, err = env.client.Login(ctx, "alice@example.com", testPassword)
	var mfaErr *authsdk.MFARequiredError
	require.ErrorAs(t, err, &mfaErr)
	require.False(t, mfaErr.SetupRequired)
	require.NotEmpty(t, mfaErr.MFAToken)

	mfaSess, err := env.client.CompleteMFA(ctx, mfaErr.MFAToken, totpCode(t, enrollment.Secret))
	require.NoError(t, err)

	info, err := mfaSess.UserInfo(ctx)
	require.NoError(t, err)
	require.True(t, info.MFAEnabled)

	// The challenge token is single-use
	_, err = env.client.CompleteMFA(ctx, mfaErr.MFAToken, totpCode(t, enrollment.Secret))
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, authsdk.ErrorCodeInvalidGrant, apiErr.Code)
}

func TestMFABackupCodeLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client.Register(ctx, "alice@example.com", "alice", testPassword)
	require.NoError(t, err)
	sess, err := env.client.Login(ctx, "alice@example.com", testPassword)
	require.NoError(t, err)
	enrollment, err := sess.EnrollTOTP(ctx)
	require.NoError(t, err)
	codes, err := sess.VerifyTOTP(ctx, totpCode(t, enrollment.Secret))
	require.NoError(t, err)

	_, err = env.client.Login(ctx, "alice@example.com", testPassword)
	var mfaErr *authsdk.MFARequiredError
	require.ErrorAs(t, err, &mfaErr)

	_, err = env.client.CompleteMFA(ctx, mfaErr.MFAToken, codes.BackupCodes[0])
	require.NoError(t, err)

	// The backup code is spent now
	_, err = env.client.Login(ctx, "alice@example.com", testPassword)
	require.ErrorAs(t, err, &mfaErr)
	_, err = env.client.CompleteMFA(ctx, mfaErr.MFAToken, codes.BackupCodes[0])
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestPreAuthTokenOnlyOpensMFAEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.client.Register(ctx, "root@example.com", "root", testPassword)
	require.NoError(t, err)
	require.NoError(t, env.store.Users().UpdateRole(ctx, user.UserID, domain.RoleAdmin))

	// Admin without MFA: login yields a setup challenge, not tokens
	_, err = env.client.Login(ctx, "root@example.com", testPassword)
	var mfaErr *authsdk.MFARequiredError
	require.ErrorAs(t, err, &mfaErr)
	require.True(t, mfaErr.SetupRequired)
	require.Empty(t, mfaErr.MFAToken)
	require.NotEmpty(t, mfaErr.PreAuthToken)

	preAuthSess := env.client.NewSessionFromTokens(mfaErr.PreAuthToken, "", mfaErr.ExpiresIn+60)

	// The pre-auth token does not open protected resources
	_, err = preAuthSess.UserInfo(ctx)
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	// But it does open enrollment
	enrollment, err := preAuthSess.EnrollTOTP(ctx)
	require.NoError(t, err)
	_, err = preAuthSess.VerifyTOTP(ctx, totpCode(t, enrollment.Secret))
	require.NoError(t, err)

	// Full login now walks the regular MFA leg
	_, err = env.client.Login(ctx, "root@example.com", testPassword)
	require.ErrorAs(t, err, &mfaErr)
	require.False(t, mfaErr.SetupRequired)

	adminSess, err := env.client.CompleteMFA(ctx, mfaErr.MFAToken, totpCode(t, enrollment.Secret))
	require.NoError(t, err)
	info, err := adminSess.UserInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, "admin", info.Role)
}

func TestChangePasswordRevokesSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client.Register(ctx, "alice@example.com", "alice", testPassword)
	require.NoError(t, err)
	sess, err := env.client.Login(ctx, "alice@example.com", testPassword)
	require.NoError(t, err)

	require.NoError(t, sess.ChangePassword(ctx, testPassword, "Brand-New-Passw0rd"))

	_, err = sess.UserInfo(ctx)
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	_, err = env.client.Login(ctx, "alice@example.com", "Brand-New-Passw0rd")
	require.NoError(t, err)
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client.Register(ctx, "alice@example.com", "alice", testPassword)
	require.NoError(t, err)
	sess, err := env.client.Login(ctx, "alice@example.com", testPassword)
	require.NoError(t, err)

	require.NoError(t, sess.DeleteAccount(ctx, testPassword))

	_, err = env.client.Login(ctx, "alice@example.com", testPassword)
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, authsdk.ErrorCodeInvalidCredentials, apiErr.Code)
}

func TestAccountActivityFeed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client.Register(ctx, "alice@example.com", "alice", testPassword)
	require.NoError(t, err)
	sess, err := env.client.Login(ctx, "alice@example.com", testPassword)
	require.NoError(t, err)

	activity, err := sess.Activity(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, activity.Events)

	seen := map[string]bool{}
	for _, ev := range activity.Events {
		seen[ev.Action] = true
		require.NotEmpty(t, ev.IPAddress)
	}
	require.True(t, seen["register"])
	require.True(t, seen["login"])
}

func TestRefreshTokenNotAcceptedAsAccessToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client.Register(ctx, "alice@example.com", "alice", testPassword)
	require.NoError(t, err)
	sess, err := env.client.Login(ctx, "alice@example.com", testPassword)
	require.NoError(t, err)

	// Present the refresh token on a protected endpoint
	crossed := env.client.NewSessionFromTokens(sess.RefreshToken(), "", 3600)
	_, err = crossed.UserInfo(ctx)
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	health, err := env.client.Health(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", health.Status)

	resp, err := http.Get(env.server.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMalformedJSONRejected(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.server.URL+"/v1/auth/login", "application/json",
		bytes.NewReader([]byte(`{"identifier": `)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownBearerTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bogus := env.client.NewSessionFromTokens("not-a-token", "", 3600)
	_, err := bogus.UserInfo(ctx)
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestStepUpGuardOnSensitiveOperations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client.Register(ctx, "alice@example.com", "alice", testPassword)
	require.NoError(t, err)
	sess, err := env.client.Login(ctx, "alice@example.com", testPassword)
	require.NoError(t, err)
	enrollment, err := sess.EnrollTOTP(ctx)
	require.NoError(t, err)
	_, err = sess.VerifyTOTP(ctx, totpCode(t, enrollment.Secret))
	require.NoError(t, err)

	// With MFA on, a password change without a fresh proof is refused
	err = sess.ChangePassword(ctx, testPassword, "Brand-New-Passw0rd")
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, authsdk.ErrorCodeMFARequired, apiErr.Code)

	// Arm the session with a challenge and retry
	require.NoError(t, sess.StepUp(ctx, totpCode(t, enrollment.Secret)))
	require.NoError(t, sess.ChangePassword(ctx, testPassword, "Brand-New-Passw0rd"))
}

func TestAdminRoleManagement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin, err := env.client.Register(ctx, "root@example.com", "root", testPassword)
	require.NoError(t, err)
	require.NoError(t, env.store.Users().UpdateRole(ctx, admin.UserID, domain.RoleAdmin))

	// Complete the admin's mandatory MFA setup, then log in fully
	_, err = env.client.Login(ctx, "root@example.com", testPassword)
	var mfaErr *authsdk.MFARequiredError
	require.ErrorAs(t, err, &mfaErr)
	pre := env.client.NewSessionFromTokens(mfaErr.PreAuthToken, "", mfaErr.ExpiresIn+60)
	enrollment, err := pre.EnrollTOTP(ctx)
	require.NoError(t, err)
	_, err = pre.VerifyTOTP(ctx, totpCode(t, enrollment.Secret))
	require.NoError(t, err)
	_, err = env.client.Login(ctx, "root@example.com", testPassword)
	require.ErrorAs(t, err, &mfaErr)
	adminSess, err := env.client.CompleteMFA(ctx, mfaErr.MFAToken, totpCode(t, enrollment.Secret))
	require.NoError(t, err)

	bob, err := env.client.Register(ctx, "bob@example.com", "bob", testPassword)
	require.NoError(t, err)

	updated, err := adminSess.SetUserRole(ctx, bob.UserID, "verifier")
	require.NoError(t, err)
	require.Equal(t, "verifier", updated.Role)

	// Non-admin callers are refused
	bobSess, err := env.client.Login(ctx, "bob@example.com", testPassword)
	require.NoError(t, err)
	_, err = bobSess.SetUserRole(ctx, admin.UserID, "user")
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	// Unknown target and unknown role
	_, err = adminSess.SetUserRole(ctx, "no-such-user", "user")
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	_, err = adminSess.SetUserRole(ctx, bob.UserID, "superuser")
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}
