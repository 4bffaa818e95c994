package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/veridianhq/idverify/internal/auth/domain"
	"github.com/veridianhq/idverify/internal/auth/store"
	"github.com/veridianhq/idverify/pkg/cryptox"
	"github.com/veridianhq/idverify/pkg/idx"
	"github.com/veridianhq/idverify/pkg/jwtx"
	"github.com/veridianhq/idverify/pkg/slogx"
)

const (
	// MinPasswordLength is the minimum accepted password length.
	MinPasswordLength = 8

	// MaxFailedLogins is how many consecutive bad passwords lock the account.
	MaxFailedLogins = 5

	// LockoutDuration is how long an account stays locked after too many
	// failed attempts.
	LockoutDuration = 15 * time.Minute
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountDisabled    = errors.New("account_disabled")
	ErrAccountLocked      = errors.New("account_locked")
	ErrEmailTaken         = errors.New("email_taken")
	ErrUsernameTaken      = errors.New("username_taken")
	ErrWeakPassword       = errors.New("weak_password")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrInvalidUsername    = errors.New("invalid_username")
	ErrInvalidRefresh     = errors.New("invalid_refresh_token")
	ErrTokenRevoked       = errors.New("token_revoked")
	ErrMFARequired        = errors.New("mfa_required")
)

// AuthService orchestrates the credential flows: registration, login with
// the optional MFA leg, token refresh, logout and account lifecycle. It owns
// no verification logic itself; it sequences the codec, the MFA services and
// the revocation ledger.
type AuthService struct {
	Codec       *jwtx.Codec
	Store       store.Store
	MFA         *MFAService
	Sessions    *MFASessionService
	Revocations *RevocationService
	Audit       *AuditService

	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// LoginResult is the outcome of a successful password check. Exactly one of
// the two shapes is populated: full tokens, or an MFA continuation carrying
// the challenge token and a pre-auth token that no protected resource will
// accept.
type LoginResult struct {
	Tokens *domain.TokenPair

	MFARequired      bool
	MFASetupRequired bool   // role mandates MFA but the user has not enrolled yet
	MFAToken         string // opaque single-use challenge token
	PreAuthToken     string // mfa_required-tagged token, valid only for MFA endpoints
	ExpiresIn        time.Duration
}

func (s *AuthService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *AuthService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

// Register creates a new account. Self-registration always produces a
// standard user; elevated roles are assigned out of band. The email and
// username conflict checks are authoritative at write time, so two
// concurrent registrations for the same email resolve to exactly one
// winner.
func (s *AuthService) Register(ctx context.Context, email, username, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)

	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, ErrInvalidEmail
	}
	if len(username) < 3 || len(username) > 64 {
		return domain.User{}, ErrInvalidUsername
	}
	if err := validatePassword(password); err != nil {
		return domain.User{}, err
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			return domain.User{}, ErrEmailTaken
		case errors.Is(err, store.ErrDuplicateUsername):
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	s.Audit.Success(ctx, user.ID, AuditActionRegister)
	return user, nil
}

// Login verifies primary credentials. Lookup failures and password
// mismatches both return ErrInvalidCredentials so the response never
// discloses whether the identifier exists. When the user must complete MFA,
// no full tokens are issued; the caller gets a challenge to redeem instead.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (LoginResult, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	user, err := s.lookupUser(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if !user.Active {
		return LoginResult{}, ErrAccountDisabled
	}
	if user.Locked(now) {
		s.Audit.Failure(ctx, user.ID, AuditActionLogin, "account locked")
		return LoginResult{}, ErrAccountLocked
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		if err := s.recordFailedLogin(ctx, user, now); err != nil {
			l.Error("failed to record login failure", "error", err)
		}
		s.Audit.Failure(ctx, user.ID, AuditActionLogin, "bad password")
		return LoginResult{}, ErrInvalidCredentials
	}

	if user.RequiresMFA() {
		return s.beginMFALogin(ctx, user, now)
	}

	if err := s.Store.Users().RecordLoginSuccess(ctx, user.ID, now); err != nil {
		l.Error("failed to record login success", "error", err)
	}

	pair, err := s.issueTokenPair(user, now)
	if err != nil {
		return LoginResult{}, err
	}

	s.Audit.Success(ctx, user.ID, AuditActionLogin)
	return LoginResult{Tokens: &pair}, nil
}

// beginMFALogin opens the second leg of a login for a user whose password
// checked out but who still owes an MFA proof.
func (s *AuthService) beginMFALogin(ctx context.Context, user domain.User, now time.Time) (LoginResult, error) {
	preAuth, claims, err := s.Codec.IssuePreAuth(user.ID, string(user.Role), jwtx.DefaultPreAuthTTL, now)
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to issue pre-auth token: %w", err)
	}

	// Role mandates MFA but nothing is enrolled: the pre-auth token lets
	// the user reach the enrollment endpoints and nothing else.
	if !user.MFAEnabled {
		s.Audit.Failure(ctx, user.ID, AuditActionLogin, "mfa setup required")
		return LoginResult{
			MFARequired:      true,
			MFASetupRequired: true,
			PreAuthToken:     preAuth,
			ExpiresIn:        claims.ExpiresAt.Time.Sub(now),
		}, nil
	}

	challenge, session, err := s.Sessions.Create(ctx, user.ID)
	if err != nil {
		return LoginResult{}, err
	}

	s.Audit.Success(ctx, user.ID, AuditActionMFAChallenge)
	return LoginResult{
		MFARequired:  true,
		MFAToken:     challenge,
		PreAuthToken: preAuth,
		ExpiresIn:    session.ExpiresAt.Sub(now),
	}, nil
}

// CompleteMFALogin redeems a challenge token together with a TOTP or backup
// code and issues the full token pair. The challenge is consumed before the
// code is checked, so a wrong code burns it and the user starts over at
// password login.
func (s *AuthService) CompleteMFALogin(ctx context.Context, challengeToken, code string) (domain.TokenPair, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	session, err := s.Sessions.Consume(ctx, challengeToken)
	if err != nil {
		return domain.TokenPair{}, err
	}

	if err := s.MFA.VerifyLoginCode(ctx, session.UserID, code); err != nil {
		s.Audit.Failure(ctx, session.UserID, AuditActionMFAComplete, "invalid code")
		return domain.TokenPair{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, session.UserID)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.Active {
		return domain.TokenPair{}, ErrAccountDisabled
	}

	if err := s.Store.Users().RecordLoginSuccess(ctx, user.ID, now); err != nil {
		l.Error("failed to record login success", "error", err)
	}

	pair, err := s.issueTokenPair(user, now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.Audit.Success(ctx, user.ID, AuditActionMFAComplete)
	return pair, nil
}

// CreateStepUpChallenge mints a fresh MFA challenge for an already
// authenticated user, to be spent on a single sensitive operation. The
// caller proves possession of the authenticator with a current TOTP or
// backup code before the challenge is created.
func (s *AuthService) CreateStepUpChallenge(ctx context.Context, userID, code string) (string, time.Duration, error) {
	now := time.Now().UTC()

	if err := s.MFA.VerifyLoginCode(ctx, userID, code); err != nil {
		s.Audit.Failure(ctx, userID, AuditActionMFAChallenge, "invalid code")
		return "", 0, err
	}

	challenge, session, err := s.Sessions.Create(ctx, userID)
	if err != nil {
		return "", 0, err
	}

	s.Audit.Success(ctx, userID, AuditActionMFAChallenge)
	return challenge, session.ExpiresAt.Sub(now), nil
}

// StepUp gates a sensitive operation behind a fresh MFA proof. Users
// without MFA pass through. For everyone else the challenge token is
// consumed here, so each guarded call costs one challenge; a reused or
// stale token fails with the session error that names why.
func (s *AuthService) StepUp(ctx context.Context, userID, challengeToken string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if !user.RequiresMFA() {
		return nil
	}
	if challengeToken == "" {
		return ErrMFARequired
	}

	session, err := s.Sessions.Consume(ctx, challengeToken)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return ErrMFASessionNotFound
	}
	return nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself stays valid until it expires or is revoked; only
// access tokens are re-minted here.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	now := time.Now().UTC()

	claims, err := s.Codec.VerifyRefresh(refreshToken)
	if err != nil {
		return domain.TokenPair{}, ErrInvalidRefresh
	}

	revoked, err := s.Revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if revoked {
		return domain.TokenPair{}, ErrTokenRevoked
	}

	user, err := s.Store.Users().GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidRefresh
		}
		return domain.TokenPair{}, err
	}
	if !user.Active {
		return domain.TokenPair{}, ErrAccountDisabled
	}

	access, _, err := s.Codec.Issue(user.ID, string(user.Role), jwtx.TypeAccess, s.accessTTL(), now)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("failed to issue access token: %w", err)
	}

	s.Audit.Success(ctx, user.ID, AuditActionTokenRefresh)
	return domain.TokenPair{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   s.accessTTL(),
	}, nil
}

// Logout revokes the presented access token, and the refresh token too when
// the client sends it along. Tokens that fail verification are ignored
// rather than rejected; logout is best-effort by design of the ledger, and
// repeating it is harmless.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	userID := ""
	var jtis []string

	if claims, err := s.Codec.Verify(accessToken); err == nil {
		userID = claims.Subject
		jtis = append(jtis, claims.ID)
	}
	if refreshToken != "" {
		if claims, err := s.Codec.VerifyRefresh(refreshToken); err == nil {
			if userID == "" {
				userID = claims.Subject
			}
			jtis = append(jtis, claims.ID)
		}
	}

	for _, jti := range jtis {
		if err := s.Revocations.Revoke(ctx, jti, userID, domain.RevocationReasonLogout); err != nil {
			return err
		}
	}

	if userID != "" {
		s.Audit.Success(ctx, userID, AuditActionLogout)
	}
	return nil
}

// ChangePassword swaps the password after proving the current one, then
// revokes the tokens the caller presented so stolen credentials cannot ride
// out the change.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, presentedJTIs ...string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if err := cryptox.VerifyPassword(currentPassword, user.PasswordHash); err != nil {
		s.Audit.Failure(ctx, userID, AuditActionPasswordChange, "bad current password")
		return ErrInvalidCredentials
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, userID, hash); err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		return s.Revocations.RevokeAllInTx(ctx, tx, userID, domain.RevocationReasonPasswordChange, presentedJTIs...)
	})
	if err != nil {
		return err
	}

	s.Audit.Success(ctx, userID, AuditActionPasswordChange)
	return nil
}

// DeleteAccount removes the user after proving the password. Challenge
// sessions and backup codes go with the row via foreign keys; the ledger
// entries for the presented tokens outlive the account on purpose, so
// tokens minted before deletion stay dead.
func (s *AuthService) DeleteAccount(ctx context.Context, userID, password string, presentedJTIs ...string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		s.Audit.Failure(ctx, userID, AuditActionAccountDelete, "bad password")
		return ErrInvalidCredentials
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := s.Revocations.RevokeAllInTx(ctx, tx, userID, domain.RevocationReasonAccountDeletion, presentedJTIs...); err != nil {
			return err
		}
		if err := tx.Users().DeleteUser(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Audit.Record(ctx, userID, AuditActionAccountDelete, domain.AuditStatusSuccess, "")
	return nil
}

// validatePassword enforces the password policy: at least
// MinPasswordLength characters drawn from upper case, lower case, digit
// and punctuation classes.
func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || r == ' ':
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return ErrWeakPassword
	}
	return nil
}

// lookupUser resolves a login identifier to a user. Anything containing an
// @ is treated as an email, everything else as a username.
func (s *AuthService) lookupUser(ctx context.Context, identifier string) (domain.User, error) {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return s.Store.Users().GetUserByEmail(ctx, strings.ToLower(identifier))
	}
	return s.Store.Users().GetUserByUsername(ctx, identifier)
}

// recordFailedLogin bumps the failure counter, locking the account once the
// threshold is crossed.
func (s *AuthService) recordFailedLogin(ctx context.Context, user domain.User, now time.Time) error {
	attempts := user.FailedLogins + 1
	var lockedUntil *time.Time
	if attempts >= MaxFailedLogins {
		until := now.Add(LockoutDuration)
		lockedUntil = &until
	}
	return s.Store.Users().RecordLoginFailure(ctx, user.ID, attempts, lockedUntil)
}

func (s *AuthService) issueTokenPair(user domain.User, now time.Time) (domain.TokenPair, error) {
	access, _, err := s.Codec.Issue(user.ID, string(user.Role), jwtx.TypeAccess, s.accessTTL(), now)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("failed to issue access token: %w", err)
	}
	refresh, _, err := s.Codec.Issue(user.ID, string(user.Role), jwtx.TypeRefresh, s.refreshTTL(), now)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("failed to issue refresh token: %w", err)
	}
	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.accessTTL(),
	}, nil
}
