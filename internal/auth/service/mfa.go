package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veridianhq/idverify/internal/auth/domain"
	"github.com/veridianhq/idverify/internal/auth/store"
	"github.com/veridianhq/idverify/pkg/cryptox"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	backupCodeCount = 10                   // Number of backup codes to generate
	backupCodeBytes = cryptox.TokenSize128 // 128-bit entropy for backup codes

	totpPeriod = 30
	totpSkew   = 1 // accept one period of clock drift either side
)

var (
	ErrInvalidTOTPCode   = errors.New("invalid TOTP code")
	ErrMFANotEnabled     = errors.New("MFA not enabled for this user")
	ErrMFANotEnrolled    = errors.New("MFA not enrolled for this user")
	ErrMFAAlreadyEnabled = errors.New("MFA already enabled for this user")
)

// MFAService manages TOTP enrollment, verification and backup codes.
// Secrets are sealed with Cipher before they touch the store and only
// unsealed transiently for code validation.
type MFAService struct {
	Store  store.Store
	Cipher *cryptox.FieldCipher
	Issuer string // Issuer name for TOTP provisioning URIs (e.g., "IDVerify")
}

// EnrollTOTP generates a TOTP secret for the user and returns it along with
// the provisioning URI. This does NOT enable MFA yet - the user must verify
// a code first via ActivateTOTP.
func (s *MFAService) EnrollTOTP(ctx context.Context, userID string) (domain.MFAEnrollment, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("failed to load user: %w", err)
	}
	if user.MFAEnabled {
		return domain.MFAEnrollment{}, ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Username,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	// Seal the secret before it is persisted. Re-enrolling before
	// activation simply replaces the pending secret.
	sealed, err := s.Cipher.EncryptString(key.Secret())
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("failed to seal MFA secret: %w", err)
	}
	if err := s.Store.Users().UpdateMFASecret(ctx, userID, sealed); err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("failed to store MFA secret: %w", err)
	}

	return domain.MFAEnrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		Issuer:          s.Issuer,
		Account:         user.Username,
	}, nil
}

// ActivateTOTP verifies a TOTP code against the pending secret and enables
// MFA for the user if valid. It also generates backup codes, stores their
// fingerprints, and returns the plaintext codes for one-time display.
func (s *MFAService) ActivateTOTP(ctx context.Context, userID string, code string) ([]string, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}
	if user.MFASecret == nil || *user.MFASecret == "" {
		return nil, ErrMFANotEnrolled
	}

	if err := s.checkTOTP(code, *user.MFASecret); err != nil {
		return nil, err
	}

	backupCodes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}

	// Store backup code fingerprints and enable MFA in a transaction
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		for _, c := range backupCodes {
			if err := tx.BackupCodes().CreateBackupCode(ctx, userID, cryptox.FingerprintToken(c)); err != nil {
				return fmt.Errorf("failed to store backup code: %w", err)
			}
		}
		if err := tx.Users().EnableMFA(ctx, userID); err != nil {
			return fmt.Errorf("failed to enable MFA: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return backupCodes, nil
}

// VerifyLoginCode checks a second-factor code during login completion.
// A TOTP code is tried first; on mismatch the code is consumed as a
// single-use backup code. Both failing yields ErrInvalidTOTPCode.
func (s *MFAService) VerifyLoginCode(ctx context.Context, userID string, code string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if !user.MFAEnabled || user.MFASecret == nil || *user.MFASecret == "" {
		return ErrMFANotEnabled
	}

	if err := s.checkTOTP(code, *user.MFASecret); err == nil {
		return nil
	} else if !errors.Is(err, ErrInvalidTOTPCode) {
		return err
	}

	consumed, err := s.Store.BackupCodes().ConsumeBackupCode(ctx, userID, cryptox.FingerprintToken(code))
	if err != nil {
		return fmt.Errorf("failed to consume backup code: %w", err)
	}
	if !consumed {
		return ErrInvalidTOTPCode
	}
	return nil
}

// RegenerateBackupCodes replaces the user's backup codes after verifying a
// TOTP code, invalidating any unused codes from the previous batch.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, userID string, totpCode string) ([]string, error) {
	if err := s.verifyEnabledTOTP(ctx, userID, totpCode); err != nil {
		return nil, err
	}

	backupCodes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete old backup codes: %w", err)
		}
		for _, c := range backupCodes {
			if err := tx.BackupCodes().CreateBackupCode(ctx, userID, cryptox.FingerprintToken(c)); err != nil {
				return fmt.Errorf("failed to store backup code: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return backupCodes, nil
}

// RemoveMFA disables MFA for a user after verifying a TOTP code, clearing
// the stored secret and all backup codes.
func (s *MFAService) RemoveMFA(ctx context.Context, userID string, totpCode string) error {
	if err := s.verifyEnabledTOTP(ctx, userID, totpCode); err != nil {
		return err
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete backup codes: %w", err)
		}
		if err := tx.Users().DisableMFA(ctx, userID); err != nil {
			return fmt.Errorf("failed to disable MFA: %w", err)
		}
		return nil
	})
}

// verifyEnabledTOTP checks a TOTP code for a user that already has MFA
// enabled. Backup codes are deliberately not accepted here.
func (s *MFAService) verifyEnabledTOTP(ctx context.Context, userID string, code string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if !user.MFAEnabled || user.MFASecret == nil || *user.MFASecret == "" {
		return ErrMFANotEnabled
	}
	return s.checkTOTP(code, *user.MFASecret)
}

// checkTOTP unseals the stored secret and validates a code against it.
func (s *MFAService) checkTOTP(code, sealedSecret string) error {
	secret, err := s.Cipher.DecryptString(sealedSecret)
	if err != nil {
		return fmt.Errorf("failed to unseal MFA secret: %w", err)
	}

	valid, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		return ErrInvalidTOTPCode
	}
	return nil
}

func generateBackupCodes() ([]string, error) {
	codes := make([]string, backupCodeCount)
	for i := range backupCodeCount {
		c, err := cryptox.GenerateToken(backupCodeBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		codes[i] = c
	}
	return codes, nil
}
