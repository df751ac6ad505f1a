// Package activation governs the credential lifecycle of a tenant's mobile
// access: temp-code onboarding, first-time login, passcode changes, and
// biometric opt-in.
package activation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gestiloc/gestiloc/internal/credential"
	"github.com/gestiloc/gestiloc/internal/passcode"
)

// DefaultTempCodeTTL is how long a verification code stays usable.
const DefaultTempCodeTTL = 15 * time.Minute

// Service drives activation state transitions over the credential store.
type Service struct {
	repo        credential.Repository
	tempCodeTTL time.Duration
	now         func() time.Time
}

// NewService creates an activation service bound to a credential repository.
func NewService(repo credential.Repository, tempCodeTTL time.Duration) *Service {
	if tempCodeTTL <= 0 {
		tempCodeTTL = DefaultTempCodeTTL
	}
	return &Service{repo: repo, tempCodeTTL: tempCodeTTL, now: time.Now}
}

// WithNow overrides the clock, used by expiry tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// RequestCode generates a fresh verification code for a not-yet-activated
// record, overwriting any prior code, and returns the plaintext for
// out-of-band delivery. Activated records are treated as not found so the
// endpoint does not reveal activation state.
func (s *Service) RequestCode(ctx context.Context, phone string) (string, error) {
	rec, err := s.repo.FindByPhone(ctx, phone)
	if err != nil {
		return "", mapStoreErr(err)
	}
	if rec.IsActivated {
		return "", ErrNotFound
	}

	code, err := passcode.GenerateCode()
	if err != nil {
		return "", err
	}
	hash, err := passcode.Hash(code)
	if err != nil {
		return "", fmt.Errorf("hash temp code: %w", err)
	}
	expires := s.now().Add(s.tempCodeTTL)
	err = s.repo.Update(ctx, rec.TenantID, credential.Update{
		TempCodeHash:      hash,
		TempCodeExpiresAt: &expires,
	})
	if err != nil {
		return "", mapStoreErr(err)
	}
	return code, nil
}

// Authenticate verifies a login attempt. Pending records are checked against
// the temp code with strict expiry; activated records against the permanent
// passcode. A failed or successful comparison never consumes the temp code --
// only ChangePasscode clears it.
func (s *Service) Authenticate(ctx context.Context, phone, secret string) (credential.Record, error) {
	rec, err := s.repo.FindByPhone(ctx, phone)
	if err != nil {
		return credential.Record{}, mapStoreErr(err)
	}

	if !rec.IsActivated {
		if len(rec.TempCodeHash) == 0 {
			return credential.Record{}, ErrInvalidCredential
		}
		if !rec.TempCodeValid(s.now()) {
			return credential.Record{}, ErrExpiredCode
		}
		if err := passcode.Verify(secret, rec.TempCodeHash); err != nil {
			return credential.Record{}, ErrInvalidCredential
		}
		return rec, nil
	}

	if err := passcode.Verify(secret, rec.PasscodeHash); err != nil {
		return credential.Record{}, ErrInvalidCredential
	}
	return rec, nil
}

// AuthenticateBiometric authorizes a passcode-free login. It only confirms
// that an activated, biometric-enabled record exists; the biometric check
// itself happened on the device before this call.
func (s *Service) AuthenticateBiometric(ctx context.Context, phone string) (credential.Record, error) {
	rec, err := s.repo.FindByPhone(ctx, phone)
	if err != nil {
		return credential.Record{}, mapStoreErr(err)
	}
	if !rec.IsActivated || !rec.BiometricEnabled {
		return credential.Record{}, ErrNotFound
	}
	return rec, nil
}

// ChangePasscode stores a new passcode hash, marks the record activated, and
// clears the temp-code fields. Already-activated tenants must present their
// current passcode; first-time activation relies on the session obtained via
// the temp-code login.
func (s *Service) ChangePasscode(ctx context.Context, tenantID, current, next string) error {
	rec, err := s.repo.FindByTenant(ctx, tenantID)
	if err != nil {
		return mapStoreErr(err)
	}
	if rec.IsActivated {
		if err := passcode.Verify(current, rec.PasscodeHash); err != nil {
			return ErrInvalidCredential
		}
	}

	hash, err := passcode.Hash(next)
	if err != nil {
		return ErrInvalidCredential
	}
	activated := true
	err = s.repo.Update(ctx, tenantID, credential.Update{
		PasscodeHash:  hash,
		IsActivated:   &activated,
		ClearTempCode: true,
	})
	if err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// EnableBiometric opts an activated tenant into biometric login. The toggle
// itself requires no passcode re-entry; the caller already holds a session.
func (s *Service) EnableBiometric(ctx context.Context, tenantID string) error {
	rec, err := s.repo.FindByTenant(ctx, tenantID)
	if err != nil {
		return mapStoreErr(err)
	}
	if !rec.IsActivated {
		return ErrNotFound
	}
	enabled := true
	if err := s.repo.Update(ctx, tenantID, credential.Update{BiometricEnabled: &enabled}); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

func mapStoreErr(err error) error {
	if errors.Is(err, credential.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
