package credential

import "time"

// Record is the single persisted credential row for a tenant's mobile access.
// Hash fields never leave this subsystem.
type Record struct {
	TenantID              string
	Phone                 string
	PasscodeHash          []byte
	TempCodeHash          []byte
	TempCodeExpiresAt     *time.Time
	IsActivated           bool
	BiometricEnabled      bool
	RefreshToken          string
	RefreshTokenExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// TempCodeValid reports whether the record carries an unexpired temp code at
// the given instant. Expiry is strict: a code is invalid at its exact expiry.
func (r Record) TempCodeValid(now time.Time) bool {
	return len(r.TempCodeHash) > 0 && r.TempCodeExpiresAt != nil && r.TempCodeExpiresAt.After(now)
}

// Update carries a partial mutation of a Record. Nil fields are left
// untouched; ClearTempCode drops both temp-code columns together so they are
// always set or absent as a pair.
type Update struct {
	PasscodeHash          []byte
	TempCodeHash          []byte
	TempCodeExpiresAt     *time.Time
	ClearTempCode         bool
	IsActivated           *bool
	BiometricEnabled      *bool
	RefreshToken          *string
	RefreshTokenExpiresAt *time.Time
}
