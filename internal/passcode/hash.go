// Package passcode provides one-way hashing for tenant passcodes and
// temporary onboarding codes, plus generation of the numeric codes.
package passcode

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrMismatch indicates the secret does not match the stored digest.
var ErrMismatch = errors.New("secret does not match digest")

// Hash derives a salted, cost-factored digest of the secret. The same scheme
// covers permanent passcodes and temporary codes.
func Hash(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("secret is empty")
	}
	return bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
}

// Verify compares a secret against a digest in constant time with respect to
// the secret content. Returns ErrMismatch on any comparison failure.
func Verify(secret string, digest []byte) error {
	if len(digest) == 0 {
		return ErrMismatch
	}
	if err := bcrypt.CompareHashAndPassword(digest, []byte(secret)); err != nil {
		return ErrMismatch
	}
	return nil
}
