package activation

import "errors"

var (
	// ErrNotFound indicates no credential record matches the request.
	ErrNotFound = errors.New("no credential record")
	// ErrInvalidCredential indicates a passcode or temp-code mismatch, or a
	// record not eligible for the requested transition.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrExpiredCode indicates the temp code exists but is past its expiry.
	ErrExpiredCode = errors.New("temporary code expired")
)
