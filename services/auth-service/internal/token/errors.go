package token

import "errors"

var (
	// ErrTokenExpired is returned when a token is past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid is returned for malformed tokens or bad signatures.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenRevoked is returned when a token is on the blacklist,
	// regardless of its cryptographic validity.
	ErrTokenRevoked = errors.New("token revoked")
)
