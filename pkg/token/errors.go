package token

import "errors"

var (
	// ErrTokenInvalid indicates a malformed, forged, or mis-purposed token.
	ErrTokenInvalid = errors.New("token: invalid")

	// ErrTokenExpired indicates an authentic token past its expiry.
	ErrTokenExpired = errors.New("token: expired")

	// ErrInvalidSecret indicates a codec secret shorter than 32 bytes.
	ErrInvalidSecret = errors.New("token: secret must be at least 32 bytes")
)
