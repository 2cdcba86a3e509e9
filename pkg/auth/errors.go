package auth

import "errors"

// Credential errors
var (
	// ErrAuthFailed covers every local credential failure. Unknown
	// identifier and wrong password are deliberately indistinguishable to
	// prevent account enumeration.
	ErrAuthFailed = errors.New("invalid credentials")

	ErrUserNotFound = errors.New("user not found")
	ErrNoPassword   = errors.New("account has no password credential")

	// ErrTokenConsumed is returned by a TokenStore when an action token id
	// is absent, expired, or was already spent.
	ErrTokenConsumed = errors.New("action token already consumed")
)

// Uniqueness conflicts
var (
	ErrUsernameTaken  = errors.New("username already taken")
	ErrEmailTaken     = errors.New("email already in use")
	ErrEmailUnchanged = errors.New("email unchanged")
)

// Provider errors
var (
	ErrUnknownProvider  = errors.New("unknown identity provider")
	ErrProviderLinked   = errors.New("provider already linked to another account")
	ErrNoProviderLink   = errors.New("no provider link found")
	ErrLastCredential   = errors.New("cannot unlink the only remaining credential")
	ErrUnverifiedEmail  = errors.New("email not verified by provider")
	ErrInvalidAssertion = errors.New("invalid provider assertion")
)
