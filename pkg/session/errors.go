package session

import "errors"

var (
	// ErrSessionNotFound indicates no live session matches the token.
	// Expired and revoked sessions report the same way.
	ErrSessionNotFound = errors.New("session.not_found")

	// ErrInvalidSession indicates a malformed session record.
	ErrInvalidSession = errors.New("session.invalid")

	// ErrTokenGeneration indicates token generation failed.
	ErrTokenGeneration = errors.New("session.token_generation_failed")
)
