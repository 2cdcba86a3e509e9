package auth

import (
	"time"

	"github.com/google/uuid"
)

// MethodLocal identifies sessions issued against a local password
// credential. Provider-issued sessions use the provider's name as the method.
const MethodLocal = "local"

// User represents an identity record. Password hashes are never embedded;
// they are read and written through dedicated Storage methods so a User value
// is always safe to log or serialize.
type User struct {
	ID             uuid.UUID
	Username       string // optional, mode-dependent
	Email          string
	EmailConfirmed bool
	CreatedAt      time.Time
}

// ProviderLink connects a local user to an external identity provider
// account.
type ProviderLink struct {
	UserID         uuid.UUID
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// ProviderProfile is what a provider adapter resolves an assertion into.
type ProviderProfile struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
}

// EmailChangeOutcome reports whether an email change was applied immediately
// or deferred behind a confirmation token.
type EmailChangeOutcome int

const (
	EmailChangeApplied EmailChangeOutcome = iota
	EmailChangePending
)
