package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Storage is the durable record of users, password hashes, and linked
// provider identities. Implementations enforce username and email uniqueness
// at the store boundary (returning ErrUsernameTaken / ErrEmailTaken on
// violation) because pre-checks in the services race by design.
type Storage interface {
	// CreateUser inserts the record and its credential in one write so a
	// failure cannot leave a password-less local account behind. A nil hash
	// creates a provider-only account.
	CreateUser(ctx context.Context, user *User, passwordHash []byte) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// UpdateUserEmail swaps the email and sets its confirmation flag in one
	// write.
	UpdateUserEmail(ctx context.Context, id uuid.UUID, email string, confirmed bool) error
	SetEmailConfirmed(ctx context.Context, id uuid.UUID) error

	// GetPasswordHash returns ErrNoPassword for provider-only accounts.
	GetPasswordHash(ctx context.Context, userID uuid.UUID) ([]byte, error)
	SetPasswordHash(ctx context.Context, userID uuid.UUID, hash []byte) error

	GetUserByProvider(ctx context.Context, provider, providerUserID string) (*User, error)
	StoreProviderLink(ctx context.Context, link ProviderLink) error
	RemoveProviderLink(ctx context.Context, userID uuid.UUID, provider string) error
	ListProviderLinks(ctx context.Context, userID uuid.UUID) ([]ProviderLink, error)
}

// Notifier is the out-of-band delivery channel for action tokens.
type Notifier interface {
	SendResetEmail(ctx context.Context, to, token string, expiresAt time.Time) error
	SendConfirmationEmail(ctx context.Context, to, token string, expiresAt time.Time) error
}
