package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/authkit/pkg/logger"
	"github.com/dmitrymomot/authkit/pkg/sanitizer"
)

// dummyHash is a bcrypt hash of a random string nobody knows. Verify compares
// against it when the identifier resolves to nothing, so unknown-identifier
// and wrong-password failures sit in the same timing class.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// PasswordVerifier checks local credentials against stored bcrypt hashes.
type PasswordVerifier struct {
	storage       Storage
	emailUsername bool
	bcryptCost    int
	log           *slog.Logger
}

type VerifierOption func(*PasswordVerifier)

// WithEmailUsername makes the email address double as the login identifier,
// skipping username lookup entirely.
func WithEmailUsername(enabled bool) VerifierOption {
	return func(v *PasswordVerifier) {
		v.emailUsername = enabled
	}
}

// WithVerifierBcryptCost sets the bcrypt cost used when hashing new passwords.
func WithVerifierBcryptCost(cost int) VerifierOption {
	return func(v *PasswordVerifier) {
		v.bcryptCost = cost
	}
}

// WithVerifierLogger sets a custom logger for the verifier.
func WithVerifierLogger(log *slog.Logger) VerifierOption {
	return func(v *PasswordVerifier) {
		v.log = log
	}
}

// NewPasswordVerifier creates a verifier backed by the given storage.
func NewPasswordVerifier(storage Storage, opts ...VerifierOption) *PasswordVerifier {
	v := &PasswordVerifier{
		storage:    storage,
		bcryptCost: bcrypt.DefaultCost,
		log:        logger.Noop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify resolves the identifier to a user and checks the password.
// Every failure path returns ErrAuthFailed to prevent user enumeration.
func (v *PasswordVerifier) Verify(ctx context.Context, identifier, password string) (uuid.UUID, error) {
	user, err := v.resolve(ctx, identifier)
	if err != nil {
		// Burn a comparison anyway so the miss is not observable by timing.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return uuid.Nil, err
		}
		return uuid.Nil, ErrAuthFailed
	}

	hash, err := v.storage.GetPasswordHash(ctx, user.ID)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return uuid.Nil, err
		}
		return uuid.Nil, ErrAuthFailed
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return uuid.Nil, ErrAuthFailed
	}

	return user.ID, nil
}

// Hash produces a bcrypt hash of the password at the configured cost.
func (v *PasswordVerifier) Hash(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), v.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

func (v *PasswordVerifier) resolve(ctx context.Context, identifier string) (*User, error) {
	return resolveIdentifier(ctx, v.storage, v.emailUsername, identifier)
}

// resolveIdentifier maps a login identifier to a user record. In
// emailUsername mode the identifier is always an email; otherwise anything
// containing "@" is treated as an email and the rest as a username.
func resolveIdentifier(ctx context.Context, storage Storage, emailUsername bool, identifier string) (*User, error) {
	if emailUsername || strings.Contains(identifier, "@") {
		return storage.GetUserByEmail(ctx, sanitizer.NormalizeEmail(identifier))
	}
	return storage.GetUserByUsername(ctx, sanitizer.NormalizeUsername(identifier))
}
