package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/authkit/pkg/logger"
	"github.com/dmitrymomot/authkit/pkg/sanitizer"
)

// ProviderAdapter resolves a provider-specific assertion (an OAuth
// authorization code, an ID token, etc.) to a profile on that provider.
type ProviderAdapter interface {
	Name() string
	VerifyAssertion(ctx context.Context, assertion string) (ProviderProfile, error)
}

// ProviderVerifier authenticates users through registered external providers
// and maintains the provider-to-user link table.
type ProviderVerifier struct {
	storage   Storage
	adapters  map[string]ProviderAdapter
	autoLink  bool
	log       *slog.Logger
	nowFunc   func() time.Time
}

type ProviderVerifierOption func(*ProviderVerifier)

// WithAutoLink enables linking a verified provider email to an existing local
// account, and creating a fresh account when no match exists.
func WithAutoLink(enabled bool) ProviderVerifierOption {
	return func(v *ProviderVerifier) {
		v.autoLink = enabled
	}
}

// WithProviderLogger sets a custom logger for the verifier.
func WithProviderLogger(log *slog.Logger) ProviderVerifierOption {
	return func(v *ProviderVerifier) {
		v.log = log
	}
}

// WithProviderClock sets the time source, used in tests.
func WithProviderClock(now func() time.Time) ProviderVerifierOption {
	return func(v *ProviderVerifier) {
		v.nowFunc = now
	}
}

// NewProviderVerifier creates a verifier over the given adapters.
func NewProviderVerifier(storage Storage, adapters []ProviderAdapter, opts ...ProviderVerifierOption) *ProviderVerifier {
	v := &ProviderVerifier{
		storage:  storage,
		adapters: make(map[string]ProviderAdapter, len(adapters)),
		autoLink: true,
		log:      logger.Noop(),
		nowFunc:  time.Now,
	}
	for _, a := range adapters {
		v.adapters[a.Name()] = a
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyProvider resolves the assertion through the named adapter and returns
// the local user the provider identity belongs to, linking or creating one
// when auto-link is enabled.
func (v *ProviderVerifier) VerifyProvider(ctx context.Context, provider, assertion string) (uuid.UUID, error) {
	adapter, ok := v.adapters[provider]
	if !ok {
		return uuid.Nil, ErrUnknownProvider
	}

	profile, err := adapter.VerifyAssertion(ctx, assertion)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return uuid.Nil, err
		}
		v.log.Debug("provider assertion rejected",
			logger.Provider(provider),
			logger.Error(err),
			logger.Component("provider_verifier"),
		)
		return uuid.Nil, ErrAuthFailed
	}

	user, err := v.storage.GetUserByProvider(ctx, provider, profile.ProviderUserID)
	if err == nil {
		return user.ID, nil
	}
	if !errors.Is(err, ErrNoProviderLink) && !errors.Is(err, ErrUserNotFound) {
		return uuid.Nil, fmt.Errorf("failed to look up provider link: %w", err)
	}

	if !v.autoLink {
		return uuid.Nil, ErrAuthFailed
	}

	userID, err := v.link(ctx, provider, profile)
	if err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}

// link attaches the provider identity to an existing account matched by
// verified email, or provisions a new account. Unverified provider emails are
// never matched against local accounts.
func (v *ProviderVerifier) link(ctx context.Context, provider string, profile ProviderProfile) (uuid.UUID, error) {
	var userID uuid.UUID

	if profile.EmailVerified && profile.Email != "" {
		existing, err := v.storage.GetUserByEmail(ctx, sanitizer.NormalizeEmail(profile.Email))
		switch {
		case err == nil:
			userID = existing.ID
		case errors.Is(err, ErrUserNotFound):
			// fall through to account creation
		default:
			return uuid.Nil, fmt.Errorf("failed to match provider email: %w", err)
		}
	}

	if userID == uuid.Nil {
		user := &User{
			ID:             uuid.New(),
			Email:          sanitizer.NormalizeEmail(profile.Email),
			EmailConfirmed: profile.EmailVerified,
			CreatedAt:      v.nowFunc(),
		}
		if err := v.storage.CreateUser(ctx, user, nil); err != nil {
			return uuid.Nil, fmt.Errorf("failed to create user for provider login: %w", err)
		}
		userID = user.ID
	}

	link := ProviderLink{
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: profile.ProviderUserID,
		CreatedAt:      v.nowFunc(),
	}
	if err := v.storage.StoreProviderLink(ctx, link); err != nil {
		return uuid.Nil, fmt.Errorf("failed to store provider link: %w", err)
	}

	v.log.Info("linked provider identity",
		logger.UserID(userID.String()),
		logger.Provider(provider),
		logger.Component("provider_verifier"),
	)
	return userID, nil
}

// Known returns whether an adapter is registered under the given name.
func (v *ProviderVerifier) Known(provider string) bool {
	_, ok := v.adapters[provider]
	return ok
}
