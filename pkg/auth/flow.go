package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/authkit/pkg/logger"
	"github.com/dmitrymomot/authkit/pkg/sanitizer"
	"github.com/dmitrymomot/authkit/pkg/token"
	"github.com/dmitrymomot/authkit/pkg/validator"
)

// Flow drives the single-use action token lifecycles: password reset and
// email confirmation. Tokens are issued by the codec, gated through the
// TokenStore so each is consumed at most once, and delivered by the Notifier.
type Flow struct {
	codec      *token.Codec
	tokenStore TokenStore
	storage    Storage
	notifier   Notifier
	config     Config
	bcryptCost int
	strength   validator.PasswordStrengthConfig
	log        *slog.Logger
}

type FlowOption func(*Flow)

// WithFlowLogger sets a custom logger for the flow.
func WithFlowLogger(log *slog.Logger) FlowOption {
	return func(f *Flow) {
		f.log = log
	}
}

// WithFlowBcryptCost sets the bcrypt cost used when storing reset passwords.
func WithFlowBcryptCost(cost int) FlowOption {
	return func(f *Flow) {
		f.bcryptCost = cost
	}
}

// WithFlowPasswordStrength sets custom password strength requirements.
func WithFlowPasswordStrength(cfg validator.PasswordStrengthConfig) FlowOption {
	return func(f *Flow) {
		f.strength = cfg
	}
}

// NewFlow wires the action token flow together.
func NewFlow(codec *token.Codec, tokenStore TokenStore, storage Storage, notifier Notifier, cfg Config, opts ...FlowOption) *Flow {
	f := &Flow{
		codec:      codec,
		tokenStore: tokenStore,
		storage:    storage,
		notifier:   notifier,
		config:     cfg,
		bcryptCost: bcrypt.DefaultCost,
		strength:   validator.DefaultPasswordStrength(),
		log:        logger.Noop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// StartPasswordReset issues a reset token for the account behind the
// identifier and hands it to the notifier. An unknown identifier is not an
// error: the caller acknowledges uniformly either way, so account existence
// never leaks through this path.
func (f *Flow) StartPasswordReset(ctx context.Context, identifier string) error {
	user, err := resolveIdentifier(ctx, f.storage, f.config.EmailUsername, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			f.log.Debug("password reset requested for unknown identifier",
				logger.Component("flow"),
			)
			return nil
		}
		return fmt.Errorf("failed to resolve identifier: %w", err)
	}

	tok, claims, err := f.codec.Issue(user.ID, token.PurposePasswordReset, f.config.PasswordResetTTL, nil)
	if err != nil {
		return fmt.Errorf("failed to issue reset token: %w", err)
	}
	if err := f.tokenStore.Save(ctx, claims.ID, claims.Expiry()); err != nil {
		return fmt.Errorf("failed to track reset token: %w", err)
	}

	if err := f.notifier.SendResetEmail(ctx, user.Email, tok, claims.Expiry()); err != nil {
		return fmt.Errorf("failed to deliver reset email: %w", err)
	}

	f.log.Info("password reset started",
		logger.UserID(user.ID.String()),
		logger.Component("flow"),
	)
	return nil
}

// FinishPasswordReset validates and consumes a reset token, then replaces the
// password hash. A token can finish exactly one reset: concurrent attempts
// with the same token race on Consume and all but one fail with
// token.ErrTokenInvalid.
func (f *Flow) FinishPasswordReset(ctx context.Context, tok, newPassword string) (uuid.UUID, error) {
	claims, err := f.codec.Validate(tok)
	if err != nil {
		return uuid.Nil, err
	}
	if claims.Purpose != token.PurposePasswordReset {
		return uuid.Nil, token.ErrTokenInvalid
	}

	if err := validator.Apply(
		validator.StrongPassword("password", newPassword, f.strength),
		validator.NotCommonPassword("password", newPassword),
	); err != nil {
		return uuid.Nil, err
	}

	// Consume before mutating. If the update below fails the token is burnt,
	// which errs on the side of at-most-once rather than at-least-once.
	if err := f.tokenStore.Consume(ctx, claims.ID); err != nil {
		if errors.Is(err, ErrTokenConsumed) {
			return uuid.Nil, token.ErrTokenInvalid
		}
		return uuid.Nil, fmt.Errorf("failed to consume reset token: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), f.bcryptCost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := f.storage.SetPasswordHash(ctx, claims.Subject, hash); err != nil {
		return uuid.Nil, fmt.Errorf("failed to update password: %w", err)
	}

	f.log.Info("password reset finished",
		logger.UserID(claims.Subject.String()),
		logger.Component("flow"),
	)
	return claims.Subject, nil
}

// StartEmailConfirmation issues a confirmation token. With newEmail empty the
// token confirms the account's current address; otherwise it carries the
// pending address and applying it is deferred until the token comes back.
func (f *Flow) StartEmailConfirmation(ctx context.Context, userID uuid.UUID, newEmail string) error {
	user, err := f.storage.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	var meta map[string]string
	sendTo := user.Email
	if newEmail != "" {
		newEmail = sanitizer.NormalizeEmail(newEmail)
		if err := f.checkEmailAvailable(ctx, userID, newEmail); err != nil {
			return err
		}
		meta = map[string]string{token.MetaNewEmail: newEmail}
		sendTo = newEmail
	}

	tok, claims, err := f.codec.Issue(userID, token.PurposeEmailConfirm, f.config.EmailConfirmTTL, meta)
	if err != nil {
		return fmt.Errorf("failed to issue confirmation token: %w", err)
	}
	if err := f.tokenStore.Save(ctx, claims.ID, claims.Expiry()); err != nil {
		return fmt.Errorf("failed to track confirmation token: %w", err)
	}

	if err := f.notifier.SendConfirmationEmail(ctx, sendTo, tok, claims.Expiry()); err != nil {
		return fmt.Errorf("failed to deliver confirmation email: %w", err)
	}

	f.log.Info("email confirmation started",
		logger.UserID(userID.String()),
		logger.Component("flow"),
	)
	return nil
}

// FinishEmailConfirmation validates and consumes a confirmation token. Plain
// tokens mark the current address confirmed; tokens carrying a pending
// address re-check availability and swap it in.
func (f *Flow) FinishEmailConfirmation(ctx context.Context, tok string) (uuid.UUID, error) {
	claims, err := f.codec.Validate(tok)
	if err != nil {
		return uuid.Nil, err
	}
	if claims.Purpose != token.PurposeEmailConfirm {
		return uuid.Nil, token.ErrTokenInvalid
	}

	newEmail := claims.Meta[token.MetaNewEmail]
	if newEmail != "" {
		// Availability may have changed since the token was issued; check
		// again before burning the token so the conflict is reported instead
		// of silently wasting it.
		if err := f.checkEmailAvailable(ctx, claims.Subject, newEmail); err != nil {
			return uuid.Nil, err
		}
	}

	if err := f.tokenStore.Consume(ctx, claims.ID); err != nil {
		if errors.Is(err, ErrTokenConsumed) {
			return uuid.Nil, token.ErrTokenInvalid
		}
		return uuid.Nil, fmt.Errorf("failed to consume confirmation token: %w", err)
	}

	if newEmail != "" {
		if err := f.storage.UpdateUserEmail(ctx, claims.Subject, newEmail, true); err != nil {
			return uuid.Nil, fmt.Errorf("failed to apply email change: %w", err)
		}
	} else {
		if err := f.storage.SetEmailConfirmed(ctx, claims.Subject); err != nil {
			return uuid.Nil, fmt.Errorf("failed to mark email confirmed: %w", err)
		}
	}

	f.log.Info("email confirmation finished",
		logger.UserID(claims.Subject.String()),
		logger.Component("flow"),
	)
	return claims.Subject, nil
}

// ChangeEmail either applies the new address immediately or, when
// confirmation is required, defers it behind a confirmation token sent to the
// new address.
func (f *Flow) ChangeEmail(ctx context.Context, userID uuid.UUID, newEmail string) (EmailChangeOutcome, error) {
	newEmail = sanitizer.NormalizeEmail(newEmail)
	if err := validator.Apply(validator.ValidEmail("email", newEmail)); err != nil {
		return EmailChangeApplied, err
	}

	user, err := f.storage.GetUserByID(ctx, userID)
	if err != nil {
		return EmailChangeApplied, fmt.Errorf("failed to load user: %w", err)
	}
	if user.Email == newEmail {
		return EmailChangeApplied, ErrEmailUnchanged
	}
	if err := f.checkEmailAvailable(ctx, userID, newEmail); err != nil {
		return EmailChangeApplied, err
	}

	if f.config.RequireEmailConfirm {
		if err := f.StartEmailConfirmation(ctx, userID, newEmail); err != nil {
			return EmailChangeApplied, err
		}
		return EmailChangePending, nil
	}

	if err := f.storage.UpdateUserEmail(ctx, userID, newEmail, true); err != nil {
		return EmailChangeApplied, fmt.Errorf("failed to apply email change: %w", err)
	}
	return EmailChangeApplied, nil
}

// checkEmailAvailable reports ErrEmailTaken when the address belongs to a
// different user.
func (f *Flow) checkEmailAvailable(ctx context.Context, userID uuid.UUID, email string) error {
	existing, err := f.storage.GetUserByEmail(ctx, email)
	if err == nil {
		if existing.ID == userID {
			return ErrEmailUnchanged
		}
		return ErrEmailTaken
	}
	if !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("failed to check email availability: %w", err)
	}
	return nil
}
