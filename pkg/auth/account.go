package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/authkit/pkg/logger"
	"github.com/dmitrymomot/authkit/pkg/sanitizer"
	"github.com/dmitrymomot/authkit/pkg/session"
	"github.com/dmitrymomot/authkit/pkg/validator"
)

// Username length bounds for local registration.
const (
	usernameMinLen = 3
	usernameMaxLen = 30
)

// Register creates a local account. Unlike the login path, conflicts are
// reported distinctly (ErrUsernameTaken, ErrEmailTaken): the caller chose to
// disclose the identifier by registering it, so there is nothing to hide.
func (g *Gateway) Register(ctx context.Context, username, email, password string) (*User, *session.Session, error) {
	email = sanitizer.NormalizeEmail(email)
	username = sanitizer.NormalizeUsername(username)

	rules := []validator.Rule{
		validator.ValidEmail("email", email),
		validator.StrongPassword("password", password, g.strength),
		validator.NotCommonPassword("password", password),
	}
	if !g.config.EmailUsername {
		rules = append(rules, validator.ValidUsername("username", username, usernameMinLen, usernameMaxLen))
	}
	if err := validator.Apply(rules...); err != nil {
		return nil, nil, err
	}
	if g.config.EmailUsername {
		username = ""
	}

	if err := g.checkAvailability(ctx, username, email); err != nil {
		return nil, nil, err
	}

	hash, err := g.verifier.Hash(password)
	if err != nil {
		return nil, nil, err
	}

	user := &User{
		ID:        uuid.New(),
		Username:  username,
		Email:     email,
		CreatedAt: g.nowFunc(),
	}
	if err := g.storage.CreateUser(ctx, user, hash); err != nil {
		return nil, nil, err
	}

	if g.config.RequireEmailConfirm {
		// Registration already succeeded; a failed delivery should not undo
		// it. The user can request another confirmation later.
		if err := g.flow.StartEmailConfirmation(ctx, user.ID, ""); err != nil {
			g.log.Warn("failed to send confirmation email on registration",
				logger.UserID(user.ID.String()),
				logger.Error(err),
				logger.Component("gateway"),
			)
		}
	}

	var sess *session.Session
	if g.config.LoginOnRegistration {
		sess, err = g.sessions.Create(ctx, user.ID, MethodLocal, "")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create session: %w", err)
		}
	}

	g.log.Info("registered",
		logger.UserID(user.ID.String()),
		logger.Component("gateway"),
	)
	return user, sess, nil
}

// ForgotPassword starts a password reset. It succeeds whether or not the
// identifier resolves to an account.
func (g *Gateway) ForgotPassword(ctx context.Context, identifier string) error {
	return g.flow.StartPasswordReset(ctx, identifier)
}

// ResetPassword finishes a reset and, per configuration, drops the user's
// existing sessions and opens a fresh one.
func (g *Gateway) ResetPassword(ctx context.Context, token, newPassword string) (*User, *session.Session, error) {
	userID, err := g.flow.FinishPasswordReset(ctx, token, newPassword)
	if err != nil {
		return nil, nil, err
	}

	if g.config.RevokeSessionsOnPasswordReset {
		if _, err := g.sessions.RevokeAll(ctx, userID); err != nil {
			return nil, nil, fmt.Errorf("failed to revoke sessions: %w", err)
		}
	}

	user, err := g.storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load user: %w", err)
	}

	var sess *session.Session
	if g.config.LoginOnPasswordReset {
		sess, err = g.sessions.Create(ctx, userID, MethodLocal, "")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create session: %w", err)
		}
	}
	return user, sess, nil
}

// ChangePassword replaces the password after re-verifying the current one.
func (g *Gateway) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	if err := validator.Apply(
		validator.StrongPassword("password", newPassword, g.strength),
		validator.NotCommonPassword("password", newPassword),
	); err != nil {
		return err
	}

	hash, err := g.storage.GetPasswordHash(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoPassword) {
			return ErrNoPassword
		}
		return fmt.Errorf("failed to load password hash: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(oldPassword)); err != nil {
		return ErrAuthFailed
	}

	newHash, err := g.verifier.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := g.storage.SetPasswordHash(ctx, userID, newHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	g.log.Info("password changed",
		logger.UserID(userID.String()),
		logger.Component("gateway"),
	)
	return nil
}

// ChangeEmail updates the account email, optionally re-verifying the current
// password first. The outcome tells whether the change applied immediately or
// is pending confirmation.
func (g *Gateway) ChangeEmail(ctx context.Context, userID uuid.UUID, newEmail, currentPassword string) (EmailChangeOutcome, error) {
	if g.config.RequirePasswordOnEmailChange {
		hash, err := g.storage.GetPasswordHash(ctx, userID)
		if err != nil {
			if errors.Is(err, ErrNoPassword) {
				return EmailChangeApplied, ErrNoPassword
			}
			return EmailChangeApplied, fmt.Errorf("failed to load password hash: %w", err)
		}
		if err := bcrypt.CompareHashAndPassword(hash, []byte(currentPassword)); err != nil {
			return EmailChangeApplied, ErrAuthFailed
		}
	}

	return g.flow.ChangeEmail(ctx, userID, newEmail)
}

// ConfirmEmail finishes an email confirmation and returns the updated user.
func (g *Gateway) ConfirmEmail(ctx context.Context, token string) (*User, error) {
	userID, err := g.flow.FinishEmailConfirmation(ctx, token)
	if err != nil {
		return nil, err
	}
	user, err := g.storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// Unlink detaches a provider identity. It refuses to strand the account: a
// password or another linked provider must remain.
func (g *Gateway) Unlink(ctx context.Context, userID uuid.UUID, provider string) error {
	links, err := g.storage.ListProviderLinks(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list provider links: %w", err)
	}

	found := false
	for _, l := range links {
		if l.Provider == provider {
			found = true
			break
		}
	}
	if !found {
		return ErrNoProviderLink
	}

	hasPassword := true
	if _, err := g.storage.GetPasswordHash(ctx, userID); err != nil {
		if !errors.Is(err, ErrNoPassword) {
			return fmt.Errorf("failed to check password credential: %w", err)
		}
		hasPassword = false
	}
	if !hasPassword && len(links) <= 1 {
		return ErrLastCredential
	}

	if err := g.storage.RemoveProviderLink(ctx, userID, provider); err != nil {
		return fmt.Errorf("failed to remove provider link: %w", err)
	}

	g.log.Info("provider unlinked",
		logger.UserID(userID.String()),
		logger.Provider(provider),
		logger.Component("gateway"),
	)
	return nil
}

// ValidateUsername checks format and availability. In email-as-username mode
// usernames are not a thing, so the check collapses into email validation.
func (g *Gateway) ValidateUsername(ctx context.Context, username string) error {
	if g.config.EmailUsername {
		return g.ValidateEmail(ctx, username)
	}

	username = sanitizer.NormalizeUsername(username)
	if err := validator.Apply(validator.ValidUsername("username", username, usernameMinLen, usernameMaxLen)); err != nil {
		return err
	}

	_, err := g.storage.GetUserByUsername(ctx, username)
	if err == nil {
		return ErrUsernameTaken
	}
	if !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("failed to check username availability: %w", err)
	}
	return nil
}

// ValidateEmail checks format and availability.
func (g *Gateway) ValidateEmail(ctx context.Context, email string) error {
	email = sanitizer.NormalizeEmail(email)
	if err := validator.Apply(validator.ValidEmail("email", email)); err != nil {
		return err
	}

	_, err := g.storage.GetUserByEmail(ctx, email)
	if err == nil {
		return ErrEmailTaken
	}
	if !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("failed to check email availability: %w", err)
	}
	return nil
}

// checkAvailability rejects registration when either identifier is taken.
// Store-level unique constraints still back this up under races.
func (g *Gateway) checkAvailability(ctx context.Context, username, email string) error {
	if username != "" {
		_, err := g.storage.GetUserByUsername(ctx, username)
		if err == nil {
			return ErrUsernameTaken
		}
		if !errors.Is(err, ErrUserNotFound) {
			return fmt.Errorf("failed to check username availability: %w", err)
		}
	}

	_, err := g.storage.GetUserByEmail(ctx, email)
	if err == nil {
		return ErrEmailTaken
	}
	if !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("failed to check email availability: %w", err)
	}
	return nil
}
