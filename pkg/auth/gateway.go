package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/authkit/pkg/logger"
	"github.com/dmitrymomot/authkit/pkg/session"
	"github.com/dmitrymomot/authkit/pkg/validator"
)

// Gateway is the composition root of the package: it fronts credential
// verification, session lifecycle, and the action token flows behind one
// surface so transports only ever talk to it.
type Gateway struct {
	storage   Storage
	sessions  *session.Registry
	flow      *Flow
	verifier  *PasswordVerifier
	providers *ProviderVerifier
	config    Config
	strength  validator.PasswordStrengthConfig
	log       *slog.Logger
	nowFunc   func() time.Time
}

type GatewayOption func(*Gateway)

// WithProviders registers external identity providers with the gateway.
func WithProviders(providers *ProviderVerifier) GatewayOption {
	return func(g *Gateway) {
		g.providers = providers
	}
}

// WithGatewayConfig overrides the behavioral flags.
func WithGatewayConfig(cfg Config) GatewayOption {
	return func(g *Gateway) {
		g.config = cfg
	}
}

// WithGatewayPasswordStrength sets custom password strength requirements.
func WithGatewayPasswordStrength(cfg validator.PasswordStrengthConfig) GatewayOption {
	return func(g *Gateway) {
		g.strength = cfg
	}
}

// WithGatewayLogger sets a custom logger for the gateway.
func WithGatewayLogger(log *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		g.log = log
	}
}

// WithGatewayClock sets the time source, used in tests.
func WithGatewayClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) {
		g.nowFunc = now
	}
}

// NewGateway composes the gateway from its collaborators.
func NewGateway(storage Storage, sessions *session.Registry, flow *Flow, verifier *PasswordVerifier, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		storage:  storage,
		sessions: sessions,
		flow:     flow,
		verifier: verifier,
		config:   DefaultConfig(),
		strength: validator.DefaultPasswordStrength(),
		log:      logger.Noop(),
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Login verifies local credentials and opens a session.
func (g *Gateway) Login(ctx context.Context, identifier, password, fingerprint string) (*session.Session, error) {
	userID, err := g.verifier.Verify(ctx, identifier, password)
	if err != nil {
		return nil, err
	}

	sess, err := g.sessions.Create(ctx, userID, MethodLocal, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	g.log.Info("login",
		logger.UserID(userID.String()),
		logger.Component("gateway"),
	)
	return sess, nil
}

// LoginWithProvider verifies a provider assertion and opens a session whose
// method records the provider's name.
func (g *Gateway) LoginWithProvider(ctx context.Context, provider, assertion, fingerprint string) (*session.Session, error) {
	if g.providers == nil {
		return nil, ErrUnknownProvider
	}

	userID, err := g.providers.VerifyProvider(ctx, provider, assertion)
	if err != nil {
		return nil, err
	}

	sess, err := g.sessions.Create(ctx, userID, provider, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	g.log.Info("provider login",
		logger.UserID(userID.String()),
		logger.Provider(provider),
		logger.Component("gateway"),
	)
	return sess, nil
}

// Refresh extends a live session. The token survives unchanged; only the
// expiry moves.
func (g *Gateway) Refresh(ctx context.Context, token string) (*session.Session, error) {
	return g.sessions.Refresh(ctx, token)
}

// Logout revokes the session behind the token. Revoking an already revoked
// session reports session.ErrSessionNotFound.
func (g *Gateway) Logout(ctx context.Context, token string) error {
	return g.sessions.Revoke(ctx, token)
}

// LogoutOthers revokes every other session of the token's user and returns
// how many were dropped.
func (g *Gateway) LogoutOthers(ctx context.Context, token string) (int, error) {
	sess, err := g.sessions.Get(ctx, token)
	if err != nil {
		return 0, err
	}
	return g.sessions.RevokeOthers(ctx, sess.UserID, token)
}

// LogoutAll revokes every session of the token's user, the calling one
// included.
func (g *Gateway) LogoutAll(ctx context.Context, token string) (int, error) {
	sess, err := g.sessions.Get(ctx, token)
	if err != nil {
		return 0, err
	}
	return g.sessions.RevokeAll(ctx, sess.UserID)
}

// SessionInfo describes an authenticated session without echoing its token.
type SessionInfo struct {
	UserID      uuid.UUID `json:"user_id"`
	Method      string    `json:"method"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	RefreshedAt time.Time `json:"refreshed_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SessionInfo authenticates a bearer token and returns the session it names.
func (g *Gateway) SessionInfo(ctx context.Context, token string) (*SessionInfo, error) {
	sess, err := g.sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	return &SessionInfo{
		UserID:      sess.UserID,
		Method:      sess.Method,
		Fingerprint: sess.Fingerprint,
		CreatedAt:   sess.CreatedAt,
		RefreshedAt: sess.RefreshedAt,
		ExpiresAt:   sess.ExpiresAt,
	}, nil
}
