package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/authkit/pkg/logger"
)

// Registry tracks active sessions per user.
type Registry struct {
	store  Store
	config Config
	log    *slog.Logger
	clock  func() time.Time
}

// Option is a functional option for configuring the Registry.
type Option func(*Registry)

// WithStore sets a custom session store.
func WithStore(store Store) Option {
	return func(r *Registry) {
		r.store = store
	}
}

// WithConfig sets custom configuration.
func WithConfig(config Config) Option {
	return func(r *Registry) {
		r.config = config
	}
}

// WithTTL sets the session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		r.config.TTL = ttl
	}
}

// WithLogger sets a custom logger for the registry.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithClock overrides the time source, for deterministic expiry tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// New creates a session registry. Without WithStore it falls back to an
// in-memory store, which is only suitable for a single process.
func New(opts ...Option) *Registry {
	r := &Registry{
		config: DefaultConfig(),
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:  time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.store == nil {
		r.store = NewMemoryStore(r.config.CleanupInterval, WithMemoryClock(r.clock))
	}

	return r
}

// Create issues a fresh session for the user. It always succeeds for a valid
// user id; collisions are not a concern with 256-bit random tokens.
func (r *Registry) Create(ctx context.Context, userID uuid.UUID, method, fingerprint string) (*Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := r.clock()
	session := &Session{
		Token:       token,
		UserID:      userID,
		Method:      method,
		Fingerprint: fingerprint,
		CreatedAt:   now,
		RefreshedAt: now,
		ExpiresAt:   now.Add(r.config.TTL),
	}

	if err := r.store.Create(ctx, session); err != nil {
		return nil, err
	}

	r.log.DebugContext(ctx, "session created",
		logger.UserID(userID.String()),
		slog.String("method", method),
		logger.Component("session"),
	)

	return session, nil
}

// Get resolves a bearer token to its live session.
func (r *Registry) Get(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	return r.store.Get(ctx, token)
}

// Refresh extends a live session's expiry by the configured TTL. The token is
// preserved; refresh is an update, never an insert, so concurrent refreshes
// of the same token cannot create duplicates and a concurrent revoke cannot
// be undone.
func (r *Registry) Refresh(ctx context.Context, token string) (*Session, error) {
	now := r.clock()
	return r.store.Refresh(ctx, token, now, now.Add(r.config.TTL))
}

// Revoke removes exactly one session. Revoking an already-revoked token
// reports ErrSessionNotFound, which callers treat as benign.
func (r *Registry) Revoke(ctx context.Context, token string) error {
	return r.store.Delete(ctx, token)
}

// RevokeOthers removes every session for the user except the one matching
// keepToken, and returns the number removed.
func (r *Registry) RevokeOthers(ctx context.Context, userID uuid.UUID, keepToken string) (int, error) {
	count, err := r.store.DeleteUserSessions(ctx, userID, keepToken)
	if err != nil {
		return 0, err
	}

	r.log.InfoContext(ctx, "revoked other sessions",
		logger.UserID(userID.String()),
		logger.SessionCount(count),
		logger.Component("session"),
	)

	return count, nil
}

// RevokeAll removes every session for the user, the caller's own included.
func (r *Registry) RevokeAll(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := r.store.DeleteUserSessions(ctx, userID, "")
	if err != nil {
		return 0, err
	}

	r.log.InfoContext(ctx, "revoked all sessions",
		logger.UserID(userID.String()),
		logger.SessionCount(count),
		logger.Component("session"),
	)

	return count, nil
}

// Close releases store resources when the store supports it.
func (r *Registry) Close() error {
	if closer, ok := r.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// generateToken creates a cryptographically secure opaque token.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", errors.Join(ErrTokenGeneration, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
