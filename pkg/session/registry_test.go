package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authkit/pkg/session"
)

func newRegistry(t *testing.T, opts ...session.Option) *session.Registry {
	t.Helper()
	base := []session.Option{session.WithStore(session.NewMemoryStore(0))}
	r := session.New(append(base, opts...)...)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRegistry_CreateGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	registry := newRegistry(t, session.WithTTL(time.Hour))
	userID := uuid.New()

	sess, err := registry.Create(ctx, userID, "local", "fp-1")
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)
	assert.Equal(t, userID, sess.UserID)
	assert.Equal(t, "local", sess.Method)
	assert.Equal(t, "fp-1", sess.Fingerprint)
	assert.Equal(t, sess.CreatedAt.Add(time.Hour), sess.ExpiresAt)

	got, err := registry.Get(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.Token, got.Token)
	assert.Equal(t, userID, got.UserID)

	t.Run("unknown token", func(t *testing.T) {
		_, err := registry.Get(ctx, "no-such-token")
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := registry.Get(ctx, "")
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})

	t.Run("tokens are unique", func(t *testing.T) {
		other, err := registry.Create(ctx, userID, "local", "")
		require.NoError(t, err)
		assert.NotEqual(t, sess.Token, other.Token)
	})
}

func TestRegistry_Refresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Now()
	current := now
	registry := newRegistry(t,
		session.WithTTL(time.Hour),
		session.WithClock(func() time.Time { return current }),
	)

	sess, err := registry.Create(ctx, uuid.New(), "local", "")
	require.NoError(t, err)

	current = now.Add(30 * time.Minute)
	refreshed, err := registry.Refresh(ctx, sess.Token)
	require.NoError(t, err)

	assert.Equal(t, sess.Token, refreshed.Token, "refresh preserves the token")
	assert.Equal(t, current.Add(time.Hour), refreshed.ExpiresAt)
	assert.Equal(t, sess.CreatedAt, refreshed.CreatedAt)
	assert.True(t, refreshed.RefreshedAt.After(sess.CreatedAt))

	t.Run("expired session", func(t *testing.T) {
		current = now.Add(3 * time.Hour)
		_, err := registry.Refresh(ctx, sess.Token)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})

	t.Run("revoked session", func(t *testing.T) {
		current = now
		sess, err := registry.Create(ctx, uuid.New(), "local", "")
		require.NoError(t, err)
		require.NoError(t, registry.Revoke(ctx, sess.Token))

		_, err = registry.Refresh(ctx, sess.Token)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})
}

func TestRegistry_Expiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Now()
	current := now
	registry := newRegistry(t,
		session.WithTTL(time.Minute),
		session.WithClock(func() time.Time { return current }),
	)

	sess, err := registry.Create(ctx, uuid.New(), "local", "")
	require.NoError(t, err)

	_, err = registry.Get(ctx, sess.Token)
	require.NoError(t, err)

	current = now.Add(2 * time.Minute)
	_, err = registry.Get(ctx, sess.Token)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestRegistry_Revoke(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	registry := newRegistry(t)

	sess, err := registry.Create(ctx, uuid.New(), "local", "")
	require.NoError(t, err)

	require.NoError(t, registry.Revoke(ctx, sess.Token))

	_, err = registry.Get(ctx, sess.Token)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	// Second revoke of the same token is reported, not masked.
	assert.ErrorIs(t, registry.Revoke(ctx, sess.Token), session.ErrSessionNotFound)
}

func TestRegistry_RevokeOthers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	registry := newRegistry(t)
	userID := uuid.New()

	keep, err := registry.Create(ctx, userID, "local", "")
	require.NoError(t, err)
	for range 3 {
		_, err := registry.Create(ctx, userID, "local", "")
		require.NoError(t, err)
	}
	stranger, err := registry.Create(ctx, uuid.New(), "local", "")
	require.NoError(t, err)

	count, err := registry.RevokeOthers(ctx, userID, keep.Token)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = registry.Get(ctx, keep.Token)
	assert.NoError(t, err, "kept session survives")

	_, err = registry.Get(ctx, stranger.Token)
	assert.NoError(t, err, "other users are untouched")
}

func TestRegistry_RevokeAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	registry := newRegistry(t)
	userID := uuid.New()

	tokens := make([]string, 0, 3)
	for range 3 {
		sess, err := registry.Create(ctx, userID, "local", "")
		require.NoError(t, err)
		tokens = append(tokens, sess.Token)
	}

	count, err := registry.RevokeAll(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	for _, tok := range tokens {
		_, err := registry.Get(ctx, tok)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	}

	t.Run("no sessions", func(t *testing.T) {
		count, err := registry.RevokeAll(ctx, uuid.New())
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}
