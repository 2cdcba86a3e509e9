package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authkit/pkg/token"
)

func testSecret() string {
	return strings.Repeat("s", 32)
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("valid secret", func(t *testing.T) {
		t.Parallel()
		codec, err := token.New([]string{testSecret()})
		require.NoError(t, err)
		require.NotNil(t, codec)
	})

	t.Run("no secrets", func(t *testing.T) {
		t.Parallel()
		_, err := token.New(nil)
		assert.ErrorIs(t, err, token.ErrInvalidSecret)
	})

	t.Run("short secret", func(t *testing.T) {
		t.Parallel()
		_, err := token.New([]string{"too-short"})
		assert.ErrorIs(t, err, token.ErrInvalidSecret)
	})
}

func TestCodec_IssueValidate(t *testing.T) {
	t.Parallel()

	codec, err := token.New([]string{testSecret()})
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		subject := uuid.New()

		tok, issued, err := codec.Issue(subject, token.PurposePasswordReset, time.Hour, nil)
		require.NoError(t, err)
		require.NotEmpty(t, tok)
		assert.NotEqual(t, uuid.Nil, issued.ID)

		claims, err := codec.Validate(tok)
		require.NoError(t, err)
		assert.Equal(t, issued.ID, claims.ID)
		assert.Equal(t, subject, claims.Subject)
		assert.Equal(t, token.PurposePasswordReset, claims.Purpose)
	})

	t.Run("carries meta", func(t *testing.T) {
		t.Parallel()
		meta := map[string]string{token.MetaNewEmail: "new@example.com"}

		tok, _, err := codec.Issue(uuid.New(), token.PurposeEmailConfirm, time.Hour, meta)
		require.NoError(t, err)

		claims, err := codec.Validate(tok)
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", claims.Meta[token.MetaNewEmail])
	})

	t.Run("token is opaque", func(t *testing.T) {
		t.Parallel()
		subject := uuid.New()

		tok, _, err := codec.Issue(subject, token.PurposePasswordReset, time.Hour, nil)
		require.NoError(t, err)

		assert.NotContains(t, tok, subject.String())
		assert.NotContains(t, tok, string(token.PurposePasswordReset))
	})

	t.Run("each issue is unique", func(t *testing.T) {
		t.Parallel()
		subject := uuid.New()

		a, ca, err := codec.Issue(subject, token.PurposePasswordReset, time.Hour, nil)
		require.NoError(t, err)
		b, cb, err := codec.Issue(subject, token.PurposePasswordReset, time.Hour, nil)
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
		assert.NotEqual(t, ca.ID, cb.ID)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		t.Parallel()
		_, err := codec.Validate("not-a-token")
		assert.ErrorIs(t, err, token.ErrTokenInvalid)
	})

	t.Run("tampered rejected", func(t *testing.T) {
		t.Parallel()
		tok, _, err := codec.Issue(uuid.New(), token.PurposePasswordReset, time.Hour, nil)
		require.NoError(t, err)

		tampered := tok[:len(tok)-2] + "AA"
		_, err = codec.Validate(tampered)
		assert.ErrorIs(t, err, token.ErrTokenInvalid)
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		t.Parallel()
		other, err := token.New([]string{strings.Repeat("x", 32)})
		require.NoError(t, err)

		tok, _, err := codec.Issue(uuid.New(), token.PurposePasswordReset, time.Hour, nil)
		require.NoError(t, err)

		_, err = other.Validate(tok)
		assert.ErrorIs(t, err, token.ErrTokenInvalid)
	})
}

func TestCodec_Expiry(t *testing.T) {
	t.Parallel()

	now := time.Now()
	current := now
	codec, err := token.New([]string{testSecret()}, token.WithClock(func() time.Time { return current }))
	require.NoError(t, err)

	tok, _, err := codec.Issue(uuid.New(), token.PurposePasswordReset, time.Hour, nil)
	require.NoError(t, err)

	_, err = codec.Validate(tok)
	require.NoError(t, err)

	current = now.Add(2 * time.Hour)
	_, err = codec.Validate(tok)
	assert.ErrorIs(t, err, token.ErrTokenExpired)
}

func TestCodec_KeyRotation(t *testing.T) {
	t.Parallel()

	oldSecret := strings.Repeat("o", 32)
	newSecret := strings.Repeat("n", 32)

	oldCodec, err := token.New([]string{oldSecret})
	require.NoError(t, err)

	tok, issued, err := oldCodec.Issue(uuid.New(), token.PurposeEmailConfirm, time.Hour, nil)
	require.NoError(t, err)

	// Rotated codec lists the new key first but still accepts old tokens.
	rotated, err := token.New([]string{newSecret, oldSecret})
	require.NoError(t, err)

	claims, err := rotated.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, claims.ID)

	// Dropping the old key invalidates its tokens.
	dropped, err := token.New([]string{newSecret})
	require.NoError(t, err)

	_, err = dropped.Validate(tok)
	assert.ErrorIs(t, err, token.ErrTokenInvalid)
}
