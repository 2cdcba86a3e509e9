package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Purpose scopes a token to exactly one sensitive operation.
type Purpose string

const (
	PurposePasswordReset Purpose = "password_reset"
	PurposeEmailConfirm  Purpose = "email_confirm"
)

// MetaNewEmail is the claims meta key carrying the pending address of an
// email-change confirmation token.
const MetaNewEmail = "new_email"

// Claims are the decrypted contents of an action token.
type Claims struct {
	ID        uuid.UUID         `json:"jti"`
	Subject   uuid.UUID         `json:"sub"`
	Purpose   Purpose           `json:"pur"`
	ExpiresAt int64             `json:"exp"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Expiry returns the expiry as a time.Time.
func (c Claims) Expiry() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}

// Codec encrypts and decrypts action tokens.
type Codec struct {
	secrets [][]byte
	clock   func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source, for deterministic expiry tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Codec) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// New creates a codec from one or more secrets. The first secret encrypts new
// tokens; every secret is tried during validation so keys can be rotated
// without invalidating outstanding tokens. Each secret must be at least 32
// bytes; only the first 32 are used (AES-256).
func New(secrets []string, opts ...Option) (*Codec, error) {
	if len(secrets) == 0 {
		return nil, ErrInvalidSecret
	}

	keys := make([][]byte, 0, len(secrets))
	for _, s := range secrets {
		if len(s) < 32 {
			return nil, ErrInvalidSecret
		}
		keys = append(keys, []byte(s[:32]))
	}

	c := &Codec{
		secrets: keys,
		clock:   time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Issue produces an opaque token bound to subject, purpose, and expiry. The
// returned Claims carry the fresh token ID the caller needs for single-use
// tracking.
func (c *Codec) Issue(subject uuid.UUID, purpose Purpose, ttl time.Duration, meta map[string]string) (string, Claims, error) {
	claims := Claims{
		ID:        uuid.New(),
		Subject:   subject,
		Purpose:   purpose,
		ExpiresAt: c.clock().Add(ttl).Unix(),
		Meta:      meta,
	}

	data, err := json.Marshal(claims)
	if err != nil {
		return "", Claims{}, fmt.Errorf("failed to marshal claims: %w", err)
	}

	encrypted, err := c.encrypt(data)
	if err != nil {
		return "", Claims{}, fmt.Errorf("failed to encrypt token: %w", err)
	}

	return encrypted, claims, nil
}

// Validate decrypts and checks a token. It returns ErrTokenInvalid for
// anything that does not decrypt to well-formed claims, and ErrTokenExpired
// for an authentic token past its expiry. The two are distinguishable so
// callers can give differentiated feedback.
func (c *Codec) Validate(tok string) (Claims, error) {
	data, err := c.decrypt(tok)
	if err != nil {
		return Claims{}, ErrTokenInvalid
	}

	var claims Claims
	if err := json.Unmarshal(data, &claims); err != nil {
		return Claims{}, ErrTokenInvalid
	}

	if claims.Subject == uuid.Nil || claims.Purpose == "" {
		return Claims{}, ErrTokenInvalid
	}

	if c.clock().Unix() > claims.ExpiresAt {
		return Claims{}, ErrTokenExpired
	}

	return claims, nil
}

func (c *Codec) encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(c.secrets[0])
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	// Prepend nonce to ciphertext for self-contained decryption
	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

func (c *Codec) decrypt(encoded string) ([]byte, error) {
	ciphertext, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	// Try all secrets to support key rotation during decryption
	for _, secret := range c.secrets {
		block, err := aes.NewCipher(secret)
		if err != nil {
			continue
		}

		gcm, err := cipher.NewGCM(block)
		if err != nil {
			continue
		}

		if len(ciphertext) < gcm.NonceSize() {
			continue
		}

		nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
		if plaintext, err := gcm.Open(nil, nonce, sealed, nil); err == nil {
			return plaintext, nil
		}
	}

	return nil, ErrTokenInvalid
}
