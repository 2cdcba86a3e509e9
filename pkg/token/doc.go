// Package token issues and validates purpose-scoped, time-bounded action
// tokens for sensitive account operations (password reset, email
// confirmation).
//
// Tokens are AES-256-GCM encrypted JSON claims, base64 raw-URL encoded. An
// intercepted token reveals nothing about its subject, and any bit flip fails
// authentication during decryption. Expiry is checked after decryption so the
// codec can distinguish a forged token (ErrTokenInvalid) from a genuine but
// stale one (ErrTokenExpired).
//
// The codec is stateless. Single-use semantics are enforced by the caller
// tracking the claims' ID; the codec only guarantees authenticity, purpose
// binding, and expiry.
//
// # Usage
//
//	codec, err := token.New([]string{secret})
//	if err != nil {
//		// handle error
//	}
//
//	tok, claims, err := codec.Issue(userID, token.PurposePasswordReset, time.Hour, nil)
//
//	claims, err = codec.Validate(tok)
//	switch {
//	case errors.Is(err, token.ErrTokenExpired):
//		// offer to resend
//	case err != nil:
//		// reject
//	}
//
// Multiple secrets may be supplied to support key rotation: the first secret
// encrypts, all secrets are tried for decryption.
package token
