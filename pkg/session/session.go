package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is a live authentication grant identified by an opaque bearer token.
type Session struct {
	Token       string    `json:"token"`
	UserID      uuid.UUID `json:"user_id"`
	Method      string    `json:"method"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	RefreshedAt time.Time `json:"refreshed_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the session is expired at the given instant.
func (s *Session) ExpiredAt(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}
