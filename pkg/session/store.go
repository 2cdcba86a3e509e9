package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines the interface for session persistence.
//
// Implementations carry the atomicity the Registry relies on: Refresh is a
// conditional update against a live record (never an insert), and
// DeleteUserSessions operates on a single per-user consistency boundary so a
// session created concurrently is either fully kept or fully deleted.
type Store interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// Get retrieves a live session by token. Expired-but-unpurged records
	// report ErrSessionNotFound.
	Get(ctx context.Context, token string) (*Session, error)

	// Refresh extends an existing live session and returns the updated
	// record. It must never create a record: a concurrent revoke wins and
	// Refresh reports ErrSessionNotFound.
	Refresh(ctx context.Context, token string, refreshedAt, expiresAt time.Time) (*Session, error)

	// Delete removes exactly one session. ErrSessionNotFound if absent.
	Delete(ctx context.Context, token string) error

	// DeleteUserSessions removes every session owned by userID except the
	// one matching keepToken (keep none when keepToken is empty). Returns
	// the number of live sessions removed.
	DeleteUserSessions(ctx context.Context, userID uuid.UUID, keepToken string) (int, error)

	// DeleteExpired removes expired records. Optional housekeeping; lookups
	// must not depend on it.
	DeleteExpired(ctx context.Context) error
}
