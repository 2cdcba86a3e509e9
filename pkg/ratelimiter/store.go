package ratelimiter

import (
	"context"
	"time"
)

// Store holds per-key bucket state. A negative remaining count from
// ConsumeTokens means the request exceeded the budget and must be denied;
// the state update still happens so refill time keeps advancing.
type Store interface {
	ConsumeTokens(ctx context.Context, key string, tokens int, config Config) (remaining int, resetAt time.Time, err error)

	// Reset drops the key's bucket entirely.
	Reset(ctx context.Context, key string) error
}
