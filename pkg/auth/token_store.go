package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TokenStore tracks issued action tokens by their id so each one can be
// consumed at most once. Consume removes the id and fails if it is absent,
// already consumed, or past its expiry.
type TokenStore interface {
	Save(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	Consume(ctx context.Context, id uuid.UUID) error
}

// MemoryTokenStore is an in-process TokenStore for single-instance
// deployments and tests.
type MemoryTokenStore struct {
	mu      sync.Mutex
	tokens  map[uuid.UUID]time.Time
	nowFunc func() time.Time
}

type MemoryTokenStoreOption func(*MemoryTokenStore)

// WithTokenStoreClock sets the time source, used in tests.
func WithTokenStoreClock(now func() time.Time) MemoryTokenStoreOption {
	return func(s *MemoryTokenStore) {
		s.nowFunc = now
	}
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore(opts ...MemoryTokenStoreOption) *MemoryTokenStore {
	s := &MemoryTokenStore{
		tokens:  make(map[uuid.UUID]time.Time),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryTokenStore) Save(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Opportunistic purge keeps the map from accumulating dead entries.
	now := s.nowFunc()
	for tid, exp := range s.tokens {
		if now.After(exp) {
			delete(s.tokens, tid)
		}
	}

	s.tokens[id] = expiresAt
	return nil
}

func (s *MemoryTokenStore) Consume(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.tokens[id]
	if !ok {
		return ErrTokenConsumed
	}
	delete(s.tokens, id)

	if s.nowFunc().After(exp) {
		return ErrTokenConsumed
	}
	return nil
}

var _ TokenStore = (*MemoryTokenStore)(nil)
