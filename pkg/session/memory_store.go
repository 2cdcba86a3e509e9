package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store using an in-process map. A single mutex is the
// consistency boundary, so per-user bulk deletion is trivially atomic with
// respect to concurrent creates.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	clock    func() time.Time
	ticker   *time.Ticker
	done     chan struct{}
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMemoryClock overrides the store's time source.
func WithMemoryClock(clock func() time.Time) MemoryStoreOption {
	return func(m *MemoryStore) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewMemoryStore creates an in-memory session store. A positive
// cleanupInterval starts a background goroutine purging expired records;
// lookups filter expired records regardless.
func NewMemoryStore(cleanupInterval time.Duration, opts ...MemoryStoreOption) *MemoryStore {
	store := &MemoryStore{
		sessions: make(map[string]*Session),
		clock:    time.Now,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(store)
	}

	if cleanupInterval > 0 {
		store.ticker = time.NewTicker(cleanupInterval)
		go store.cleanupLoop()
	}

	return store
}

// Create stores a new session.
func (m *MemoryStore) Create(ctx context.Context, session *Session) error {
	if session == nil || session.Token == "" {
		return ErrInvalidSession
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sessionCopy := *session
	m.sessions[session.Token] = &sessionCopy
	return nil
}

// Get retrieves a live session by token. The whole operation runs under the
// write lock: the expiry check, the lazy purge, and the copy must observe one
// consistent record while Refresh mutates fields on the shared pointer.
func (m *MemoryStore) Get(ctx context.Context, token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[token]
	if !exists {
		return nil, ErrSessionNotFound
	}

	if session.ExpiredAt(m.clock()) {
		delete(m.sessions, token)
		return nil, ErrSessionNotFound
	}

	sessionCopy := *session
	return &sessionCopy, nil
}

// Refresh extends a live session under the store lock. Concurrent refresh
// and revoke on the same token resolve to one consistent outcome.
func (m *MemoryStore) Refresh(ctx context.Context, token string, refreshedAt, expiresAt time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[token]
	if !exists || session.ExpiredAt(m.clock()) {
		delete(m.sessions, token)
		return nil, ErrSessionNotFound
	}

	session.RefreshedAt = refreshedAt
	session.ExpiresAt = expiresAt

	sessionCopy := *session
	return &sessionCopy, nil
}

// Delete removes a session by token.
func (m *MemoryStore) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[token]; !exists {
		return ErrSessionNotFound
	}

	delete(m.sessions, token)
	return nil
}

// DeleteUserSessions removes every session for userID except keepToken.
// Runs under a single lock acquisition, so the snapshot it operates on is
// consistent with respect to concurrent Create calls.
func (m *MemoryStore) DeleteUserSessions(ctx context.Context, userID uuid.UUID, keepToken string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	count := 0
	for token, session := range m.sessions {
		if session.UserID != userID || token == keepToken {
			continue
		}
		if !session.ExpiredAt(now) {
			count++
		}
		delete(m.sessions, token)
	}

	return count, nil
}

// DeleteExpired removes all expired sessions.
func (m *MemoryStore) DeleteExpired(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	for token, session := range m.sessions {
		if session.ExpiredAt(now) {
			delete(m.sessions, token)
		}
	}

	return nil
}

// Close stops the cleanup goroutine.
func (m *MemoryStore) Close() error {
	if m.ticker != nil {
		m.ticker.Stop()
		close(m.done)
	}
	return nil
}

func (m *MemoryStore) cleanupLoop() {
	for {
		select {
		case <-m.ticker.C:
			_ = m.DeleteExpired(context.Background())
		case <-m.done:
			return
		}
	}
}

var _ Store = (*MemoryStore)(nil)
