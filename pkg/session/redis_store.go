package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "authkit:session:"
	userKeyPrefix    = "authkit:user_sessions:"
)

// refreshScript conditionally extends a live session. It runs atomically on
// the server, so a concurrent revoke either wins (the script sees no key and
// reports not-found) or loses (the revoke removes the refreshed record);
// refresh never resurrects a deleted session.
var refreshScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return false
end
redis.call("HSET", KEYS[1], "refreshed_at", ARGV[1], "expires_at", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return redis.call("HGETALL", KEYS[1])
`)

// deleteScript removes one session and its index entry in a single step.
var deleteScript = redis.NewScript(`
local uid = redis.call("HGET", KEYS[1], "user_id")
if not uid then
	return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[1] .. uid, ARGV[2])
return 1
`)

// deleteUserScript removes every indexed session for a user except the kept
// token. The script is the per-user consistency boundary: sessions created
// after it starts are not in the snapshot and survive untouched.
var deleteUserScript = redis.NewScript(`
local tokens = redis.call("SMEMBERS", KEYS[1])
local removed = 0
for _, t in ipairs(tokens) do
	if t ~= ARGV[2] then
		removed = removed + redis.call("DEL", ARGV[1] .. t)
		redis.call("SREM", KEYS[1], t)
	end
end
return removed
`)

// RedisStore implements Store on Redis. Each session is a hash under
// authkit:session:<token>, indexed by a per-user set under
// authkit:user_sessions:<user_id>. Key TTLs mirror session expiry so Redis
// evicts stale records; lookups still filter on expiry to close the gap
// between logical and physical expiration.
type RedisStore struct {
	client redis.UniversalClient
	clock  func() time.Time
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisClock overrides the store's time source.
func WithRedisClock(clock func() time.Time) RedisStoreOption {
	return func(s *RedisStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	store := &RedisStore{
		client: client,
		clock:  time.Now,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Create stores a new session with a TTL matching its expiry.
func (s *RedisStore) Create(ctx context.Context, session *Session) error {
	if session == nil || session.Token == "" {
		return ErrInvalidSession
	}

	ttl := session.ExpiresAt.Sub(s.clock())
	if ttl <= 0 {
		return ErrInvalidSession
	}

	sessKey := sessionKeyPrefix + session.Token
	userKey := userKeyPrefix + session.UserID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, sessKey, map[string]any{
		"token":        session.Token,
		"user_id":      session.UserID.String(),
		"method":       session.Method,
		"fingerprint":  session.Fingerprint,
		"created_at":   session.CreatedAt.UnixMilli(),
		"refreshed_at": session.RefreshedAt.UnixMilli(),
		"expires_at":   session.ExpiresAt.UnixMilli(),
	})
	pipe.PExpire(ctx, sessKey, ttl)
	pipe.SAdd(ctx, userKey, session.Token)
	// Index lives at least as long as its longest-lived member.
	pipe.ExpireGT(ctx, userKey, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	return nil
}

// Get retrieves a live session by token.
func (s *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	fields, err := s.client.HGetAll(ctx, sessionKeyPrefix+token).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}

	session, err := sessionFromFields(fields)
	if err != nil {
		return nil, err
	}

	if session.ExpiredAt(s.clock()) {
		_ = s.Delete(ctx, token)
		return nil, ErrSessionNotFound
	}

	return session, nil
}

// Refresh conditionally extends a live session via a server-side script.
func (s *RedisStore) Refresh(ctx context.Context, token string, refreshedAt, expiresAt time.Time) (*Session, error) {
	ttl := expiresAt.Sub(s.clock())
	if ttl <= 0 {
		return nil, ErrSessionNotFound
	}

	res, err := refreshScript.Run(ctx, s.client,
		[]string{sessionKeyPrefix + token},
		refreshedAt.UnixMilli(),
		expiresAt.UnixMilli(),
		ttl.Milliseconds(),
	).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}

	flat, ok := res.([]any)
	if !ok || len(flat) == 0 {
		return nil, ErrSessionNotFound
	}

	fields := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		k, _ := flat[i].(string)
		v, _ := flat[i+1].(string)
		fields[k] = v
	}

	return sessionFromFields(fields)
}

// Delete removes exactly one session and its index entry.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	n, err := deleteScript.Run(ctx, s.client,
		[]string{sessionKeyPrefix + token},
		userKeyPrefix,
		token,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteUserSessions removes every session for userID except keepToken,
// atomically with respect to concurrent creates for the same user.
func (s *RedisStore) DeleteUserSessions(ctx context.Context, userID uuid.UUID, keepToken string) (int, error) {
	n, err := deleteUserScript.Run(ctx, s.client,
		[]string{userKeyPrefix + userID.String()},
		sessionKeyPrefix,
		keepToken,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return n, nil
}

// DeleteExpired prunes index entries whose session keys Redis already
// evicted. Session keys themselves expire via TTL.
func (s *RedisStore) DeleteExpired(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, userKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		userKey := iter.Val()

		tokens, err := s.client.SMembers(ctx, userKey).Result()
		if err != nil {
			return fmt.Errorf("failed to list user sessions: %w", err)
		}

		for _, token := range tokens {
			exists, err := s.client.Exists(ctx, sessionKeyPrefix+token).Result()
			if err != nil {
				return fmt.Errorf("failed to check session: %w", err)
			}
			if exists == 0 {
				_ = s.client.SRem(ctx, userKey, token).Err()
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan session indexes: %w", err)
	}

	return nil
}

func sessionFromFields(fields map[string]string) (*Session, error) {
	userID, err := uuid.Parse(fields["user_id"])
	if err != nil {
		return nil, ErrInvalidSession
	}

	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, ErrInvalidSession
	}
	refreshedAt, err := strconv.ParseInt(fields["refreshed_at"], 10, 64)
	if err != nil {
		return nil, ErrInvalidSession
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, ErrInvalidSession
	}

	return &Session{
		Token:       fields["token"],
		UserID:      userID,
		Method:      fields["method"],
		Fingerprint: fields["fingerprint"],
		CreatedAt:   time.UnixMilli(createdAt),
		RefreshedAt: time.UnixMilli(refreshedAt),
		ExpiresAt:   time.UnixMilli(expiresAt),
	}, nil
}

var _ Store = (*RedisStore)(nil)
