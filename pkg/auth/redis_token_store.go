package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const actionTokenKeyPrefix = "authkit:action_token:"

// RedisTokenStore implements TokenStore on Redis. Each issued token id is a
// key with a TTL matching the token's expiry; GETDEL makes consumption a
// single conditional round-trip, so two racing consumers can never both
// succeed.
type RedisTokenStore struct {
	client redis.UniversalClient
	clock  func() time.Time
}

// RedisTokenStoreOption configures a RedisTokenStore.
type RedisTokenStoreOption func(*RedisTokenStore)

// WithRedisTokenClock overrides the store's time source.
func WithRedisTokenClock(clock func() time.Time) RedisTokenStoreOption {
	return func(s *RedisTokenStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewRedisTokenStore creates a Redis-backed action token store.
func NewRedisTokenStore(client redis.UniversalClient, opts ...RedisTokenStoreOption) *RedisTokenStore {
	s := &RedisTokenStore{
		client: client,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisTokenStore) Save(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.clock())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, actionTokenKeyPrefix+id.String(), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to save action token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Consume(ctx context.Context, id uuid.UUID) error {
	_, err := s.client.GetDel(ctx, actionTokenKeyPrefix+id.String()).Result()
	if errors.Is(err, redis.Nil) {
		return ErrTokenConsumed
	}
	if err != nil {
		return fmt.Errorf("failed to consume action token: %w", err)
	}
	return nil
}

var _ TokenStore = (*RedisTokenStore)(nil)
