package store

import (
	"context"
	"fmt"
	"time"

	"github.com/layer-3/dropgate/ports"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of the Store interface
type RedisStore struct {
	client      redis.Cmdable
	prefix      string
	noncePrefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client redis.Cmdable) ports.Store {
	return &RedisStore{
		client:      client,
		prefix:      "dropgate:invalidated:",
		noncePrefix: "dropgate:nonce:",
	}
}

// InvalidateToken marks a token as invalidated in Redis
func (s *RedisStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	key := s.prefix + tokenID

	// Set key with expiration
	if err := s.client.Set(ctx, key, "1", expiry).Err(); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	return nil
}

// IsTokenInvalidated checks if a token is invalidated in Redis
func (s *RedisStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	key := s.prefix + tokenID

	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}

	return val > 0, nil
}

// ClaimToken sets the invalidation key with SET NX so that only the first caller wins
func (s *RedisStore) ClaimToken(ctx context.Context, tokenID string, expiry time.Duration) (bool, error) {
	key := s.prefix + tokenID

	ok, err := s.client.SetNX(ctx, key, "1", expiry).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim token: %w", err)
	}

	return ok, nil
}

// ConsumeNonce records the nonce with SET NX so that only the first caller wins
func (s *RedisStore) ConsumeNonce(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	key := s.noncePrefix + nonce

	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to consume nonce: %w", err)
	}

	return ok, nil
}
