package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/redis/go-redis/v9"
)

// RedisNonceStore is a Redis implementation of the NonceStore interface
type RedisNonceStore struct {
	client *redis.Client
	prefix string
}

// NewRedisNonceStore creates a new Redis nonce store
func NewRedisNonceStore(client *redis.Client) ports.NonceStore {
	return &RedisNonceStore{
		client: client,
		prefix: "walletauth:nonce:",
	}
}

// PutNonce stores the nonce with expiration
func (s *RedisNonceStore) PutNonce(ctx context.Context, nonce string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, s.prefix+nonce, "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store nonce: %w", err)
	}
	if !ok {
		return fmt.Errorf("nonce collision")
	}
	return nil
}

// ConsumeNonce deletes the nonce in a single round trip so only one caller can win
func (s *RedisNonceStore) ConsumeNonce(ctx context.Context, nonce string) error {
	err := s.client.GetDel(ctx, s.prefix+nonce).Err()
	if errors.Is(err, redis.Nil) {
		return core.ErrNonceNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to consume nonce: %w", err)
	}
	return nil
}
