package blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/redis/go-redis/v9"
)

const (
	fieldContentType = "content_type"
	fieldData        = "data"
)

// RedisBlobStore keeps small blobs as Redis hashes
type RedisBlobStore struct {
	client  *redis.Client
	prefix  string
	baseURL string
}

// NewRedisBlobStore creates a new Redis blob store
func NewRedisBlobStore(client *redis.Client, baseURL string) ports.BlobStore {
	return &RedisBlobStore{
		client:  client,
		prefix:  "walletauth:blob:",
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (s *RedisBlobStore) Upload(ctx context.Context, blob core.Blob) error {
	err := s.client.HSet(ctx, s.prefix+blob.Key,
		fieldContentType, blob.ContentType,
		fieldData, blob.Data,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to upload blob: %w", err)
	}
	return nil
}

func (s *RedisBlobStore) Get(ctx context.Context, key string) (core.Blob, error) {
	values, err := s.client.HGetAll(ctx, s.prefix+key).Result()
	if err != nil {
		return core.Blob{}, fmt.Errorf("failed to get blob: %w", err)
	}
	data, ok := values[fieldData]
	if !ok {
		return core.Blob{}, core.ErrBlobNotFound
	}
	return core.Blob{
		Key:         key,
		ContentType: values[fieldContentType],
		Data:        []byte(data),
	}, nil
}

func (s *RedisBlobStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (s *RedisBlobStore) PublicURL(key string) string {
	return publicURL(s.baseURL, key)
}
