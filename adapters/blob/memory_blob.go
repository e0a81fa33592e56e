package blob

import (
	"context"
	"strings"
	"sync"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// MemoryBlobStore is an in-memory BlobStore, intended for development and tests
type MemoryBlobStore struct {
	blobs   map[string]core.Blob
	baseURL string
	mu      sync.RWMutex
}

// NewMemoryBlobStore creates a blob store whose public URLs live under baseURL
func NewMemoryBlobStore(baseURL string) ports.BlobStore {
	return &MemoryBlobStore{
		blobs:   make(map[string]core.Blob),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (s *MemoryBlobStore) Upload(ctx context.Context, blob core.Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := make([]byte, len(blob.Data))
	copy(data, blob.Data)
	blob.Data = data
	s.blobs[blob.Key] = blob
	return nil
}

func (s *MemoryBlobStore) Get(ctx context.Context, key string) (core.Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.blobs[key]
	if !ok {
		return core.Blob{}, core.ErrBlobNotFound
	}
	return blob, nil
}

func (s *MemoryBlobStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, key)
	return nil
}

func (s *MemoryBlobStore) PublicURL(key string) string {
	return publicURL(s.baseURL, key)
}

func publicURL(baseURL, key string) string {
	return baseURL + "/avatars/" + key
}
