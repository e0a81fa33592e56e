package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// MemoryNonceStore is an in-memory implementation of the NonceStore interface
type MemoryNonceStore struct {
	nonces map[string]time.Time
	now    func() time.Time
	mu     sync.Mutex
}

// NewMemoryNonceStore creates a new in-memory nonce store
func NewMemoryNonceStore() ports.NonceStore {
	return newMemoryNonceStore(time.Now)
}

func newMemoryNonceStore(now func() time.Time) *MemoryNonceStore {
	return &MemoryNonceStore{
		nonces: make(map[string]time.Time),
		now:    now,
	}
}

// PutNonce records a nonce until ttl elapses
func (s *MemoryNonceStore) PutNonce(ctx context.Context, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for n, expiry := range s.nonces {
		if !now.Before(expiry) {
			delete(s.nonces, n)
		}
	}

	s.nonces[nonce] = now.Add(ttl)
	return nil
}

// ConsumeNonce removes a live nonce
func (s *MemoryNonceStore) ConsumeNonce(ctx context.Context, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, exists := s.nonces[nonce]
	if !exists {
		return core.ErrNonceNotFound
	}
	delete(s.nonces, nonce)

	if !s.now().Before(expiry) {
		return core.ErrNonceNotFound
	}
	return nil
}
