package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// MemoryAccountStore keeps accounts in maps guarded by a single mutex,
// which makes every write an atomic check-and-set.
type MemoryAccountStore struct {
	byAddress map[string]*core.Account
	byHandle  map[string]string
	mu        sync.RWMutex
}

// NewMemoryAccountStore creates an empty in-memory account store
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		byAddress: make(map[string]*core.Account),
		byHandle:  make(map[string]string),
	}
}

var _ ports.AccountStore = (*MemoryAccountStore)(nil)

func (s *MemoryAccountStore) GetAccount(ctx context.Context, address string) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.byAddress[address]
	if !ok {
		return nil, core.ErrAccountNotFound
	}
	return copyAccount(acc), nil
}

func (s *MemoryAccountStore) GetAccountByHandle(ctx context.Context, handle string) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	address, ok := s.byHandle[handle]
	if !ok {
		return nil, core.ErrAccountNotFound
	}
	return copyAccount(s.byAddress[address]), nil
}

func (s *MemoryAccountStore) InsertAccount(ctx context.Context, account *core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byAddress[account.Address]; exists {
		return core.ErrAccountExists
	}
	if account.Handle != nil {
		if _, taken := s.byHandle[*account.Handle]; taken {
			return core.ErrHandleTaken
		}
	}

	now := time.Now().UTC()
	acc := copyAccount(account)
	if acc.Tier == "" {
		acc.Tier = core.DefaultTier
	}
	acc.CreatedAt, acc.UpdatedAt = now, now

	s.byAddress[acc.Address] = acc
	if acc.Handle != nil {
		s.byHandle[*acc.Handle] = acc.Address
	}
	account.Tier, account.CreatedAt, account.UpdatedAt = acc.Tier, now, now
	return nil
}

func (s *MemoryAccountStore) SetHandle(ctx context.Context, address, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byAddress[address]
	if !ok {
		return core.ErrAccountNotFound
	}
	if acc.Handle != nil {
		return core.ErrHandleSet
	}
	if _, taken := s.byHandle[handle]; taken {
		return core.ErrHandleTaken
	}

	acc.Handle = &handle
	acc.UpdatedAt = time.Now().UTC()
	s.byHandle[handle] = address
	return nil
}

func (s *MemoryAccountStore) UpdateProfile(ctx context.Context, address string, update core.ProfileUpdate) (*core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byAddress[address]
	if !ok {
		return nil, core.ErrAccountNotFound
	}
	if update.DisplayName != nil {
		acc.DisplayName = nullable(*update.DisplayName)
	}
	if update.Bio != nil {
		acc.Bio = nullable(*update.Bio)
	}
	acc.UpdatedAt = time.Now().UTC()
	return copyAccount(acc), nil
}

func (s *MemoryAccountStore) SetAvatarURL(ctx context.Context, address string, avatarURL *string) (*core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byAddress[address]
	if !ok {
		return nil, core.ErrAccountNotFound
	}
	acc.AvatarURL = copyString(avatarURL)
	acc.UpdatedAt = time.Now().UTC()
	return copyAccount(acc), nil
}

// Count returns the number of stored accounts.
func (s *MemoryAccountStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byAddress)
}

func copyAccount(a *core.Account) *core.Account {
	c := *a
	c.Handle = copyString(a.Handle)
	c.DisplayName = copyString(a.DisplayName)
	c.Bio = copyString(a.Bio)
	c.AvatarURL = copyString(a.AvatarURL)
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
