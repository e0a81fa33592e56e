package ports

import (
	"context"
	"time"

	"github.com/layer-3/walletauth/core"
)

// NonceStore keeps issued sign-in nonces until they are consumed or expire
type NonceStore interface {
	PutNonce(ctx context.Context, nonce string, ttl time.Duration) error
	// ConsumeNonce atomically removes the nonce; core.ErrNonceNotFound if it
	// was never issued, already used or expired.
	ConsumeNonce(ctx context.Context, nonce string) error
}

// AccountStore persists accounts keyed by checksummed address.
// Implementations must enforce uniqueness of address and handle atomically.
type AccountStore interface {
	GetAccount(ctx context.Context, address string) (*core.Account, error)
	GetAccountByHandle(ctx context.Context, handle string) (*core.Account, error)
	// InsertAccount fails with core.ErrAccountExists or core.ErrHandleTaken on conflicts.
	InsertAccount(ctx context.Context, account *core.Account) error
	// SetHandle assigns a handle only while the account has none. It fails with
	// core.ErrHandleSet if one is already assigned and core.ErrHandleTaken on collision.
	SetHandle(ctx context.Context, address, handle string) error
	UpdateProfile(ctx context.Context, address string, update core.ProfileUpdate) (*core.Account, error)
	SetAvatarURL(ctx context.Context, address string, avatarURL *string) (*core.Account, error)
}
