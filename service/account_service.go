package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/eth"
	"github.com/layer-3/walletauth/internal/metrics"
	"github.com/layer-3/walletauth/ports"
	"go.uber.org/zap"
)

const (
	DefaultStoreTimeout   = 3 * time.Second
	DefaultAvatarMaxBytes = 2 << 20

	maxDisplayNameLength = 64
	maxBioLength         = 280
)

var avatarExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// AccountService resolves wallet addresses to accounts and manages profiles
type AccountService struct {
	store   ports.AccountStore
	blobs   ports.BlobStore
	events  ports.EventPublisher
	metrics *metrics.Metrics
	log     *zap.Logger

	generate       HandleGenerator
	storeTimeout   time.Duration
	avatarMaxBytes int
}

// AccountOption configures an AccountService.
type AccountOption func(*AccountService)

func WithHandleGenerator(g HandleGenerator) AccountOption {
	return func(s *AccountService) { s.generate = g }
}

func WithStoreTimeout(d time.Duration) AccountOption {
	return func(s *AccountService) { s.storeTimeout = d }
}

func WithAvatarMaxBytes(n int) AccountOption {
	return func(s *AccountService) { s.avatarMaxBytes = n }
}

// NewAccountService creates a new account service
func NewAccountService(
	store ports.AccountStore,
	blobs ports.BlobStore,
	events ports.EventPublisher,
	m *metrics.Metrics,
	log *zap.Logger,
	opts ...AccountOption,
) *AccountService {
	s := &AccountService{
		store:          store,
		blobs:          blobs,
		events:         events,
		metrics:        m,
		log:            log.Named("accounts"),
		generate:       DefaultHandle,
		storeTimeout:   DefaultStoreTimeout,
		avatarMaxBytes: DefaultAvatarMaxBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveHandle returns the handle of the account owned by address,
// creating the account or assigning a handle when either is missing.
// Concurrent calls for the same address converge on a single handle.
func (s *AccountService) ResolveHandle(ctx context.Context, address string) (string, error) {
	address, err := eth.ChecksumAddress(address)
	if err != nil {
		return "", err
	}

	attempt := 0
	// Every pass either returns, or consumes a candidate, or re-reads after
	// losing a race to another writer.
	for pass := 0; pass < 2*maxHandleAttempts; pass++ {
		acc, err := s.getAccount(ctx, address)
		switch {
		case err == nil && acc.Handle != nil:
			return *acc.Handle, nil
		case errors.Is(err, core.ErrAccountNotFound):
			acc = nil
		case err != nil:
			return "", s.storageError("get account", err)
		}

		if attempt >= maxHandleAttempts {
			break
		}
		candidate, err := s.generate(address, attempt)
		if err != nil {
			return "", s.storageError("generate handle", err)
		}

		if acc == nil {
			err = s.withTimeout(ctx, func(ctx context.Context) error {
				return s.store.InsertAccount(ctx, &core.Account{Address: address, Handle: &candidate})
			})
		} else {
			err = s.withTimeout(ctx, func(ctx context.Context) error {
				return s.store.SetHandle(ctx, address, candidate)
			})
		}

		switch {
		case err == nil:
			s.handleAssigned(ctx, address, candidate)
			return candidate, nil
		case errors.Is(err, core.ErrHandleTaken):
			s.log.Debug("handle collision", zap.String("address", address), zap.String("candidate", candidate))
			attempt++
		case errors.Is(err, core.ErrAccountExists), errors.Is(err, core.ErrHandleSet), errors.Is(err, core.ErrAccountNotFound):
			// Another writer won; the next pass reads its result.
		default:
			return "", s.storageError("assign handle", err)
		}
	}

	s.log.Error("handle assignment exhausted", zap.String("address", address), zap.Int("attempts", attempt))
	return "", fmt.Errorf("%w: no free handle for %s after %d attempts", core.ErrStorage, address, attempt)
}

// GetProfile returns the caller's own account, provisioning it if needed.
func (s *AccountService) GetProfile(ctx context.Context, address string) (*core.Account, error) {
	if _, err := s.ResolveHandle(ctx, address); err != nil {
		return nil, err
	}
	address, _ = eth.ChecksumAddress(address)

	acc, err := s.getAccount(ctx, address)
	if err != nil {
		return nil, s.storageError("get account", err)
	}
	return acc, nil
}

// GetPublicProfile looks an account up by handle.
func (s *AccountService) GetPublicProfile(ctx context.Context, handle string) (*core.PublicProfile, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	if handle == "" {
		return nil, core.ErrInvalidHandle
	}

	var acc *core.Account
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		acc, err = s.store.GetAccountByHandle(ctx, handle)
		return err
	})
	if errors.Is(err, core.ErrAccountNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, s.storageError("get account by handle", err)
	}

	profile := acc.Public()
	return &profile, nil
}

// UpdateProfile validates and applies user-editable fields.
func (s *AccountService) UpdateProfile(ctx context.Context, address string, update core.ProfileUpdate) (*core.Account, error) {
	if update.DisplayName != nil {
		v := strings.TrimSpace(*update.DisplayName)
		if utf8.RuneCountInString(v) > maxDisplayNameLength {
			return nil, fmt.Errorf("%w: display_name exceeds %d characters", core.ErrInvalidProfile, maxDisplayNameLength)
		}
		update.DisplayName = &v
	}
	if update.Bio != nil {
		v := strings.TrimSpace(*update.Bio)
		if utf8.RuneCountInString(v) > maxBioLength {
			return nil, fmt.Errorf("%w: bio exceeds %d characters", core.ErrInvalidProfile, maxBioLength)
		}
		update.Bio = &v
	}

	if _, err := s.ResolveHandle(ctx, address); err != nil {
		return nil, err
	}
	address, _ = eth.ChecksumAddress(address)

	var acc *core.Account
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		acc, err = s.store.UpdateProfile(ctx, address, update)
		return err
	})
	if err != nil {
		return nil, s.storageError("update profile", err)
	}
	return acc, nil
}

// UploadAvatar stores a new avatar image and replaces the previous one.
// The content type is sniffed from the data, not taken from the client.
func (s *AccountService) UploadAvatar(ctx context.Context, address string, data []byte) (*core.Account, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: avatar is empty", core.ErrInvalidProfile)
	}
	if len(data) > s.avatarMaxBytes {
		return nil, fmt.Errorf("%w: avatar exceeds %d bytes", core.ErrInvalidProfile, s.avatarMaxBytes)
	}
	contentType := http.DetectContentType(data)
	ext, ok := avatarExtensions[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported avatar type %s", core.ErrInvalidProfile, contentType)
	}

	current, err := s.GetProfile(ctx, address)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%s.%s", strings.ToLower(current.Address), uuid.New().String(), ext)
	err = s.withTimeout(ctx, func(ctx context.Context) error {
		return s.blobs.Upload(ctx, core.Blob{Key: key, ContentType: contentType, Data: data})
	})
	if err != nil {
		return nil, s.storageError("upload avatar", err)
	}

	avatarURL := s.blobs.PublicURL(key)
	acc, err := s.setAvatarURL(ctx, current.Address, &avatarURL)
	if err != nil {
		s.deleteBlob(ctx, key)
		return nil, err
	}

	if oldKey, ok := s.blobKey(current.AvatarURL); ok {
		s.deleteBlob(ctx, oldKey)
	}
	return acc, nil
}

// DeleteAvatar clears the avatar and removes the stored image.
func (s *AccountService) DeleteAvatar(ctx context.Context, address string) (*core.Account, error) {
	current, err := s.GetProfile(ctx, address)
	if err != nil {
		return nil, err
	}

	acc, err := s.setAvatarURL(ctx, current.Address, nil)
	if err != nil {
		return nil, err
	}
	if key, ok := s.blobKey(current.AvatarURL); ok {
		s.deleteBlob(ctx, key)
	}
	return acc, nil
}

// GetAvatar returns a stored avatar image.
func (s *AccountService) GetAvatar(ctx context.Context, key string) (core.Blob, error) {
	var blob core.Blob
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		blob, err = s.blobs.Get(ctx, strings.TrimPrefix(key, "/"))
		return err
	})
	if errors.Is(err, core.ErrBlobNotFound) {
		return core.Blob{}, err
	}
	if err != nil {
		return core.Blob{}, s.storageError("get avatar", err)
	}
	return blob, nil
}

func (s *AccountService) getAccount(ctx context.Context, address string) (*core.Account, error) {
	var acc *core.Account
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		acc, err = s.store.GetAccount(ctx, address)
		return err
	})
	return acc, err
}

func (s *AccountService) setAvatarURL(ctx context.Context, address string, avatarURL *string) (*core.Account, error) {
	var acc *core.Account
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		acc, err = s.store.SetAvatarURL(ctx, address, avatarURL)
		return err
	})
	if err != nil {
		return nil, s.storageError("set avatar url", err)
	}
	return acc, nil
}

func (s *AccountService) deleteBlob(ctx context.Context, key string) {
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.blobs.Delete(ctx, key)
	})
	if err != nil {
		s.log.Warn("failed to delete avatar blob", zap.String("key", key), zap.Error(err))
	}
}

// blobKey recovers the blob key from an avatar URL minted by this service.
func (s *AccountService) blobKey(avatarURL *string) (string, bool) {
	if avatarURL == nil {
		return "", false
	}
	prefix := s.blobs.PublicURL("")
	if !strings.HasPrefix(*avatarURL, prefix) {
		return "", false
	}
	return strings.TrimPrefix(*avatarURL, prefix), true
}

func (s *AccountService) handleAssigned(ctx context.Context, address, handle string) {
	s.metrics.HandlesAssigned.Inc()
	s.log.Info("handle assigned", zap.String("address", address), zap.String("handle", handle))

	if err := s.events.PublishHandleAssigned(ctx, address, handle); err != nil {
		s.log.Warn("failed to publish handle event", zap.String("address", address), zap.Error(err))
	}
}

func (s *AccountService) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *AccountService) storageError(op string, err error) error {
	if errors.Is(err, core.ErrStorage) {
		return err
	}
	s.log.Error("storage failure", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s: %w", core.ErrStorage, op, err)
}
