package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/eth"
	"github.com/layer-3/walletauth/ports"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHandle(t *testing.T) {
	address := "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

	first, err := DefaultHandle(address, 0)
	require.NoError(t, err)
	assert.Equal(t, "9aec9b", first)

	retry, err := DefaultHandle(address, 1)
	require.NoError(t, err)
	assert.Regexp(t, `^9aec9b-[0-9a-f]{4}$`, retry)

	_, err = DefaultHandle("0x12", 0)
	assert.Error(t, err)
}

func TestResolveHandle_CreatesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	address := eth.AddressOf(newKey(t))

	handle, err := f.accounts.ResolveHandle(ctx, strings.ToLower(address))
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(address[len(address)-6:]), handle)

	again, err := f.accounts.ResolveHandle(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, handle, again)
	assert.Equal(t, 1, f.store.Count())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.HandlesAssigned))

	acc, err := f.store.GetAccount(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, core.DefaultTier, acc.Tier)
}

func TestResolveHandle_BackfillsMissingHandle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	address := eth.AddressOf(newKey(t))
	require.NoError(t, f.store.InsertAccount(ctx, &core.Account{Address: address}))

	handle, err := f.accounts.ResolveHandle(ctx, address)
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	acc, err := f.store.GetAccount(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, handle, acc.HandleValue())
}

func TestResolveHandle_Concurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	address := eth.AddressOf(newKey(t))

	const workers = 32
	handles := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			handles[i], errs[i] = f.accounts.ResolveHandle(ctx, address)
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, handles[0], handles[i])
	}
	assert.Equal(t, 1, f.store.Count())
}

func TestResolveHandle_RetriesOnCollision(t *testing.T) {
	ctx := context.Background()
	taken := "taken1"
	generator := func(address string, attempt int) (string, error) {
		if attempt < 3 {
			return taken, nil
		}
		return "fresh1", nil
	}
	f := newFixture(t, WithHandleGenerator(generator))
	require.NoError(t, f.store.InsertAccount(ctx, &core.Account{Address: eth.AddressOf(newKey(t)), Handle: &taken}))

	handle, err := f.accounts.ResolveHandle(ctx, eth.AddressOf(newKey(t)))
	require.NoError(t, err)
	assert.Equal(t, "fresh1", handle)
}

func TestResolveHandle_Exhausted(t *testing.T) {
	ctx := context.Background()
	taken := "taken1"
	f := newFixture(t, WithHandleGenerator(func(string, int) (string, error) { return taken, nil }))
	require.NoError(t, f.store.InsertAccount(ctx, &core.Account{Address: eth.AddressOf(newKey(t)), Handle: &taken}))

	_, err := f.accounts.ResolveHandle(ctx, eth.AddressOf(newKey(t)))
	assert.ErrorIs(t, err, core.ErrStorage)
}

func TestResolveHandle_InvalidAddress(t *testing.T) {
	f := newFixture(t)
	_, err := f.accounts.ResolveHandle(context.Background(), "not-an-address")
	assert.Error(t, err)
	assert.Equal(t, 0, f.store.Count())
}

type failingStore struct {
	ports.AccountStore
	err error
}

func (s failingStore) GetAccount(ctx context.Context, address string) (*core.Account, error) {
	return nil, s.err
}

type slowStore struct {
	ports.AccountStore
}

func (slowStore) GetAccount(ctx context.Context, address string) (*core.Account, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResolveHandle_StorageErrors(t *testing.T) {
	f := newFixture(t)
	address := eth.AddressOf(newKey(t))

	accounts := NewAccountService(failingStore{err: errors.New("connection refused")}, f.blobs, nil, f.metrics, f.accounts.log)
	_, err := accounts.ResolveHandle(context.Background(), address)
	assert.ErrorIs(t, err, core.ErrStorage)

	accounts = NewAccountService(slowStore{}, f.blobs, nil, f.metrics, f.accounts.log, WithStoreTimeout(10*time.Millisecond))
	_, err = accounts.ResolveHandle(context.Background(), address)
	assert.ErrorIs(t, err, core.ErrStorage)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	address := eth.AddressOf(newKey(t))

	name, bio := "  Vitalik  ", "builder"
	acc, err := f.accounts.UpdateProfile(ctx, address, core.ProfileUpdate{DisplayName: &name, Bio: &bio})
	require.NoError(t, err)
	require.NotNil(t, acc.DisplayName)
	assert.Equal(t, "Vitalik", *acc.DisplayName)
	assert.Equal(t, "builder", *acc.Bio)
	assert.NotNil(t, acc.Handle)

	empty := ""
	acc, err = f.accounts.UpdateProfile(ctx, address, core.ProfileUpdate{Bio: &empty})
	require.NoError(t, err)
	assert.Nil(t, acc.Bio)
	assert.Equal(t, "Vitalik", *acc.DisplayName)

	long := strings.Repeat("é", maxDisplayNameLength+1)
	_, err = f.accounts.UpdateProfile(ctx, address, core.ProfileUpdate{DisplayName: &long})
	assert.ErrorIs(t, err, core.ErrInvalidProfile)

	longBio := strings.Repeat("b", maxBioLength+1)
	_, err = f.accounts.UpdateProfile(ctx, address, core.ProfileUpdate{Bio: &longBio})
	assert.ErrorIs(t, err, core.ErrInvalidProfile)
}

func TestGetPublicProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	address := eth.AddressOf(newKey(t))
	handle, err := f.accounts.ResolveHandle(ctx, address)
	require.NoError(t, err)

	profile, err := f.accounts.GetPublicProfile(ctx, " "+strings.ToUpper(handle)+" ")
	require.NoError(t, err)
	assert.Equal(t, handle, profile.Handle)
	assert.Equal(t, address, profile.Address)
	assert.Equal(t, core.DefaultTier, profile.Tier)
	assert.False(t, profile.JoinedAt.IsZero())

	_, err = f.accounts.GetPublicProfile(ctx, "   ")
	assert.ErrorIs(t, err, core.ErrInvalidHandle)

	_, err = f.accounts.GetPublicProfile(ctx, "nobody")
	assert.ErrorIs(t, err, core.ErrAccountNotFound)
}

var pngImage = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

func TestAvatarLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	address := eth.AddressOf(newKey(t))

	acc, err := f.accounts.UploadAvatar(ctx, address, pngImage)
	require.NoError(t, err)
	require.NotNil(t, acc.AvatarURL)
	assert.True(t, strings.HasPrefix(*acc.AvatarURL, testBaseURL+"/avatars/"))

	firstKey := strings.TrimPrefix(*acc.AvatarURL, testBaseURL+"/avatars/")
	stored, err := f.accounts.GetAvatar(ctx, firstKey)
	require.NoError(t, err)
	assert.Equal(t, "image/png", stored.ContentType)
	assert.Equal(t, pngImage, stored.Data)

	acc, err = f.accounts.UploadAvatar(ctx, address, pngImage)
	require.NoError(t, err)
	_, err = f.accounts.GetAvatar(ctx, firstKey)
	assert.ErrorIs(t, err, core.ErrBlobNotFound)

	secondKey := strings.TrimPrefix(*acc.AvatarURL, testBaseURL+"/avatars/")
	acc, err = f.accounts.DeleteAvatar(ctx, address)
	require.NoError(t, err)
	assert.Nil(t, acc.AvatarURL)
	_, err = f.accounts.GetAvatar(ctx, secondKey)
	assert.ErrorIs(t, err, core.ErrBlobNotFound)
}

func TestUploadAvatar_Rejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithAvatarMaxBytes(64))
	address := eth.AddressOf(newKey(t))

	_, err := f.accounts.UploadAvatar(ctx, address, nil)
	assert.ErrorIs(t, err, core.ErrInvalidProfile)

	_, err = f.accounts.UploadAvatar(ctx, address, []byte("just some text, not an image"))
	assert.ErrorIs(t, err, core.ErrInvalidProfile)

	big := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	_, err = f.accounts.UploadAvatar(ctx, address, big)
	assert.ErrorIs(t, err, core.ErrInvalidProfile)
}
