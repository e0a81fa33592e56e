package blob

import (
	"context"
	"testing"

	"github.com/layer-3/walletauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBlobStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBlobStore("https://app.example/")

	data := []byte{0x89, 'P', 'N', 'G'}
	require.NoError(t, s.Upload(ctx, core.Blob{Key: "k1.png", ContentType: "image/png", Data: data}))
	data[0] = 0

	got, err := s.Get(ctx, "k1.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", got.ContentType)
	assert.Equal(t, byte(0x89), got.Data[0])
	assert.Equal(t, "https://app.example/avatars/k1.png", s.PublicURL("k1.png"))

	require.NoError(t, s.Delete(ctx, "k1.png"))
	_, err = s.Get(ctx, "k1.png")
	assert.ErrorIs(t, err, core.ErrBlobNotFound)
}
