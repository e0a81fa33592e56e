package ports

import (
	"context"

	"github.com/layer-3/walletauth/core"
)

// BlobStore holds avatar images
type BlobStore interface {
	Upload(ctx context.Context, blob core.Blob) error
	Get(ctx context.Context, key string) (core.Blob, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}
