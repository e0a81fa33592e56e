package ports

import "context"

// RateLimiter counts attempts per key inside a fixed window
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
