package ports

import "github.com/layer-3/walletauth/core"

// Tokenizer converts between session claims and signed tokens
type Tokenizer interface {
	ClaimsToToken(claims *core.Claims) (string, error)
	// TokenToClaims fails with core.ErrInvalidToken for any token that is
	// forged, expired or structurally invalid.
	TokenToClaims(token string) (*core.Claims, error)
}
