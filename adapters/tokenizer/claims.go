package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims combines standard claims with the session-specific ones.
// Subject carries the wallet address.
type SessionClaims struct {
	jwt.RegisteredClaims
	Version int    `json:"ver"`
	Handle  string `json:"handle,omitempty"`
}
