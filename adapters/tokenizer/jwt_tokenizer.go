package tokenizer

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/eth"
	"github.com/layer-3/walletauth/ports"
)

const AudienceSession = "session:access"

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs
type JWTTokenizer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option configures a JWTTokenizer.
type Option func(*JWTTokenizer)

// WithClock overrides the time source used to validate expiry.
func WithClock(now func() time.Time) Option {
	return func(j *JWTTokenizer) { j.now = now }
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(secret []byte, issuer string, opts ...Option) ports.Tokenizer {
	j := &JWTTokenizer{
		secret: secret,
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// ClaimsToToken converts session claims to a signed JWT
func (j *JWTTokenizer) ClaimsToToken(claims *core.Claims) (string, error) {
	id := claims.ID
	if id == "" {
		id = uuid.New().String()
	}

	sc := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   claims.Address,
			ID:        id,
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		Version: core.ClaimsVersion,
		Handle:  claims.Handle,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sc)

	signedToken, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signedToken, nil
}

// TokenToClaims parses and validates a session JWT
func (j *JWTTokenizer) TokenToClaims(tokenStr string) (*core.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(AudienceSession),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, core.ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims type", core.ErrInvalidToken)
	}
	if claims.Version != core.ClaimsVersion {
		return nil, fmt.Errorf("%w: unsupported claims version %d", core.ErrInvalidToken, claims.Version)
	}
	if claims.IssuedAt == nil || claims.ID == "" {
		return nil, fmt.Errorf("%w: incomplete claims", core.ErrInvalidToken)
	}
	address, err := eth.ChecksumAddress(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}

	return &core.Claims{
		Version:   claims.Version,
		ID:        claims.ID,
		Address:   address,
		Handle:    claims.Handle,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
