package tokenizer

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/walletauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAddress = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	testIssuer  = "walletauth-test"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func sessionClaims(now time.Time) *core.Claims {
	return &core.Claims{
		Address:   testAddress,
		Handle:    "59aec9b",
		IssuedAt:  now,
		ExpiresAt: now.Add(30 * 24 * time.Hour),
	}
}

func TestJWTTokenizer_RoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	tk := NewJWTTokenizer(testSecret, testIssuer)

	token, err := tk.ClaimsToToken(sessionClaims(now))
	require.NoError(t, err)

	claims, err := tk.TokenToClaims(token)
	require.NoError(t, err)
	assert.Equal(t, core.ClaimsVersion, claims.Version)
	assert.Equal(t, testAddress, claims.Address)
	assert.Equal(t, "59aec9b", claims.Handle)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, claims.IssuedAt.Equal(now))
	assert.True(t, claims.ExpiresAt.Equal(now.Add(30*24*time.Hour)))
}

func TestJWTTokenizer_MissingHandleSurvives(t *testing.T) {
	now := time.Now()
	tk := NewJWTTokenizer(testSecret, testIssuer)
	c := sessionClaims(now)
	c.Handle = ""

	token, err := tk.ClaimsToToken(c)
	require.NoError(t, err)

	claims, err := tk.TokenToClaims(token)
	require.NoError(t, err)
	assert.True(t, claims.HandlePending())
}

func TestJWTTokenizer_Expired(t *testing.T) {
	minted := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	token, err := NewJWTTokenizer(testSecret, testIssuer).ClaimsToToken(sessionClaims(minted))
	require.NoError(t, err)

	expiry := minted.Add(30 * 24 * time.Hour)
	_, err = NewJWTTokenizer(testSecret, testIssuer, WithClock(fixedClock(expiry.Add(-time.Minute)))).TokenToClaims(token)
	require.NoError(t, err)

	_, err = NewJWTTokenizer(testSecret, testIssuer, WithClock(fixedClock(expiry.Add(time.Second)))).TokenToClaims(token)
	assert.True(t, errors.Is(err, core.ErrInvalidToken), "got %v", err)
}

func TestJWTTokenizer_Rejects(t *testing.T) {
	now := time.Now()
	tk := NewJWTTokenizer(testSecret, testIssuer)
	valid, err := tk.ClaimsToToken(sessionClaims(now))
	require.NoError(t, err)

	sign := func(claims jwt.Claims, method jwt.SigningMethod, key interface{}) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	registered := func() jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   testAddress,
			ID:        "id-1",
			Audience:  jwt.ClaimStrings{AudienceSession},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}
	}

	otherIssuer := registered()
	otherIssuer.Issuer = "someone-else"
	noExpiry := registered()
	noExpiry.ExpiresAt = nil
	badSubject := registered()
	badSubject.Subject = "not-an-address"

	tests := map[string]string{
		"garbage":         "not.a.token",
		"empty":           "",
		"tampered":        valid[:len(valid)-2] + "xx",
		"wrong secret":    sign(SessionClaims{RegisteredClaims: registered(), Version: 1}, jwt.SigningMethodHS256, []byte("another-secret-another-secret-!!")),
		"alg none":        sign(SessionClaims{RegisteredClaims: registered(), Version: 1}, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType),
		"hs512":           sign(SessionClaims{RegisteredClaims: registered(), Version: 1}, jwt.SigningMethodHS512, testSecret),
		"future version":  sign(SessionClaims{RegisteredClaims: registered(), Version: 2}, jwt.SigningMethodHS256, testSecret),
		"missing version": sign(registered(), jwt.SigningMethodHS256, testSecret),
		"other issuer":    sign(SessionClaims{RegisteredClaims: otherIssuer, Version: 1}, jwt.SigningMethodHS256, testSecret),
		"no expiry":       sign(SessionClaims{RegisteredClaims: noExpiry, Version: 1}, jwt.SigningMethodHS256, testSecret),
		"subject mangled": sign(SessionClaims{RegisteredClaims: badSubject, Version: 1}, jwt.SigningMethodHS256, testSecret),
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			claims, err := tk.TokenToClaims(token)
			assert.Nil(t, claims)
			assert.True(t, errors.Is(err, core.ErrInvalidToken), "got %v", err)
		})
	}
}
