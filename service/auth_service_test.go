package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/eth"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issueNonce(t *testing.T, f *fixture) string {
	t.Helper()
	nonce, expiresAt, err := f.auth.IssueNonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(DefaultNonceTTL), expiresAt)
	return nonce
}

func TestIssueNonce(t *testing.T) {
	f := newFixture(t)

	nonce := issueNonce(t, f)
	assert.Regexp(t, `^[0-9a-f]{32}$`, nonce)
	assert.NotEqual(t, nonce, issueNonce(t, f))
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.NoncesIssued))

	require.NoError(t, f.nonces.ConsumeNonce(context.Background(), nonce))
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := newKey(t)
	nonce := issueNonce(t, f)

	res := f.auth.SignIn(ctx, sign(t, key, f.message(key, nonce)), nonce)
	require.Equal(t, core.OutcomeIssued, res.Outcome, res.Reason)
	require.NotEmpty(t, res.Token)
	assert.Equal(t, eth.AddressOf(key), res.Claims.Address)
	assert.Equal(t, strings.ToLower(eth.AddressOf(key)[36:]), res.Claims.Handle)
	assert.Equal(t, f.now.Add(time.Hour), res.Claims.ExpiresAt)

	claims, err := f.tokenizer.TokenToClaims(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Claims.Address, claims.Address)
	assert.Equal(t, res.Claims.Handle, claims.Handle)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SignIns.WithLabelValues("issued")))
}

func TestSignIn_NonceIsSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := newKey(t)
	nonce := issueNonce(t, f)
	cred := sign(t, key, f.message(key, nonce))

	require.Equal(t, core.OutcomeIssued, f.auth.SignIn(ctx, cred, nonce).Outcome)

	replay := f.auth.SignIn(ctx, cred, nonce)
	assert.Equal(t, core.OutcomeDenied, replay.Outcome)
	assert.Equal(t, string(core.ReasonNonceMismatch), replay.Reason)
	assert.Empty(t, replay.Token)
	assert.Nil(t, replay.Claims)
}

func TestSignIn_Denied(t *testing.T) {
	f := newFixture(t)
	key := newKey(t)

	tests := []struct {
		name   string
		build  func(nonce string) (Credential, string)
		reason string
	}{
		{
			name: "malformed message",
			build: func(nonce string) (Credential, string) {
				return Credential{Message: "hello", Signature: "0x00"}, nonce
			},
			reason: "malformed",
		},
		{
			name: "other domain",
			build: func(nonce string) (Credential, string) {
				msg := f.message(key, nonce)
				msg.Domain = "evil.example"
				return sign(t, key, msg), nonce
			},
			reason: string(core.ReasonDomainMismatch),
		},
		{
			name: "nonce not bound to caller",
			build: func(nonce string) (Credential, string) {
				return sign(t, key, f.message(key, nonce)), "someothernonce1"
			},
			reason: string(core.ReasonNonceMismatch),
		},
		{
			name: "missing nonce cookie",
			build: func(nonce string) (Credential, string) {
				return sign(t, key, f.message(key, nonce)), ""
			},
			reason: string(core.ReasonNonceMismatch),
		},
		{
			name: "signed by another wallet",
			build: func(nonce string) (Credential, string) {
				msg := f.message(key, nonce)
				cred := sign(t, newKey(t), msg)
				return Credential{Message: msg.String(), Signature: cred.Signature}, nonce
			},
			reason: string(core.ReasonSignatureInvalid),
		},
		{
			name: "expired message",
			build: func(nonce string) (Credential, string) {
				msg := f.message(key, nonce)
				msg.ExpirationTime = f.now.Add(-time.Minute).UTC().Format(time.RFC3339)
				return sign(t, key, msg), nonce
			},
			reason: string(core.ReasonExpired),
		},
		{
			name: "nonce never issued",
			build: func(string) (Credential, string) {
				return sign(t, key, f.message(key, "forgednonce123")), "forgednonce123"
			},
			reason: string(core.ReasonNonceMismatch),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nonce := issueNonce(t, f)
			cred, expected := tt.build(nonce)

			res := f.auth.SignIn(context.Background(), cred, expected)
			assert.Equal(t, core.OutcomeDenied, res.Outcome)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Empty(t, res.Token)
		})
	}
	assert.Equal(t, 0, f.store.Count())
}

func TestSignIn_FailedAttemptKeepsNonce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := newKey(t)
	nonce := issueNonce(t, f)

	forged := sign(t, newKey(t), f.message(key, nonce))
	require.Equal(t, core.OutcomeDenied, f.auth.SignIn(ctx, forged, nonce).Outcome)

	res := f.auth.SignIn(ctx, sign(t, key, f.message(key, nonce)), nonce)
	assert.Equal(t, core.OutcomeIssued, res.Outcome)
}

func TestReadSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := newKey(t)
	nonce := issueNonce(t, f)
	signedIn := f.auth.SignIn(ctx, sign(t, key, f.message(key, nonce)), nonce)
	require.Equal(t, core.OutcomeIssued, signedIn.Outcome)

	res := f.auth.ReadSession(ctx, signedIn.Token)
	assert.Equal(t, core.OutcomeValid, res.Outcome)
	assert.Equal(t, signedIn.Claims.Handle, res.Claims.Handle)
	assert.Empty(t, res.Token)

	assert.Equal(t, core.OutcomeDenied, f.auth.ReadSession(ctx, "").Outcome)
	assert.Equal(t, core.OutcomeDenied, f.auth.ReadSession(ctx, "garbage").Outcome)

	f.now = f.now.Add(time.Hour + time.Second)
	expired := f.auth.ReadSession(ctx, signedIn.Token)
	assert.Equal(t, core.OutcomeDenied, expired.Outcome)
	assert.Nil(t, expired.Claims)
}

func TestReadSession_BackfillsPendingHandle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	address := eth.AddressOf(newKey(t))

	pending := &core.Claims{
		Version:   core.ClaimsVersion,
		ID:        "legacy-session",
		Address:   address,
		IssuedAt:  f.now.Add(-time.Minute),
		ExpiresAt: f.now.Add(20 * time.Minute),
	}
	token, err := f.tokenizer.ClaimsToToken(pending)
	require.NoError(t, err)

	res := f.auth.ReadSession(ctx, token)
	require.Equal(t, core.OutcomeRefreshed, res.Outcome)
	require.NotEmpty(t, res.Token)
	assert.NotEmpty(t, res.Claims.Handle)
	assert.Equal(t, pending.ExpiresAt.Unix(), res.Claims.ExpiresAt.Unix())
	assert.Equal(t, "legacy-session", res.Claims.ID)

	fresh, err := f.tokenizer.TokenToClaims(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Claims.Handle, fresh.Handle)
	assert.Equal(t, pending.ExpiresAt.Unix(), fresh.ExpiresAt.Unix())

	assert.Equal(t, core.OutcomeValid, f.auth.ReadSession(ctx, res.Token).Outcome)
}

func TestReadSession_PendingWhenResolverFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.auth.accounts = NewAccountService(slowStore{}, f.blobs, nil, f.metrics, f.accounts.log, WithStoreTimeout(5*time.Millisecond))

	token, err := f.tokenizer.ClaimsToToken(&core.Claims{
		Version:   core.ClaimsVersion,
		ID:        "pending",
		Address:   eth.AddressOf(newKey(t)),
		IssuedAt:  f.now,
		ExpiresAt: f.now.Add(time.Hour),
	})
	require.NoError(t, err)

	res := f.auth.ReadSession(ctx, token)
	assert.Equal(t, core.OutcomeValid, res.Outcome)
	assert.True(t, res.Claims.HandlePending())
	assert.Empty(t, res.Token)
}

func TestSignIn_DeniedWhenAccountStoreFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	accounts := f.auth.accounts
	f.auth.accounts = NewAccountService(failingStore{err: errors.New("connection refused")}, f.blobs, nil, f.metrics, f.accounts.log)
	key := newKey(t)
	nonce := issueNonce(t, f)
	cred := sign(t, key, f.message(key, nonce))

	res := f.auth.SignIn(ctx, cred, nonce)
	assert.Equal(t, core.OutcomeDenied, res.Outcome)
	assert.Equal(t, "storage", res.Reason)
	assert.Empty(t, res.Token)
	assert.Nil(t, res.Claims)

	// The nonce was spent on the failed attempt.
	f.auth.accounts = accounts
	res = f.auth.SignIn(ctx, cred, nonce)
	assert.Equal(t, core.OutcomeDenied, res.Outcome)
	assert.Equal(t, string(core.ReasonNonceMismatch), res.Reason)
}

func TestSignIn_DeniedWhenAccountStoreTimesOut(t *testing.T) {
	f := newFixture(t)
	f.auth.accounts = NewAccountService(slowStore{}, f.blobs, nil, f.metrics, f.accounts.log, WithStoreTimeout(5*time.Millisecond))
	key := newKey(t)
	nonce := issueNonce(t, f)

	res := f.auth.SignIn(context.Background(), sign(t, key, f.message(key, nonce)), nonce)
	assert.Equal(t, core.OutcomeDenied, res.Outcome)
	assert.Empty(t, res.Token)
}

func TestSignOut(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f := newFixture(t)

	messages, err := f.pubSub.Subscribe(ctx, events.TopicSignedOut)
	require.NoError(t, err)

	key := newKey(t)
	nonce := issueNonce(t, f)
	signedIn := f.auth.SignIn(ctx, sign(t, key, f.message(key, nonce)), nonce)
	require.Equal(t, core.OutcomeIssued, signedIn.Outcome)

	assert.False(t, f.auth.SignOut(ctx, "garbage"))
	assert.True(t, f.auth.SignOut(ctx, signedIn.Token))

	select {
	case msg := <-messages:
		msg.Ack()
		var event events.SessionEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, signedIn.Claims.Address, event.Address)
		assert.Equal(t, signedIn.Claims.ID, event.TokenID)
	case <-ctx.Done():
		t.Fatal("sign-out event was not published")
	}
}
