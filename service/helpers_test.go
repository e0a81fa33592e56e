package service

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth/adapters/blob"
	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/internal/eth"
	"github.com/layer-3/walletauth/internal/metrics"
	"github.com/layer-3/walletauth/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testDomain  = "app.example"
	testBaseURL = "https://app.example"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fixture struct {
	auth      *AuthService
	accounts  *AccountService
	store     *store.MemoryAccountStore
	nonces    ports.NonceStore
	blobs     ports.BlobStore
	tokenizer ports.Tokenizer
	pubSub    *gochannel.GoChannel
	metrics   *metrics.Metrics
	now       time.Time
}

func newFixture(t *testing.T, opts ...AccountOption) *fixture {
	t.Helper()

	f := &fixture{
		store:   store.NewMemoryAccountStore(),
		nonces:  store.NewMemoryNonceStore(),
		blobs:   blob.NewMemoryBlobStore(testBaseURL),
		pubSub:  gochannel.NewGoChannel(gochannel.Config{}, events.NewZapLogger(zap.NewNop())),
		metrics: metrics.New(prometheus.NewRegistry()),
		now:     time.Now(),
	}
	t.Cleanup(func() { _ = f.pubSub.Close() })

	clock := func() time.Time { return f.now }
	f.tokenizer = tokenizer.NewJWTTokenizer(testSecret, "walletauth", tokenizer.WithClock(clock))
	publisher := events.NewWatermillPublisher(f.pubSub)

	f.accounts = NewAccountService(f.store, f.blobs, publisher, f.metrics, zap.NewNop(), opts...)
	f.auth = NewAuthService(
		AuthSettings{Domain: testDomain, SessionTTL: time.Hour},
		eth.NewVerifier(eth.WithClock(clock)),
		f.tokenizer,
		f.nonces,
		f.accounts,
		publisher,
		f.metrics,
		zap.NewNop(),
	)
	f.auth.now = clock
	return f
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func (f *fixture) message(key *ecdsa.PrivateKey, nonce string) *eth.Message {
	return &eth.Message{
		Scheme:    "https",
		Domain:    testDomain,
		Address:   eth.AddressOf(key),
		Statement: "Sign in to app.example",
		URI:       testBaseURL,
		Version:   eth.MessageVersion,
		ChainID:   1,
		Nonce:     nonce,
		IssuedAt:  f.now.UTC().Format(time.RFC3339),
	}
}

func sign(t *testing.T, key *ecdsa.PrivateKey, msg *eth.Message) Credential {
	t.Helper()
	sig, err := eth.SignMessage(key, msg.Bytes())
	require.NoError(t, err)
	return Credential{Message: msg.String(), Signature: sig}
}
