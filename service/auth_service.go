package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/eth"
	"github.com/layer-3/walletauth/internal/metrics"
	"github.com/layer-3/walletauth/ports"
	"go.uber.org/zap"
)

const (
	DefaultSessionTTL = 30 * 24 * time.Hour
	DefaultNonceTTL   = 10 * time.Minute

	nonceBytes = 16
)

// Credential is a signed sign-in message as submitted by the wallet.
type Credential struct {
	Message   string
	Signature string
}

// SignInResult is the post-condition of a sign-in attempt. Reason is set for
// denied attempts and is meant for logs only.
type SignInResult struct {
	Outcome core.Outcome
	Claims  *core.Claims
	Token   string
	Reason  string
}

// SessionResult is the post-condition of reading a session token. Token is set
// when the session was re-minted and the client must store the new value.
type SessionResult struct {
	Outcome core.Outcome
	Claims  *core.Claims
	Token   string
}

// AuthSettings holds the values the auth flow binds messages and sessions to.
type AuthSettings struct {
	Domain       string
	SessionTTL   time.Duration
	NonceTTL     time.Duration
	StoreTimeout time.Duration
}

// AuthService handles authentication business logic
type AuthService struct {
	settings  AuthSettings
	verifier  *eth.Verifier
	tokenizer ports.Tokenizer
	nonces    ports.NonceStore
	accounts  *AccountService
	eventPub  ports.EventPublisher
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	settings AuthSettings,
	verifier *eth.Verifier,
	tokenizer ports.Tokenizer,
	nonces ports.NonceStore,
	accounts *AccountService,
	eventPub ports.EventPublisher,
	m *metrics.Metrics,
	log *zap.Logger,
) *AuthService {
	if settings.SessionTTL <= 0 {
		settings.SessionTTL = DefaultSessionTTL
	}
	if settings.NonceTTL <= 0 {
		settings.NonceTTL = DefaultNonceTTL
	}
	if settings.StoreTimeout <= 0 {
		settings.StoreTimeout = DefaultStoreTimeout
	}
	return &AuthService{
		settings:  settings,
		verifier:  verifier,
		tokenizer: tokenizer,
		nonces:    nonces,
		accounts:  accounts,
		eventPub:  eventPub,
		metrics:   m,
		log:       log.Named("auth"),
		now:       time.Now,
	}
}

// IssueNonce generates and stores a single-use sign-in nonce
func (s *AuthService) IssueNonce(ctx context.Context) (string, time.Time, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(b)

	storeCtx, cancel := context.WithTimeout(ctx, s.settings.StoreTimeout)
	defer cancel()
	if err := s.nonces.PutNonce(storeCtx, nonce, s.settings.NonceTTL); err != nil {
		s.log.Error("failed to store nonce", zap.Error(err))
		return "", time.Time{}, fmt.Errorf("%w: put nonce: %w", core.ErrStorage, err)
	}

	s.metrics.NoncesIssued.Inc()
	return nonce, s.now().Add(s.settings.NonceTTL), nil
}

// SignIn verifies a signed message against the nonce bound to the caller and
// mints a session for the signing address. Every failure yields OutcomeDenied.
func (s *AuthService) SignIn(ctx context.Context, cred Credential, expectedNonce string) SignInResult {
	msg, err := eth.ParseMessage(cred.Message)
	if err != nil {
		return s.deny("malformed", err)
	}

	if err := s.verifier.Verify(msg, cred.Signature, expectedNonce, s.settings.Domain); err != nil {
		reason, ok := core.ReasonOf(err)
		if !ok {
			return s.deny("error", err)
		}
		return s.deny(string(reason), err, zap.String("address", msg.Address))
	}

	address, err := eth.ChecksumAddress(msg.Address)
	if err != nil {
		return s.deny("malformed", err)
	}

	// Consuming after verification keeps forged attempts from burning a
	// legitimate nonce. Only one of two concurrent replays can win.
	storeCtx, cancel := context.WithTimeout(ctx, s.settings.StoreTimeout)
	err = s.nonces.ConsumeNonce(storeCtx, msg.Nonce)
	cancel()
	switch {
	case errors.Is(err, core.ErrNonceNotFound):
		return s.deny(string(core.ReasonNonceMismatch), err, zap.String("address", address))
	case err != nil:
		return s.deny("storage", err, zap.String("address", address))
	}

	// The nonce stays consumed when the account store fails; the client
	// fetches a new one.
	handle, err := s.accounts.ResolveHandle(ctx, address)
	if err != nil {
		return s.deny("storage", err, zap.String("address", address))
	}

	now := s.now()
	claims := &core.Claims{
		Version:   core.ClaimsVersion,
		ID:        uuid.New().String(),
		Address:   address,
		Handle:    handle,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.settings.SessionTTL),
	}
	token, err := s.tokenizer.ClaimsToToken(claims)
	if err != nil {
		return s.deny("token", err, zap.String("address", address))
	}

	if err := s.eventPub.PublishSignedIn(ctx, address, claims.ID); err != nil {
		s.log.Warn("failed to publish sign-in event", zap.String("address", address), zap.Error(err))
	}

	s.metrics.SignIns.WithLabelValues("issued").Inc()
	s.log.Info("signed in", zap.String("address", address), zap.String("handle", handle))
	return SignInResult{Outcome: core.OutcomeIssued, Claims: claims, Token: token}
}

// ReadSession validates a session token. A session whose handle is still
// pending is resolved again and re-minted with the same expiry.
func (s *AuthService) ReadSession(ctx context.Context, token string) SessionResult {
	res := s.readSession(ctx, token)
	s.metrics.SessionReads.WithLabelValues(string(res.Outcome)).Inc()
	return res
}

func (s *AuthService) readSession(ctx context.Context, token string) SessionResult {
	if token == "" {
		return SessionResult{Outcome: core.OutcomeDenied}
	}

	claims, err := s.tokenizer.TokenToClaims(token)
	if err != nil {
		s.log.Debug("session token rejected", zap.Error(err))
		return SessionResult{Outcome: core.OutcomeDenied}
	}
	if !claims.HandlePending() {
		return SessionResult{Outcome: core.OutcomeValid, Claims: claims}
	}

	handle, err := s.accounts.ResolveHandle(ctx, claims.Address)
	if err != nil {
		s.log.Warn("handle still pending", zap.String("address", claims.Address), zap.Error(err))
		return SessionResult{Outcome: core.OutcomeValid, Claims: claims}
	}

	refreshed := *claims
	refreshed.Handle = handle
	refreshed.IssuedAt = s.now()
	fresh, err := s.tokenizer.ClaimsToToken(&refreshed)
	if err != nil {
		s.log.Error("failed to re-mint session", zap.String("address", claims.Address), zap.Error(err))
		claims.Handle = handle
		return SessionResult{Outcome: core.OutcomeValid, Claims: claims}
	}

	return SessionResult{Outcome: core.OutcomeRefreshed, Claims: &refreshed, Token: fresh}
}

// SignOut ends a session. Sessions are stateless, so this only announces the
// sign-out; the transport drops the cookie. It reports whether token was valid.
func (s *AuthService) SignOut(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	claims, err := s.tokenizer.TokenToClaims(token)
	if err != nil {
		return false
	}

	if err := s.eventPub.PublishSignedOut(ctx, claims.Address, claims.ID); err != nil {
		s.log.Warn("failed to publish sign-out event", zap.String("address", claims.Address), zap.Error(err))
	}
	s.log.Info("signed out", zap.String("address", claims.Address))
	return true
}

func (s *AuthService) deny(reason string, err error, fields ...zap.Field) SignInResult {
	s.metrics.SignIns.WithLabelValues(reason).Inc()

	fields = append(fields, zap.String("reason", reason), zap.Error(err))
	if reason == "storage" || reason == "token" {
		s.log.Error("sign-in failed", fields...)
	} else {
		s.log.Info("sign-in denied", fields...)
	}
	return SignInResult{Outcome: core.OutcomeDenied, Reason: reason}
}
