package eth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth/core"
)

const (
	signatureLength = crypto.SignatureLength
	recoveryIDIndex = crypto.RecoveryIDOffset

	// DefaultClockSkew is tolerated between a wallet clock and ours.
	DefaultClockSkew = time.Minute
)

var errBadSignature = errors.New("signature must be 65 bytes of hex")

// Verifier checks signed sign-in messages. It performs no I/O.
type Verifier struct {
	now    func() time.Time
	maxAge time.Duration
	skew   time.Duration
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithClock overrides the time source.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// WithMaxAge rejects messages issued longer ago than d. Zero disables the check.
func WithMaxAge(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.maxAge = d }
}

// WithClockSkew sets how far in the future an issued-at may be.
func WithClockSkew(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.skew = d }
}

// NewVerifier creates a new message verifier
func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{
		now:  time.Now,
		skew: DefaultClockSkew,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify runs the checks in a fixed order and stops at the first failure:
// domain, nonce, signature, then validity window.
func (v *Verifier) Verify(msg *Message, signature, expectedNonce, expectedDomain string) error {
	if !strings.EqualFold(msg.Domain, expectedDomain) {
		return core.NewVerificationError(core.ReasonDomainMismatch,
			fmt.Errorf("message domain %q, expected %q", msg.Domain, expectedDomain))
	}

	if expectedNonce == "" || subtle.ConstantTimeCompare([]byte(msg.Nonce), []byte(expectedNonce)) != 1 {
		return core.NewVerificationError(core.ReasonNonceMismatch, nil)
	}

	signer, err := RecoverAddress(msg.Bytes(), signature)
	if err != nil {
		return core.NewVerificationError(core.ReasonSignatureInvalid, err)
	}
	if signer != common.HexToAddress(msg.Address) {
		return core.NewVerificationError(core.ReasonSignatureInvalid,
			fmt.Errorf("recovered %s, message claims %s", signer.Hex(), msg.Address))
	}

	return v.checkWindow(msg)
}

func (v *Verifier) checkWindow(msg *Message) error {
	now := v.now()

	if exp, ok, err := msg.ExpirationTimeValue(); err != nil {
		return core.NewVerificationError(core.ReasonExpired, err)
	} else if ok && !now.Before(exp) {
		return core.NewVerificationError(core.ReasonExpired, fmt.Errorf("expired at %s", msg.ExpirationTime))
	}

	if nbf, ok, err := msg.NotBeforeValue(); err != nil {
		return core.NewVerificationError(core.ReasonExpired, err)
	} else if ok && now.Before(nbf) {
		return core.NewVerificationError(core.ReasonExpired, fmt.Errorf("not valid before %s", msg.NotBefore))
	}

	issuedAt, err := msg.IssuedAtTime()
	if err != nil {
		return core.NewVerificationError(core.ReasonExpired, err)
	}
	if issuedAt.After(now.Add(v.skew)) {
		return core.NewVerificationError(core.ReasonExpired, fmt.Errorf("issued in the future at %s", msg.IssuedAt))
	}
	if v.maxAge > 0 && now.Sub(issuedAt) > v.maxAge {
		return core.NewVerificationError(core.ReasonExpired, fmt.Errorf("issued %s ago", now.Sub(issuedAt).Round(time.Second)))
	}

	return nil
}

// RecoverAddress returns the account that produced an EIP-191 personal_sign
// signature over data.
func RecoverAddress(data []byte, signature string) (common.Address, error) {
	if !strings.HasPrefix(signature, "0x") {
		signature = "0x" + signature
	}
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != signatureLength {
		return common.Address{}, errBadSignature
	}

	// Wallets emit V as 27/28; go-ethereum expects 0/1.
	if sig[recoveryIDIndex] >= 27 {
		sig[recoveryIDIndex] -= 27
	}
	if sig[recoveryIDIndex] > 1 {
		return common.Address{}, fmt.Errorf("invalid recovery id %d", sig[recoveryIDIndex])
	}

	pub, err := crypto.SigToPub(accounts.TextHash(data), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
