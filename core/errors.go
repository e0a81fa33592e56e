package core

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedMessage = errors.New("malformed sign-in message")
	ErrVerification     = errors.New("sign-in verification failed")
	ErrInvalidToken     = errors.New("invalid token")
	ErrStorage          = errors.New("storage operation failed")

	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrHandleTaken     = errors.New("handle already taken")
	ErrHandleSet       = errors.New("handle already assigned")
	ErrNonceNotFound   = errors.New("nonce not found or expired")
	ErrBlobNotFound    = errors.New("blob not found")
	ErrInvalidProfile  = errors.New("invalid profile update")
	ErrInvalidHandle   = errors.New("invalid handle")
)

// Reason says why a sign-in message failed verification.
type Reason string

const (
	ReasonDomainMismatch   Reason = "domain_mismatch"
	ReasonNonceMismatch    Reason = "nonce_mismatch"
	ReasonSignatureInvalid Reason = "signature_invalid"
	ReasonExpired          Reason = "expired"
)

// VerificationError is returned when a well-formed message is rejected.
// It matches ErrVerification with errors.Is.
type VerificationError struct {
	Reason Reason
	Err    error
}

func NewVerificationError(reason Reason, err error) *VerificationError {
	return &VerificationError{Reason: reason, Err: err}
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrVerification, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrVerification, e.Reason)
}

func (e *VerificationError) Unwrap() error { return e.Err }

func (e *VerificationError) Is(target error) bool {
	return target == ErrVerification
}

// ReasonOf extracts the verification reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var ve *VerificationError
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	return "", false
}
