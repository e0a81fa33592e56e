package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	handleBaseLength  = 6
	handleSuffixBytes = 2
	maxHandleAttempts = 8
)

// HandleGenerator proposes the handle for an address. attempt starts at zero
// and grows after every collision.
type HandleGenerator func(address string, attempt int) (string, error)

// DefaultHandle uses the last six hex digits of the address, then appends a
// random suffix once that base collides.
func DefaultHandle(address string, attempt int) (string, error) {
	hexDigits := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X"))
	if len(hexDigits) < handleBaseLength {
		return "", fmt.Errorf("address %q too short for a handle", address)
	}
	base := hexDigits[len(hexDigits)-handleBaseLength:]
	if attempt == 0 {
		return base, nil
	}

	suffix := make([]byte, handleSuffixBytes)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("failed to generate handle suffix: %w", err)
	}
	return base + "-" + hex.EncodeToString(suffix), nil
}
