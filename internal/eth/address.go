package eth

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	return len(s) == 2+2*common.AddressLength &&
		strings.HasPrefix(s, "0x") &&
		common.IsHexAddress(s)
}

// HasValidChecksum reports whether s is an address whose casing is either
// uniform or the exact EIP-55 checksum.
func HasValidChecksum(s string) bool {
	if !IsAddress(s) {
		return false
	}
	digits := s[2:]
	if digits == strings.ToLower(digits) || digits == strings.ToUpper(digits) {
		return true
	}
	return common.HexToAddress(s).Hex() == s
}

// ChecksumAddress validates s and returns its EIP-55 checksummed form.
func ChecksumAddress(s string) (string, error) {
	if !IsAddress(s) {
		return "", fmt.Errorf("invalid ethereum address %q", s)
	}
	return common.HexToAddress(s).Hex(), nil
}

// SameAddress compares two hex addresses regardless of checksum casing.
func SameAddress(a, b string) bool {
	return IsAddress(a) && IsAddress(b) && common.HexToAddress(a) == common.HexToAddress(b)
}
