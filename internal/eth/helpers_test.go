package eth

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func lower(s string) string { return strings.ToLower(s) }

func repeat(s string, n int) string { return strings.Repeat(s, n) }

func textHashFor(m *Message) []byte { return accounts.TextHash(m.Bytes()) }

func encodeHex(b []byte) string { return hexutil.Encode(b) }
