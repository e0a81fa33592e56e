// Package eth implements the Sign-In with Ethereum (EIP-4361) message format
// and EIP-191 signature recovery.
package eth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/layer-3/walletauth/core"
)

const (
	headerSuffix = " wants you to sign in with your Ethereum account:"

	tagURI            = "URI: "
	tagVersion        = "Version: "
	tagChainID        = "Chain ID: "
	tagNonce          = "Nonce: "
	tagIssuedAt       = "Issued At: "
	tagExpirationTime = "Expiration Time: "
	tagNotBefore      = "Not Before: "
	tagRequestID      = "Request ID: "
	tagResources      = "Resources:"
	resourcePrefix    = "- "

	// MessageVersion is the only version defined by EIP-4361.
	MessageVersion = "1"

	minNonceLength = 8
)

// ErrMalformedMessage is returned by ParseMessage for any text that is not a
// canonical EIP-4361 message. It matches core.ErrMalformedMessage.
var ErrMalformedMessage = fmt.Errorf("eth: %w", core.ErrMalformedMessage)

// Message is a parsed EIP-4361 sign-in message.
// Timestamps are kept verbatim so that serialization reproduces the signed bytes.
type Message struct {
	Scheme         string
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       string
	ExpirationTime string
	NotBefore      string
	RequestID      string
	Resources      []string
}

// String renders the message in its canonical form.
func (m *Message) String() string {
	var b strings.Builder

	if m.Scheme != "" {
		b.WriteString(m.Scheme)
		b.WriteString("://")
	}
	b.WriteString(m.Domain)
	b.WriteString(headerSuffix)
	b.WriteByte('\n')
	b.WriteString(m.Address)
	b.WriteString("\n\n")
	if m.Statement != "" {
		b.WriteString(m.Statement)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	b.WriteString(tagURI + m.URI + "\n")
	b.WriteString(tagVersion + m.Version + "\n")
	b.WriteString(tagChainID + strconv.FormatInt(m.ChainID, 10) + "\n")
	b.WriteString(tagNonce + m.Nonce + "\n")
	b.WriteString(tagIssuedAt + m.IssuedAt)

	if m.ExpirationTime != "" {
		b.WriteString("\n" + tagExpirationTime + m.ExpirationTime)
	}
	if m.NotBefore != "" {
		b.WriteString("\n" + tagNotBefore + m.NotBefore)
	}
	if m.RequestID != "" {
		b.WriteString("\n" + tagRequestID + m.RequestID)
	}
	if len(m.Resources) > 0 {
		b.WriteString("\n" + tagResources)
		for _, r := range m.Resources {
			b.WriteString("\n" + resourcePrefix + r)
		}
	}

	return b.String()
}

// Bytes returns the exact byte sequence a wallet signs for this message.
func (m *Message) Bytes() []byte {
	return []byte(m.String())
}

// IssuedAtTime returns the parsed issued-at timestamp.
func (m *Message) IssuedAtTime() (time.Time, error) {
	return time.Parse(time.RFC3339, m.IssuedAt)
}

// ExpirationTimeValue returns the expiration time and whether it is set.
func (m *Message) ExpirationTimeValue() (time.Time, bool, error) {
	return optionalTime(m.ExpirationTime)
}

// NotBeforeValue returns the not-before time and whether it is set.
func (m *Message) NotBeforeValue() (time.Time, bool, error) {
	return optionalTime(m.NotBefore)
}

func optionalTime(s string) (time.Time, bool, error) {
	if s == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, true, err
	}
	return t, true, nil
}

// ParseMessage parses the canonical text of a sign-in message.
// Any text that does not serialize back to itself byte for byte is rejected.
func ParseMessage(text string) (*Message, error) {
	p := &parser{lines: strings.Split(text, "\n")}
	m := &Message{}

	header, ok := p.next()
	if !ok || !strings.HasSuffix(header, headerSuffix) {
		return nil, malformed("missing header line")
	}
	origin := strings.TrimSuffix(header, headerSuffix)
	if scheme, domain, found := strings.Cut(origin, "://"); found {
		m.Scheme, origin = scheme, domain
		if m.Scheme == "" {
			return nil, malformed("empty scheme")
		}
	}
	if origin == "" || strings.ContainsAny(origin, " /") {
		return nil, malformed("invalid domain")
	}
	m.Domain = origin

	address, ok := p.next()
	if !ok {
		return nil, malformed("missing address")
	}
	if !IsAddress(address) {
		return nil, malformed("invalid address")
	}
	if !HasValidChecksum(address) {
		return nil, malformed("address checksum mismatch")
	}
	m.Address = address

	if blank, ok := p.next(); !ok || blank != "" {
		return nil, malformed("expected blank line after address")
	}
	line, ok := p.next()
	if !ok {
		return nil, malformed("truncated message")
	}
	if line != "" {
		m.Statement = line
		if blank, ok := p.next(); !ok || blank != "" {
			return nil, malformed("expected blank line after statement")
		}
	}

	var err error
	if m.URI, err = p.required(tagURI); err != nil {
		return nil, err
	}
	if m.Version, err = p.required(tagVersion); err != nil {
		return nil, err
	}
	if m.Version != MessageVersion {
		return nil, malformed("unsupported version")
	}
	chainID, err := p.required(tagChainID)
	if err != nil {
		return nil, err
	}
	if m.ChainID, err = strconv.ParseInt(chainID, 10, 64); err != nil || m.ChainID <= 0 {
		return nil, malformed("invalid chain id")
	}
	if m.Nonce, err = p.required(tagNonce); err != nil {
		return nil, err
	}
	if !validNonce(m.Nonce) {
		return nil, malformed("invalid nonce")
	}
	if m.IssuedAt, err = p.required(tagIssuedAt); err != nil {
		return nil, err
	}
	if _, err := m.IssuedAtTime(); err != nil {
		return nil, malformed("invalid issued-at")
	}

	m.ExpirationTime = p.optional(tagExpirationTime)
	if _, _, err := m.ExpirationTimeValue(); err != nil {
		return nil, malformed("invalid expiration time")
	}
	m.NotBefore = p.optional(tagNotBefore)
	if _, _, err := m.NotBeforeValue(); err != nil {
		return nil, malformed("invalid not-before")
	}
	m.RequestID = p.optional(tagRequestID)

	if line, ok := p.peek(); ok && line == tagResources {
		p.next()
		for {
			line, ok := p.peek()
			if !ok || !strings.HasPrefix(line, resourcePrefix) {
				break
			}
			p.next()
			m.Resources = append(m.Resources, strings.TrimPrefix(line, resourcePrefix))
		}
		if len(m.Resources) == 0 {
			return nil, malformed("empty resources list")
		}
	}

	if _, ok := p.peek(); ok {
		return nil, malformed("unexpected trailing content")
	}
	if m.String() != text {
		return nil, malformed("non-canonical encoding")
	}

	return m, nil
}

type parser struct {
	lines []string
	pos   int
}

func (p *parser) peek() (string, bool) {
	if p.pos >= len(p.lines) {
		return "", false
	}
	return p.lines[p.pos], true
}

func (p *parser) next() (string, bool) {
	line, ok := p.peek()
	if ok {
		p.pos++
	}
	return line, ok
}

func (p *parser) required(tag string) (string, error) {
	line, ok := p.next()
	if !ok || !strings.HasPrefix(line, tag) {
		return "", malformed("missing " + strings.TrimSuffix(tag, ": "))
	}
	value := strings.TrimPrefix(line, tag)
	if value == "" {
		return "", malformed("empty " + strings.TrimSuffix(tag, ": "))
	}
	return value, nil
}

func (p *parser) optional(tag string) string {
	line, ok := p.peek()
	if !ok || !strings.HasPrefix(line, tag) {
		return ""
	}
	p.next()
	return strings.TrimPrefix(line, tag)
}

func validNonce(n string) bool {
	if len(n) < minNonceLength {
		return false
	}
	for _, r := range n {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

func malformed(detail string) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, detail)
}
