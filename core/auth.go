package core

import "time"

// ClaimsVersion is the current layout of session claims.
const ClaimsVersion = 1

// Claims is the content of a session token.
type Claims struct {
	Version   int       // Layout version, always ClaimsVersion when minted
	ID        string    // Unique token identifier
	Address   string    // Checksummed Ethereum address of the session owner
	Handle    string    // Public handle, empty while resolution is pending
	IssuedAt  time.Time // When the session was created
	ExpiresAt time.Time // End of the validity window
}

// HandlePending reports whether the handle has not been resolved yet.
func (c *Claims) HandlePending() bool {
	return c.Handle == ""
}

// Outcome is the post-condition of a session operation.
type Outcome string

const (
	// OutcomeIssued means a new session token was minted on sign-in.
	OutcomeIssued Outcome = "issued"
	// OutcomeValid means the presented token was accepted as is.
	OutcomeValid Outcome = "valid"
	// OutcomeRefreshed means the token was accepted and re-minted with resolved claims.
	OutcomeRefreshed Outcome = "refreshed"
	// OutcomeDenied means no session exists for the request.
	OutcomeDenied Outcome = "denied"
)

// Authenticated reports whether the outcome carries a usable session.
func (o Outcome) Authenticated() bool {
	return o == OutcomeIssued || o == OutcomeValid || o == OutcomeRefreshed
}
