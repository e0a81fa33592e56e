package service

import (
	"context"
	"path"
	"strings"

	"github.com/layer-3/walletauth/core"
)

// GuardState is the per-request state of the route guard.
type GuardState string

const (
	GuardUnchecked GuardState = "unchecked"
	GuardAllowed   GuardState = "allowed"
	GuardDenied    GuardState = "denied"
)

// Decision is the terminal result of evaluating one request.
type Decision struct {
	State      GuardState
	Session    SessionResult // zero for unprotected paths
	RedirectTo string        // set when State is GuardDenied
}

// Guard restricts a set of path prefixes to authenticated sessions
type Guard struct {
	auth      *AuthService
	protected []string
	landing   string
}

// NewGuard creates a guard for the protected path prefixes. Denied requests
// are sent to landing.
func NewGuard(auth *AuthService, protected []string, landing string) *Guard {
	prefixes := make([]string, 0, len(protected))
	for _, p := range protected {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if p != "/" {
			p = strings.TrimSuffix(p, "/")
		}
		prefixes = append(prefixes, p)
	}
	return &Guard{auth: auth, protected: prefixes, landing: landing}
}

// Protects reports whether p falls under a protected prefix. Matching is by
// whole path segments, so /profile covers /profile/edit but not /profiles.
func (g *Guard) Protects(p string) bool {
	p = path.Clean("/" + p)
	for _, prefix := range g.protected {
		if prefix == "/" || p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// Evaluate moves a request from unchecked to allowed or denied.
func (g *Guard) Evaluate(ctx context.Context, p, token string) Decision {
	if !g.Protects(p) {
		return Decision{State: GuardAllowed}
	}

	session := g.auth.ReadSession(ctx, token)
	if session.Outcome == core.OutcomeDenied {
		return Decision{State: GuardDenied, Session: session, RedirectTo: g.landing}
	}
	return Decision{State: GuardAllowed, Session: session}
}
