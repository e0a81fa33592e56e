package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CookieConfig names and scopes the cookies set by the auth endpoints
type CookieConfig struct {
	SessionName string
	NonceName   string
	Domain      string
	Secure      bool
	NonceTTL    time.Duration
}

// setSession stores token until expiresAt, which a refreshed token keeps from
// the original session.
func (cc CookieConfig) setSession(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cc.SessionName, token, maxAge, "/", cc.Domain, cc.Secure, true)
}

func (cc CookieConfig) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cc.SessionName, "", -1, "/", cc.Domain, cc.Secure, true)
}

// The nonce cookie is strict: it only has to travel with the sign-in POST.
func (cc CookieConfig) setNonce(c *gin.Context, nonce string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(cc.NonceName, nonce, int(cc.NonceTTL.Seconds()), "/auth", cc.Domain, cc.Secure, true)
}

func (cc CookieConfig) clearNonce(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(cc.NonceName, "", -1, "/auth", cc.Domain, cc.Secure, true)
}

func (cc CookieConfig) nonce(c *gin.Context) string {
	v, err := c.Cookie(cc.NonceName)
	if err != nil {
		return ""
	}
	return v
}

// sessionToken prefers a bearer token and falls back to the session cookie.
func (cc CookieConfig) sessionToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	v, err := c.Cookie(cc.SessionName)
	if err != nil {
		return ""
	}
	return v
}
