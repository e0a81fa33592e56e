package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/metrics"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/service"
	"go.uber.org/zap"
)

const (
	headerRequestID = "X-Request-ID"

	ctxRequestID = "requestID"
	ctxClaims    = "sessionClaims"
)

// RequestID tags every request with an id, keeping one supplied by a proxy
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.New().String()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// RequestLogger logs one line per request
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(ctxRequestID)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// AuthMiddleware rejects requests without a valid session
func AuthMiddleware(authService *service.AuthService, cookies CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := authService.ReadSession(c.Request.Context(), cookies.sessionToken(c))
		if !res.Outcome.Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		applySession(c, res, cookies)
		c.Next()
	}
}

// GuardMiddleware redirects requests for protected paths to the landing page
// unless they carry a valid session
func GuardMiddleware(guard *service.Guard, cookies CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := guard.Evaluate(c.Request.Context(), c.Request.URL.Path, cookies.sessionToken(c))
		if decision.State == service.GuardDenied {
			c.Redirect(http.StatusSeeOther, decision.RedirectTo)
			c.Abort()
			return
		}

		if decision.Session.Outcome.Authenticated() {
			applySession(c, decision.Session, cookies)
		}
		c.Next()
	}
}

// RateLimit caps sign-in attempts per client IP
func RateLimit(limiter ports.RateLimiter, m *metrics.Metrics, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), "signin:"+c.ClientIP())
		if err != nil {
			log.Warn("rate limiter unavailable", zap.Error(err))
		}
		if !allowed {
			m.RateLimitedCalls.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func applySession(c *gin.Context, res service.SessionResult, cookies CookieConfig) {
	c.Set(ctxClaims, res.Claims)
	if res.Outcome == core.OutcomeRefreshed {
		cookies.setSession(c, res.Token, res.Claims.ExpiresAt)
	}
}

func sessionClaims(c *gin.Context) (*core.Claims, bool) {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*core.Claims)
	return claims, ok && claims != nil
}
