package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/internal/metrics"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig carries everything the HTTP layer depends on
type RouterConfig struct {
	AuthService    *service.AuthService
	Accounts       *service.AccountService
	Guard          *service.Guard
	Limiter        ports.RateLimiter // nil disables the sign-in rate limit
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Cookies        CookieConfig
	Info           ServiceInfo
	AvatarMaxBytes int64
	Log            *zap.Logger
}

// SetupRouter sets up the Gin router
func SetupRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger(cfg.Log), GuardMiddleware(cfg.Guard, cfg.Cookies))

	// Create handlers
	authHandlers := NewAuthHandlers(cfg.AuthService, cfg.Cookies, cfg.Log)
	profileHandlers := NewProfileHandlers(cfg.Accounts, cfg.AvatarMaxBytes)
	pageHandlers := NewPageHandlers(cfg.Info, cfg.Accounts)

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.GET("/nonce", authHandlers.Nonce)
		if cfg.Limiter != nil {
			auth.POST("/signin", RateLimit(cfg.Limiter, cfg.Metrics, cfg.Log), authHandlers.SignIn)
		} else {
			auth.POST("/signin", authHandlers.SignIn)
		}
		auth.POST("/signout", authHandlers.SignOut)
		auth.GET("/session", authHandlers.Session)
	}

	// API routes
	api := router.Group("/api")
	{
		api.GET("/users/:handle", profileHandlers.Public)

		profile := api.Group("/profile")
		profile.Use(AuthMiddleware(cfg.AuthService, cfg.Cookies))
		profile.GET("", profileHandlers.Me)
		profile.PATCH("", profileHandlers.Update)
		profile.POST("/avatar", profileHandlers.UploadAvatar)
		profile.DELETE("/avatar", profileHandlers.DeleteAvatar)
	}

	// Pages
	router.GET("/avatars/*key", profileHandlers.Avatar)
	router.GET("/profile", pageHandlers.Profile)
	router.GET("/", pageHandlers.Landing)
	router.GET("/healthz", pageHandlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))

	return router
}
