// Package config loads the service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minSecretLength = 32

type Config struct {
	Env      string
	HTTPAddr string
	LogLevel string

	// Sign-in message binding
	Domain        string
	URI           string
	ChainID       int64
	NonceTTL      time.Duration
	MessageMaxAge time.Duration // zero disables the issued-at window

	// Session
	SessionSecret []byte
	SessionIssuer string
	SessionTTL    time.Duration
	SessionCookie string
	NonceCookie   string
	CookieDomain  string

	// Route guard
	ProtectedPaths []string
	LandingPath    string

	// Storage
	DatabaseURL    string
	RedisURL       string
	StoreTimeout   time.Duration
	PublicBaseURL  string
	AvatarMaxBytes int64

	SignInRateLimit int // attempts per client IP per minute, zero disables
}

// Load reads .env (if present) and the environment, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var parseErrs []error
	cfg := &Config{
		Env:      getEnv("APP_ENV", "dev"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Domain:        getEnv("APP_DOMAIN", ""),
		URI:           getEnv("APP_URI", ""),
		ChainID:       int64(getEnvInt("CHAIN_ID", 1, &parseErrs)),
		NonceTTL:      time.Duration(getEnvInt("NONCE_TTL_SECONDS", 600, &parseErrs)) * time.Second,
		MessageMaxAge: time.Duration(getEnvInt("MESSAGE_MAX_AGE_SECONDS", 0, &parseErrs)) * time.Second,

		SessionSecret: []byte(getEnv("SESSION_SECRET", "")),
		SessionIssuer: getEnv("SESSION_ISSUER", "walletauth"),
		SessionTTL:    time.Duration(getEnvInt("SESSION_TTL_HOURS", 720, &parseErrs)) * time.Hour,
		SessionCookie: getEnv("SESSION_COOKIE", "walletauth_session"),
		NonceCookie:   getEnv("NONCE_COOKIE", "walletauth_nonce"),
		CookieDomain:  getEnv("COOKIE_DOMAIN", ""),

		ProtectedPaths: parseList(getEnv("PROTECTED_PATHS", "/profile,/settings")),
		LandingPath:    getEnv("LANDING_PATH", "/"),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		StoreTimeout:   time.Duration(getEnvInt("STORE_TIMEOUT_MS", 3000, &parseErrs)) * time.Millisecond,
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", ""),
		AvatarMaxBytes: int64(getEnvInt("AVATAR_MAX_BYTES", 2<<20, &parseErrs)),

		SignInRateLimit: getEnvInt("SIGNIN_RATE_LIMIT", 20, &parseErrs),
	}

	if cfg.URI == "" && cfg.Domain != "" {
		cfg.URI = "https://" + cfg.Domain
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = cfg.URI
	}

	if err := errors.Join(append(parseErrs, cfg.Validate())...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on settings the service cannot run without.
func (c *Config) Validate() error {
	var errs []error

	if c.Domain == "" {
		errs = append(errs, errors.New("APP_DOMAIN is required"))
	}
	if len(c.SessionSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSecretLength))
	}
	if c.URI != "" {
		if u, err := url.Parse(c.URI); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("APP_URI %q is not an absolute URL", c.URI))
		}
	}
	if c.ChainID <= 0 {
		errs = append(errs, errors.New("CHAIN_ID must be positive"))
	}
	if c.SessionTTL <= 0 || c.NonceTTL <= 0 || c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("SESSION_TTL_HOURS, NONCE_TTL_SECONDS and STORE_TIMEOUT_MS must be positive"))
	}
	if !strings.HasPrefix(c.LandingPath, "/") {
		errs = append(errs, errors.New("LANDING_PATH must be an absolute path"))
	}
	for _, p := range c.ProtectedPaths {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("protected path %q must start with /", p))
		}
		if p == c.LandingPath {
			errs = append(errs, fmt.Errorf("landing path %q cannot be protected", p))
		}
	}

	return errors.Join(errs...)
}

// SecureCookies reports whether cookies must carry the Secure flag.
func (c *Config) SecureCookies() bool {
	return c.Env == "prod" || c.Env == "staging"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt records a malformed value in errs instead of defaulting it.
func getEnvInt(key string, fallback int, errs *[]error) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", key, s))
		return fallback
	}
	return v
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
