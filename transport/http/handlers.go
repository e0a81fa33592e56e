package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/service"
	"go.uber.org/zap"
)

const errSignInFailed = "sign-in failed"

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	cookies     CookieConfig
	log         *zap.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, cookies CookieConfig, log *zap.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		cookies:     cookies,
		log:         log,
	}
}

// Nonce issues a sign-in nonce and binds it to the browser
func (h *AuthHandlers) Nonce(c *gin.Context) {
	nonce, expiresAt, err := h.authService.IssueNonce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to issue nonce"})
		return
	}

	h.cookies.setNonce(c, nonce)
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"nonce":      nonce,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

// SignIn handles the sign-in request
func (h *AuthHandlers) SignIn(c *gin.Context) {
	var req struct {
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	res := h.authService.SignIn(c.Request.Context(), service.Credential{
		Message:   req.Message,
		Signature: req.Signature,
	}, h.cookies.nonce(c))
	if res.Outcome != core.OutcomeIssued {
		// Reasons stay in the logs; clients get one answer.
		h.log.Debug("sign-in rejected",
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.String("reason", res.Reason),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"error": errSignInFailed})
		return
	}

	h.cookies.clearNonce(c)
	h.cookies.setSession(c, res.Token, res.Claims.ExpiresAt)
	c.JSON(http.StatusOK, gin.H{
		"address":    res.Claims.Address,
		"handle":     res.Claims.Handle,
		"token":      res.Token,
		"expires_at": res.Claims.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// SignOut drops the session cookie
func (h *AuthHandlers) SignOut(c *gin.Context) {
	h.authService.SignOut(c.Request.Context(), h.cookies.sessionToken(c))
	h.cookies.clearSession(c)
	c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}

// Session reports the state of the caller's session
func (h *AuthHandlers) Session(c *gin.Context) {
	res := h.authService.ReadSession(c.Request.Context(), h.cookies.sessionToken(c))
	if !res.Outcome.Authenticated() {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	applySession(c, res, h.cookies)
	c.JSON(http.StatusOK, gin.H{
		"authenticated":  true,
		"address":        res.Claims.Address,
		"handle":         res.Claims.Handle,
		"handle_pending": res.Claims.HandlePending(),
	})
}

// ProfileHandlers contains HTTP handlers for account profiles
type ProfileHandlers struct {
	accounts       *service.AccountService
	avatarMaxBytes int64
}

// NewProfileHandlers creates new profile handlers
func NewProfileHandlers(accounts *service.AccountService, avatarMaxBytes int64) *ProfileHandlers {
	return &ProfileHandlers{
		accounts:       accounts,
		avatarMaxBytes: avatarMaxBytes,
	}
}

type profileResponse struct {
	core.PublicProfile
	UpdatedAt time.Time `json:"updated_at"`
}

func ownProfile(acc *core.Account) profileResponse {
	return profileResponse{PublicProfile: acc.Public(), UpdatedAt: acc.UpdatedAt}
}

// Me returns the caller's own profile
func (h *ProfileHandlers) Me(c *gin.Context) {
	claims, ok := sessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	acc, err := h.accounts.GetProfile(c.Request.Context(), claims.Address)
	if err != nil {
		writeProfileError(c, err)
		return
	}
	c.JSON(http.StatusOK, ownProfile(acc))
}

// Update changes the caller's display name and bio
func (h *ProfileHandlers) Update(c *gin.Context) {
	claims, ok := sessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req struct {
		DisplayName *string `json:"display_name"`
		Bio         *string `json:"bio"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	acc, err := h.accounts.UpdateProfile(c.Request.Context(), claims.Address, core.ProfileUpdate{
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
	})
	if err != nil {
		writeProfileError(c, err)
		return
	}
	c.JSON(http.StatusOK, ownProfile(acc))
}

// UploadAvatar replaces the caller's avatar with the multipart "avatar" file
func (h *ProfileHandlers) UploadAvatar(c *gin.Context) {
	claims, ok := sessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	// Leave room for the multipart envelope around the file.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.avatarMaxBytes+64<<10)
	header, err := c.FormFile("avatar")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Avatar too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing avatar file"})
		return
	}
	if header.Size > h.avatarMaxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Avatar too large"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable avatar file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.avatarMaxBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable avatar file"})
		return
	}

	acc, err := h.accounts.UploadAvatar(c.Request.Context(), claims.Address, data)
	if err != nil {
		writeProfileError(c, err)
		return
	}
	c.JSON(http.StatusOK, ownProfile(acc))
}

// DeleteAvatar removes the caller's avatar
func (h *ProfileHandlers) DeleteAvatar(c *gin.Context) {
	claims, ok := sessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	acc, err := h.accounts.DeleteAvatar(c.Request.Context(), claims.Address)
	if err != nil {
		writeProfileError(c, err)
		return
	}
	c.JSON(http.StatusOK, ownProfile(acc))
}

// Public returns the public profile for a handle
func (h *ProfileHandlers) Public(c *gin.Context) {
	profile, err := h.accounts.GetPublicProfile(c.Request.Context(), c.Param("handle"))
	if err != nil {
		writeProfileError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// Avatar serves a stored avatar image
func (h *ProfileHandlers) Avatar(c *gin.Context) {
	blob, err := h.accounts.GetAvatar(c.Request.Context(), c.Param("key"))
	if err != nil {
		writeProfileError(c, err)
		return
	}

	c.Header("Cache-Control", "public, max-age=86400, immutable")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, blob.ContentType, blob.Data)
}

func writeProfileError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	errorMsg := "Internal error"

	switch {
	case errors.Is(err, core.ErrInvalidHandle):
		statusCode = http.StatusBadRequest
		errorMsg = "Handle is required"
	case errors.Is(err, core.ErrInvalidProfile):
		statusCode = http.StatusBadRequest
		errorMsg = err.Error()
	case errors.Is(err, core.ErrAccountNotFound):
		statusCode = http.StatusNotFound
		errorMsg = "User not found"
	case errors.Is(err, core.ErrBlobNotFound):
		statusCode = http.StatusNotFound
		errorMsg = "Not found"
	case errors.Is(err, core.ErrStorage):
		statusCode = http.StatusServiceUnavailable
		errorMsg = "Service unavailable"
	}

	_ = c.Error(err)
	c.JSON(statusCode, gin.H{"error": errorMsg})
}

// ServiceInfo describes the deployment on the landing page
type ServiceInfo struct {
	Name        string
	Domain      string
	URI         string
	ChainID     int64
	LandingPath string
}

// PageHandlers serves the landing page, the protected profile page and health
type PageHandlers struct {
	info     ServiceInfo
	accounts *service.AccountService
}

// NewPageHandlers creates new page handlers
func NewPageHandlers(info ServiceInfo, accounts *service.AccountService) *PageHandlers {
	return &PageHandlers{info: info, accounts: accounts}
}

// Landing is the unauthenticated entry point
func (h *PageHandlers) Landing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":  h.info.Name,
		"domain":   h.info.Domain,
		"uri":      h.info.URI,
		"chain_id": h.info.ChainID,
	})
}

// Profile is the guarded page for the signed-in user
func (h *PageHandlers) Profile(c *gin.Context) {
	claims, ok := sessionClaims(c)
	if !ok {
		c.Redirect(http.StatusSeeOther, h.info.LandingPath)
		return
	}

	acc, err := h.accounts.GetProfile(c.Request.Context(), claims.Address)
	if err != nil {
		// The session stays valid while the account store is unavailable.
		c.JSON(http.StatusOK, gin.H{
			"address":        claims.Address,
			"handle":         claims.Handle,
			"handle_pending": claims.HandlePending(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":        claims.Address,
		"handle":         acc.HandleValue(),
		"handle_pending": acc.Handle == nil,
		"profile":        ownProfile(acc),
	})
}

// Health reports liveness
func (h *PageHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
