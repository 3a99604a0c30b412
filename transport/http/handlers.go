package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/dropgate/core"
	"github.com/layer-3/dropgate/service"
	"go.uber.org/zap"
)

const sessionKey = "session"

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	adminGate   *service.AdminGate
	logger      *zap.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, adminGate *service.AdminGate, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		adminGate:   adminGate,
		logger:      logger,
	}
}

// errorStatus maps a core error to its HTTP status
func errorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidAddress), errors.Is(err, core.ErrInvalidChallenge):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrChallengeExpired),
		errors.Is(err, core.ErrNonceReused),
		errors.Is(err, core.ErrInvalidSignature),
		errors.Is(err, core.ErrTokenExpired),
		errors.Is(err, core.ErrTokenInvalidated),
		errors.Is(err, core.ErrInvalidToken),
		errors.Is(err, core.ErrAdminDenied):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrProfileNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with {error, code}. Internal details stay in the log.
func (h *AuthHandlers) writeError(c *gin.Context, err error) {
	status := errorStatus(err)
	code := core.ErrorCode(err)

	message := "internal error"
	if known := core.ErrorFromCode(code); known != nil {
		message = known.Error()
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		h.logger.Debug("request rejected", zap.String("path", c.FullPath()), zap.String("code", code), zap.Error(err))
	}

	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": code})
}

func tokenResponse(grant *core.Grant) gin.H {
	body := gin.H{
		"access_token":  grant.AccessToken,
		"refresh_token": grant.RefreshToken,
		"token_type":    "Bearer",
		"expires_in":    int(time.Until(grant.AccessExpiry).Seconds()),
		"expires_at":    grant.AccessExpiry,
	}
	if grant.Profile != nil {
		body["profile"] = grant.Profile
		body["prompt_username"] = grant.PromptUsername
	}
	return body
}

// Verify handles the signed challenge
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req core.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "code": "invalid_request"})
		return
	}

	grant, err := h.authService.Verify(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenResponse(grant))
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "code": "invalid_request"})
		return
	}

	grant, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenResponse(grant))
}

// Logout handles session logout
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "code": "invalid_request"})
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the profile of the authenticated wallet
func (h *AuthHandlers) Me(c *gin.Context) {
	session := c.MustGet(sessionKey).(*core.Session)

	profile, err := h.authService.Profile(c.Request.Context(), session)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// Authorize checks that the session may use the app. Banned profiles are authenticated but not authorized.
func (h *AuthHandlers) Authorize(c *gin.Context) {
	session := c.MustGet(sessionKey).(*core.Session)

	profile, err := h.authService.Profile(c.Request.Context(), session)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if profile.Banned {
		c.JSON(http.StatusForbidden, gin.H{"error": "account is banned", "code": "banned"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"address":    session.Address,
		"role":       profile.Role,
	})
}

// AdminLogin checks the admin password
func (h *AuthHandlers) AdminLogin(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "code": "invalid_request"})
		return
	}

	grant, err := h.adminGate.Login(req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, grant)
}
