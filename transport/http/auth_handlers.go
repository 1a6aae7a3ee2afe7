package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/handshake/core"
	"github.com/layer-3/handshake/service"
)

// SessionCookie carries the session token between browser and server
const SessionCookie = "session"

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	cookies     cookieConfig
	logger      *slog.Logger
}

type cookieConfig struct {
	secure bool
	maxAge time.Duration
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, cookies cookieConfig, logger *slog.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		cookies:     cookies,
		logger:      logger,
	}
}

// Nonce issues a fresh sign-in challenge
func (h *AuthHandlers) Nonce(c *gin.Context) {
	nonce, err := h.authService.RequestChallenge(c.Request.Context())
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "nonce generation failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate nonce"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"nonce":     nonce.Value,
		"expiresAt": nonce.ExpiresAt,
	})
}

// Verify exchanges a signed sign-in message for a session cookie
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req struct {
		Message   string `json:"message"`
		Signature string `json:"signature"`
	}

	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" || req.Signature == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing message or signature"})
		return
	}

	session, err := h.authService.Verify(c.Request.Context(), req.Message, req.Signature)
	if err != nil {
		switch {
		case isAuthFailure(err):
			h.logger.InfoContext(c.Request.Context(), "sign-in rejected", "err", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication failed"})
		case errors.Is(err, core.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing message or signature"})
		default:
			h.logger.ErrorContext(c.Request.Context(), "sign-in failed", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Authentication failed"})
		}
		return
	}

	h.setSessionCookie(c, session.ID, h.cookies.maxAge)

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"walletAddress": session.WalletAddress,
	})
}

// Logout revokes the current session and clears the cookie
func (h *AuthHandlers) Logout(c *gin.Context) {
	token, _ := c.Cookie(SessionCookie)

	if err := h.authService.Logout(c.Request.Context(), token); err != nil {
		h.logger.ErrorContext(c.Request.Context(), "logout failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Logout failed"})
		return
	}

	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Me reports whether the request carries a live session
func (h *AuthHandlers) Me(c *gin.Context) {
	token, _ := c.Cookie(SessionCookie)

	address, err := h.authService.CurrentIdentity(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, core.ErrUnauthenticated) {
			h.logger.ErrorContext(c.Request.Context(), "session lookup failed", "err", err)
		}
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"walletAddress": address,
	})
}

// setSessionCookie writes the session cookie; a negative maxAge deletes it
func (h *AuthHandlers) setSessionCookie(c *gin.Context, value string, maxAge time.Duration) {
	seconds := int(maxAge.Seconds())
	if maxAge < 0 {
		seconds = -1
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(SessionCookie, value, seconds, "/", "", h.cookies.secure, true)
}
