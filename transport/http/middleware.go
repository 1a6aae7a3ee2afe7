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

const walletAddressKey = "walletAddress"

// AuthMiddleware rejects requests without a live session cookie
func AuthMiddleware(authService *service.AuthService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(SessionCookie)
		if err != nil || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated. Please connect wallet and sign in."})
			return
		}

		address, err := authService.CurrentIdentity(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, core.ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session expired or invalid. Please sign in again."})
				return
			}
			logger.ErrorContext(c.Request.Context(), "session lookup failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
			return
		}

		c.Set(walletAddressKey, address)

		c.Next()
	}
}

// RequestLogger logs one line per request
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.InfoContext(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
