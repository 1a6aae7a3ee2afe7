package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/handshake/core"
)

// respondError maps domain errors onto status codes.
// Internal details never reach the client, services log them.
func respondError(c *gin.Context, err error) {
	var conflict *core.ConflictError

	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":           "Model with this hash already exists.",
			"existingModelId": conflict.ExistingID,
		})
	case errors.Is(err, core.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated. Please connect wallet and sign in."})
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Model not found."})
	case errors.Is(err, core.ErrUpstreamStorage):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Storage service failed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
	}
}

// isAuthFailure reports whether err came out of sign-in verification
func isAuthFailure(err error) bool {
	for _, target := range []error{
		core.ErrMalformedMessage,
		core.ErrInvalidSignature,
		core.ErrNonceInvalid,
		core.ErrDomainMismatch,
		core.ErrChainMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
