package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/handshake/core"
	"github.com/layer-3/handshake/service"
)

// ModelHandlers serves the catalog and the upload flow
type ModelHandlers struct {
	registryService *service.RegistryService
}

// NewModelHandlers creates new model handlers
func NewModelHandlers(registryService *service.RegistryService) *ModelHandlers {
	return &ModelHandlers{registryService: registryService}
}

// List returns every model, or those of one owner when ?owner= is set
func (h *ModelHandlers) List(c *gin.Context) {
	var (
		models []core.Model
		err    error
	)
	if owner := c.Query("owner"); owner != "" {
		models, err = h.registryService.ListByOwner(c.Request.Context(), owner)
	} else {
		models, err = h.registryService.List(c.Request.Context())
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models)
}

// Get returns a single model by id
func (h *ModelHandlers) Get(c *gin.Context) {
	model, err := h.registryService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model)
}

// CheckHash reports whether a content hash is already registered
func (h *ModelHandlers) CheckHash(c *gin.Context) {
	exists, err := h.registryService.CheckHash(c.Request.Context(), c.Param("hash"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

// SignedURL issues a direct-upload URL; mounted behind AuthMiddleware
func (h *ModelHandlers) SignedURL(c *gin.Context) {
	signedURL, err := h.registryService.SignedUploadURL(c.Request.Context(), c.Query("fileName"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"signedUrl": signedURL})
}

// Confirm registers an uploaded artifact for the session's wallet
func (h *ModelHandlers) Confirm(c *gin.Context) {
	var req struct {
		Name         string   `json:"name"`
		Type         string   `json:"type"`
		Description  string   `json:"description"`
		ModelFileCID string   `json:"modelFileCid"`
		Size         int64    `json:"size"`
		Hash         string   `json:"hash"`
		Version      string   `json:"version"`
		Parents      []string `json:"parents"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	model, err := h.registryService.Confirm(c.Request.Context(), c.GetString(walletAddressKey), core.ConfirmInput{
		Name:         req.Name,
		Type:         req.Type,
		Description:  req.Description,
		ModelFileCID: req.ModelFileCID,
		Size:         req.Size,
		Hash:         req.Hash,
		Version:      req.Version,
		Parents:      req.Parents,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, model)
}
