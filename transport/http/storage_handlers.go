package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/handshake/core"
)

// BlobServer is the self-hosted side of signed-URL uploads
type BlobServer interface {
	Authorize(token string) (*core.UploadGrant, error)
	Put(ctx context.Context, r io.Reader) (string, int64, error)
	Open(cid string) (io.ReadCloser, error)
}

// StorageHandlers accept uploads against signed URLs and serve stored blobs
type StorageHandlers struct {
	blobs  BlobServer
	logger *slog.Logger
}

// NewStorageHandlers creates handlers for the self-hosted blob store
func NewStorageHandlers(blobs BlobServer, logger *slog.Logger) *StorageHandlers {
	return &StorageHandlers{blobs: blobs, logger: logger}
}

// Upload stores the multipart "file" field.
// The response has the same shape as the pinning service's upload response.
func (h *StorageHandlers) Upload(c *gin.Context) {
	grant, err := h.blobs.Authorize(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired upload url"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is missing"})
		return
	}
	defer file.Close()

	cid, size, err := h.blobs.Put(c.Request.Context(), file)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "blob upload failed", "grant", grant.ID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed"})
		return
	}

	h.logger.InfoContext(c.Request.Context(), "blob stored", "cid", cid, "size", size, "grant", grant.ID)

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"id":   grant.ID,
		"name": header.Filename,
		"cid":  cid,
		"size": size,
	}})
}

// Blob streams a stored blob by content address
func (h *StorageHandlers) Blob(c *gin.Context) {
	r, err := h.blobs.Open(c.Param("cid"))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Blob not found"})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "blob read failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	defer r.Close()

	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.DataFromReader(http.StatusOK, -1, "application/octet-stream", r, nil)
}
