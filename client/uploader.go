package client

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/layer-3/handshake/core"
	"github.com/layer-3/handshake/hasher"
)

// UploadRequest describes the catalog entry for an artifact
type UploadRequest struct {
	Name        string
	Type        string
	Description string
	Version     string
	Parents     []string
}

// Result is the outcome of Uploader.Upload
type Result struct {
	Hash string
	// AlreadyRegistered is set when the hash was in the catalog; nothing was uploaded
	// unless a concurrent upload won the race after the check.
	AlreadyRegistered bool
	ExistingModelID   string
	Model             *core.Model
}

// Uploader runs hash, check, signed URL, upload and confirm in order.
// The API must already hold a session.
type Uploader struct {
	api    *API
	logger *slog.Logger
}

// NewUploader creates an uploader over a signed-in API
func NewUploader(api *API, logger *slog.Logger) *Uploader {
	return &Uploader{api: api, logger: logger}
}

// Upload registers the file at path, uploading it only if its hash is new
func (u *Uploader) Upload(ctx context.Context, path string, req UploadRequest) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, core.Validationf("%s is a directory", path)
	}

	hash, err := hasher.SumFile(path)
	if err != nil {
		return nil, err
	}
	u.logger.DebugContext(ctx, "artifact hashed", "path", path, "hash", hash)

	exists, err := u.api.CheckHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("hash check failed: %w", err)
	}
	if exists {
		u.logger.InfoContext(ctx, "model already registered", "hash", hash)
		return &Result{Hash: hash, AlreadyRegistered: true}, nil
	}

	signedURL, err := u.api.SignedURL(ctx, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to get upload url: %w", err)
	}

	uploaded, err := u.api.UploadFile(ctx, signedURL, path)
	if err != nil {
		return nil, err
	}
	u.logger.InfoContext(ctx, "artifact uploaded", "cid", uploaded.CID, "size", info.Size())

	name := req.Name
	if name == "" {
		name = filepath.Base(path)
	}

	model, err := u.api.Confirm(ctx, ConfirmRequest{
		Name:         name,
		Type:         req.Type,
		Description:  req.Description,
		ModelFileCID: uploaded.CID,
		Size:         info.Size(),
		Hash:         hash,
		Version:      req.Version,
		Parents:      req.Parents,
	})
	if err != nil {
		if existingID, ok := IsConflict(err); ok {
			return &Result{Hash: hash, AlreadyRegistered: true, ExistingModelID: existingID}, nil
		}
		return nil, fmt.Errorf("confirm failed: %w", err)
	}

	return &Result{Hash: hash, Model: model}, nil
}
