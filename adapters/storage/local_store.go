package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/handshake/core"
	"github.com/layer-3/handshake/hasher"
	"github.com/layer-3/handshake/ports"
)

var _ ports.BlobStore = (*LocalStore)(nil)

// LocalCIDPrefix marks content addresses minted by LocalStore
const LocalCIDPrefix = "sha256-"

// LocalStore is a content-addressed blob store on the local filesystem.
// Upload URLs point back at this service and carry an ES256 upload grant.
// Identical bytes always map to the same content address.
type LocalStore struct {
	dir       string
	baseURL   string
	tokenizer ports.Tokenizer
	now       func() time.Time
}

// NewLocalStore creates the directory if needed
func NewLocalStore(dir, baseURL string, tokenizer ports.Tokenizer) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &LocalStore{
		dir:       dir,
		baseURL:   strings.TrimRight(baseURL, "/"),
		tokenizer: tokenizer,
		now:       time.Now,
	}, nil
}

// CreateSignedUploadURL issues an upload grant for fileName
func (s *LocalStore) CreateSignedUploadURL(ctx context.Context, fileName string, ttl time.Duration) (string, error) {
	now := s.now()
	token, err := s.tokenizer.GrantToToken(&core.UploadGrant{
		ID:        uuid.New().String(),
		FileName:  fileName,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrUpstreamStorage, err)
	}

	return s.baseURL + "/storage/upload?token=" + url.QueryEscape(token), nil
}

// Authorize validates an upload token taken from a signed URL
func (s *LocalStore) Authorize(token string) (*core.UploadGrant, error) {
	return s.tokenizer.TokenToGrant(token)
}

// UploadJSON stores the JSON encoding of document
func (s *LocalStore) UploadJSON(ctx context.Context, name string, document any) (string, error) {
	payload, err := json.Marshal(document)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	cid, _, err := s.Put(ctx, bytes.NewReader(payload))
	return cid, err
}

// Put streams r to disk and returns its content address and size
func (s *LocalStore) Put(ctx context.Context, r io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp(s.dir, "upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", core.ErrUpstreamStorage, err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	digest := hasher.NewDigest()
	if _, err := io.Copy(io.MultiWriter(tmp, digest), r); err != nil {
		return "", 0, fmt.Errorf("%w: %v", core.ErrUpstreamStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("%w: %v", core.ErrUpstreamStorage, err)
	}

	cid := LocalCIDPrefix + digest.Hex()
	if err := os.Rename(tmp.Name(), s.path(cid)); err != nil {
		return "", 0, fmt.Errorf("%w: %v", core.ErrUpstreamStorage, err)
	}

	return cid, digest.Size(), nil
}

// Open returns a reader for a stored blob
func (s *LocalStore) Open(cid string) (io.ReadCloser, error) {
	if !strings.HasPrefix(cid, LocalCIDPrefix) || strings.ContainsAny(cid, `/\.`) {
		return nil, core.ErrNotFound
	}

	f, err := os.Open(s.path(cid))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", core.ErrUpstreamStorage, err)
	}
	return f, nil
}

// GatewayURL returns where the blob can be fetched from this service
func (s *LocalStore) GatewayURL(cid string) string {
	return s.baseURL + "/storage/blobs/" + cid
}

func (s *LocalStore) path(cid string) string {
	return filepath.Join(s.dir, cid)
}
