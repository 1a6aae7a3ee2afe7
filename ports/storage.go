package ports

import (
	"context"
	"time"
)

// BlobStore is the content-addressed storage network models are pinned to
type BlobStore interface {
	// CreateSignedUploadURL returns a URL a client can upload fileName to
	// directly, valid for ttl.
	CreateSignedUploadURL(ctx context.Context, fileName string, ttl time.Duration) (string, error)
	// UploadJSON pins a JSON document and returns its content address
	UploadJSON(ctx context.Context, name string, document any) (string, error)
	// GatewayURL returns a public URL for a content address
	GatewayURL(cid string) string
}
