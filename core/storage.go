package core

import "time"

// UploadGrant authorizes a single direct upload to the blob store
type UploadGrant struct {
	ID        string    // Unique identifier of the grant
	FileName  string    // Name the uploaded file is stored under
	IssuedAt  time.Time // When the grant was created
	ExpiresAt time.Time // When the grant stops being accepted
}
