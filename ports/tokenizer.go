package ports

import "github.com/layer-3/handshake/core"

// Tokenizer converts upload grants to and from signed tokens
type Tokenizer interface {
	GrantToToken(grant *core.UploadGrant) (string, error)
	TokenToGrant(token string) (*core.UploadGrant, error)
}
