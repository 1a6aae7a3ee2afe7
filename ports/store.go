package ports

import (
	"context"

	"github.com/layer-3/handshake/core"
)

// NonceStore issues and redeems one-time sign-in challenges
type NonceStore interface {
	Issue(ctx context.Context) (*core.Nonce, error)
	// Redeem marks an unused, unexpired nonce as used. It returns false
	// without an error when the nonce is missing, used or expired.
	Redeem(ctx context.Context, value string) (bool, error)
}

// SessionStore issues and validates session tokens
type SessionStore interface {
	Issue(ctx context.Context, walletAddress string) (*core.Session, error)
	Validate(ctx context.Context, token string) (*core.Session, error)
	Revoke(ctx context.Context, token string) error
}

// ModelRegistry is the catalog of registered models
type ModelRegistry interface {
	Exists(ctx context.Context, hash string) (bool, error)
	FindByID(ctx context.Context, id string) (*core.Model, error)
	FindByHash(ctx context.Context, hash string) (*core.Model, error)
	FindByOwner(ctx context.Context, owner string) ([]core.Model, error)
	List(ctx context.Context) ([]core.Model, error)
	// Register inserts a model. A duplicate hash yields *core.ConflictError.
	Register(ctx context.Context, model *core.Model) (*core.Model, error)
}
