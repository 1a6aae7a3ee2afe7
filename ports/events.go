package ports

import "context"

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishLogout(ctx context.Context, address string, sessionID string) error
	PublishModelRegistered(ctx context.Context, id, hash, owner string) error
}
