package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/handshake/ports"
)

const (
	TopicLogout          = "handshake.logout"
	TopicModelRegistered = "handshake.model_registered"
)

// LogoutEvent represents a logout event
type LogoutEvent struct {
	Address     string `json:"address"`
	SessionHash string `json:"session_hash"`
}

// ModelRegisteredEvent is published after a model record is created
type ModelRegisteredEvent struct {
	ID           string `json:"id"`
	ModelHash    string `json:"model_hash"`
	OwnerAddress string `json:"owner_address"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, address string, sessionID string) error {
	// Session ids are bearer credentials, only their digest is published
	sum := sha256.Sum256([]byte(sessionID))
	return p.publish(ctx, TopicLogout, LogoutEvent{
		Address:     address,
		SessionHash: hex.EncodeToString(sum[:]),
	})
}

// PublishModelRegistered publishes a model registration event
func (p *WatermillPublisher) PublishModelRegistered(ctx context.Context, id, hash, owner string) error {
	return p.publish(ctx, TopicModelRegistered, ModelRegisteredEvent{
		ID:           id,
		ModelHash:    hash,
		OwnerAddress: owner,
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
