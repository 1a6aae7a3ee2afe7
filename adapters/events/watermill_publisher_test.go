package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestWatermillPublisher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	logouts, err := pubSub.Subscribe(ctx, TopicLogout)
	require.NoError(t, err)
	registrations, err := pubSub.Subscribe(ctx, TopicModelRegistered)
	require.NoError(t, err)

	pub := NewWatermillPublisher(pubSub)

	require.NoError(t, pub.PublishLogout(ctx, "0xabc", "session-token"))
	var logout LogoutEvent
	require.NoError(t, json.Unmarshal(receive(t, logouts).Payload, &logout))
	sum := sha256.Sum256([]byte("session-token"))
	assert.Equal(t, "0xabc", logout.Address)
	assert.Equal(t, hex.EncodeToString(sum[:]), logout.SessionHash)

	require.NoError(t, pub.PublishModelRegistered(ctx, "id-1", "hash-1", "0xabc"))
	var registered ModelRegisteredEvent
	require.NoError(t, json.Unmarshal(receive(t, registrations).Payload, &registered))
	assert.Equal(t, ModelRegisteredEvent{ID: "id-1", ModelHash: "hash-1", OwnerAddress: "0xabc"}, registered)
}
