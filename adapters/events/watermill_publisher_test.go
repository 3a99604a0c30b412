package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/dropgate/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPubSub(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, NewZapLogger(zap.NewNop()))
	t.Cleanup(func() { _ = pubSub.Close() })
	return pubSub
}

func receive(t *testing.T, messages <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-messages:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestWatermillPublisher_PublishVerified(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubSub := newPubSub(t)
	messages, err := pubSub.Subscribe(ctx, TopicVerified)
	require.NoError(t, err)

	pub := NewWatermillPublisher(pubSub)
	session := &core.Session{
		ID:          "session-1",
		Address:     "0xabcdef0123456789abcdef0123456789abcdef01",
		PrincipalID: "principal-1",
		IssuedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.PublishVerified(ctx, session))

	msg := receive(t, messages)
	assert.Equal(t, "session-1", msg.UUID)

	var event VerifiedEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &event))
	assert.Equal(t, session.Address, event.Address)
	assert.Equal(t, session.PrincipalID, event.PrincipalID)
}

func TestWatermillPublisher_PublishProfileCreated(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubSub := newPubSub(t)
	messages, err := pubSub.Subscribe(ctx, TopicProfileCreated)
	require.NoError(t, err)

	profile := core.NewProfile("principal-1", "0xabcdef0123456789abcdef0123456789abcdef01", time.Now())
	require.NoError(t, NewWatermillPublisher(pubSub).PublishProfileCreated(ctx, profile))

	var event ProfileCreatedEvent
	require.NoError(t, json.Unmarshal(receive(t, messages).Payload, &event))
	assert.Equal(t, profile.ID, event.ProfileID)
	assert.Equal(t, "hunter-abcdef", event.Username)
}

func TestWatermillPublisher_PublishLogout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubSub := newPubSub(t)
	messages, err := pubSub.Subscribe(ctx, TopicLogout)
	require.NoError(t, err)

	require.NoError(t, NewWatermillPublisher(pubSub).PublishLogout(ctx, "0xabc", "refresh-1"))

	msg := receive(t, messages)
	assert.Equal(t, "refresh-1", msg.UUID)

	var event LogoutEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &event))
	assert.Equal(t, LogoutEvent{Address: "0xabc", TokenID: "refresh-1"}, event)
}

func TestWatermillPublisher_ClosedPublisher(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, NewZapLogger(zap.NewNop()))
	require.NoError(t, pubSub.Close())

	err := NewWatermillPublisher(pubSub).PublishLogout(context.Background(), "0xabc", "refresh-1")
	assert.Error(t, err)
}
