package pubsub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-private-chat/config"
	"github.com/webitel/im-private-chat/internal/domain/event"
	"github.com/webitel/im-private-chat/internal/domain/model"
)

func testProvider(t *testing.T, driver string) *Provider {
	t.Helper()
	cfg := &config.Config{Bus: config.BusConfig{Driver: driver}}
	p, err := NewProvider(cfg, watermill.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestDispatcher_PublishesEnvelope(t *testing.T) {
	p := testProvider(t, DriverGoChannel)
	d := NewEventDispatcher(p, slog.New(slog.NewTextHandler(io.Discard, nil)))

	msgs, err := p.Subscriber.Subscribe(context.Background(), event.TopicMessageCreated)
	require.NoError(t, err)

	msg := &model.Message{ID: "m1", SenderID: "alice", RecipientID: "bob", Content: "hi", ContentType: model.ContentText}
	require.NoError(t, d.Publish(context.Background(), event.NewMessageCreatedEvent(msg)))

	select {
	case got := <-msgs:
		got.Ack()
		assert.Equal(t, "bob", got.Metadata.Get(MetadataUserID))
		assert.Equal(t, "message_created", got.Metadata.Get(MetadataKind))

		var env struct {
			Source  string         `json:"source"`
			UserID  string         `json:"user_id"`
			Kind    string         `json:"kind"`
			Payload *model.Message `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(got.Payload, &env))
		assert.Equal(t, model.EventSource, env.Source)
		assert.Equal(t, "m1", env.Payload.ID)
		assert.Equal(t, "hi", env.Payload.Content)
	case <-time.After(time.Second):
		t.Fatal("message not published")
	}
}

func TestDispatcher_NoneDriverIsNoop(t *testing.T) {
	p := testProvider(t, DriverNone)
	assert.False(t, p.Enabled())

	d := NewEventDispatcher(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, d.Publish(context.Background(), event.NewUserStatusEvent("alice", model.StatusOnline)))
	assert.Error(t, d.Publish(context.Background(), nil))
}

func TestNewProvider_UnknownDriver(t *testing.T) {
	_, err := NewProvider(&config.Config{Bus: config.BusConfig{Driver: "kafka"}}, watermill.NopLogger{})
	assert.Error(t, err)
}
