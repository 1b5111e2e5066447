package wsmarshaller

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-private-chat/internal/domain/event"
	"github.com/webitel/im-private-chat/internal/domain/model"
)

func TestMarshallDeliveryEvent_MessageReceived(t *testing.T) {
	msg := &model.Message{
		ID:          "m-1",
		SenderID:    "alice",
		RecipientID: "bob",
		Content:     "hi",
		ContentType: model.ContentText,
		CreatedAt:   time.UnixMicro(1_700_000_000_000_000).UTC(),
	}
	ev := event.NewMessageReceivedEvent(msg, &model.User{ID: "alice", Name: "Alice"})

	data, err := MarshallDeliveryEvent(ev)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "message_received", raw["event"])
	assert.Equal(t, ev.GetID(), raw["id"])

	f, payload, err := UnmarshalFrame(data)
	require.NoError(t, err)
	assert.Equal(t, "message_received", f.Event)

	p, ok := payload.(*model.MessageReceivedPayload)
	require.True(t, ok)
	assert.Equal(t, "m-1", p.MessageID)
	assert.Equal(t, "Alice", p.SenderName)
	assert.True(t, msg.CreatedAt.Equal(p.SentAt))
}

func TestMarshallDeliveryEvent_UsesCache(t *testing.T) {
	ev := event.NewSystemEvent("bob", event.Ack, event.PriorityHigh, &model.AckPayload{RequestID: "r-1", Ok: true})

	first, err := MarshallDeliveryEvent(ev)
	require.NoError(t, err)
	assert.NotNil(t, ev.GetCached())

	second, err := MarshallDeliveryEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMarshallDeliveryEvent_RejectsUnknownPayload(t *testing.T) {
	ev := event.NewSystemEvent("bob", event.Ack, event.PriorityLow, struct{ X int }{1})

	_, err := MarshallDeliveryEvent(ev)
	assert.ErrorIs(t, err, ErrUnsupportedPayload)
	assert.Nil(t, ev.GetCached())
}

func TestUnmarshalFrame_UnknownEvent(t *testing.T) {
	_, _, err := UnmarshalFrame([]byte(`{"event":"nope","id":"1","sent_at":0,"payload":{}}`))
	assert.ErrorIs(t, err, ErrUnsupportedPayload)
}

func TestNewRequest(t *testing.T) {
	data, err := NewRequest(RequestSend, "r-9", &SendRequest{RecipientID: "bob", Content: "yo"})
	require.NoError(t, err)

	var req Request
	require.NoError(t, json.Unmarshal(data, &req))
	assert.Equal(t, RequestSend, req.Type)
	assert.Equal(t, "r-9", req.RequestID)

	var body SendRequest
	require.NoError(t, json.Unmarshal(req.Payload, &body))
	assert.Equal(t, "bob", body.RecipientID)
	assert.Equal(t, "yo", body.Content)
}
