package wsmarshaller

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/webitel/im-private-chat/internal/domain/event"
	"github.com/webitel/im-private-chat/internal/domain/model"
)

var ErrUnsupportedPayload = errors.New("wsmarshaller: unsupported payload")

// Frame is the server → client envelope for every pushed event.
type Frame struct {
	Event   string          `json:"event"` // e.g., "message_received", "connected"
	ID      string          `json:"id"`
	SentAt  int64           `json:"sent_at"`
	Payload json.RawMessage `json:"payload"`
}

// encoded is what gets cached on the event so repeated pushes skip the encoder.
type encoded []byte

// MarshallDeliveryEvent prepares data for WebSocket transmission.
func MarshallDeliveryEvent(ev event.Eventer) ([]byte, error) {
	// 1. [PERFORMANCE] Check cache first.
	if cached, ok := ev.GetCached().(encoded); ok {
		return cached, nil
	}

	// 2. [STRATEGY] Only payloads with a known wire shape are allowed out.
	switch ev.GetPayload().(type) {
	case *model.ConnectedPayload,
		*model.DisconnectedPayload,
		*model.MessageReceivedPayload,
		*model.SendEchoPayload,
		*model.AckPayload:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedPayload, ev.GetPayload())
	}

	payload, err := json.Marshal(ev.GetPayload())
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(&Frame{
		Event:   ev.GetKind().String(),
		ID:      ev.GetID(),
		SentAt:  ev.GetOccurredAt(),
		Payload: payload,
	})
	if err != nil {
		return nil, err
	}

	// 3. [CACHE] Save the result back.
	ev.SetCached(encoded(data))
	return data, nil
}

// UnmarshalFrame splits a server frame into its envelope and typed payload.
func UnmarshalFrame(data []byte) (*Frame, any, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, err
	}

	var payload any
	switch f.Event {
	case event.Connected.String():
		payload = &model.ConnectedPayload{}
	case event.Disconnected.String():
		payload = &model.DisconnectedPayload{}
	case event.MessageReceived.String():
		payload = &model.MessageReceivedPayload{}
	case event.SendEcho.String():
		payload = &model.SendEchoPayload{}
	case event.Ack.String():
		payload = &model.AckPayload{}
	default:
		return &f, nil, fmt.Errorf("%w: event %q", ErrUnsupportedPayload, f.Event)
	}

	if err := json.Unmarshal(f.Payload, payload); err != nil {
		return &f, nil, err
	}
	return &f, payload, nil
}
