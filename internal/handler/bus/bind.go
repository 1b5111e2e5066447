package bus

import (
	"context"
	"encoding/json"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/im-private-chat/internal/adapter/pubsub"
)

// DomainHandler defines the functional signature for business logic.
type DomainHandler[T any] func(ctx context.Context, userID string, payload *T) error

// envelope mirrors model.OutboundEvent with a typed payload.
type envelope[T any] struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	UserID  string `json:"user_id"`
	Kind    string `json:"kind"`
	Payload *T     `json:"payload"`
}

// [INFRASTRUCTURE_BRIDGE]
// Bind connects Watermill to domain logic, handling panic recovery and decoding.
func Bind[T any](h *MessageHandler, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) (err error) {
		// [PANIC_RECOVERY]
		// Safely handle runtime panics to keep the consumer alive.
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("PANIC_RECOVERED",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID)
				err = nil
			}
		}()

		// [DECODING]
		var env envelope[T]
		if err := json.Unmarshal(msg.Payload, &env); err != nil || env.Payload == nil {
			h.logger.Error("DECODE_FAILED", "err", err, "msg_id", msg.UUID)
			return nil // ACK: Poison Pill protection.
		}

		userID := env.UserID
		if userID == "" {
			userID = msg.Metadata.Get(pubsub.MetadataUserID)
		}
		if userID == "" {
			h.logger.Warn("ROUTING_FAILED: user_missing", "msg_id", msg.UUID)
			return nil // ACK: Invalid routing is a terminal state.
		}

		// [EXECUTION]
		return fn(msg.Context(), userID, env.Payload)
	}
}
