package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/im-private-chat/internal/domain/event"
	"github.com/webitel/im-private-chat/internal/domain/model"
)

const (
	MetadataUserID = "user_id"
	MetadataKind   = "kind"
	MetadataTopic  = "routing_key"
)

// EventDispatcher defines the high-level contract for outgoing events.
// This allows services to stay agnostic of the transport implementation.
type EventDispatcher interface {
	Publish(ctx context.Context, ev event.Exportable) error
}

type eventDispatcher struct {
	publisher message.Publisher
	logger    *slog.Logger
}

// NewEventDispatcher wraps the bus publisher. A nil publisher turns Publish into a no-op.
func NewEventDispatcher(p *Provider, logger *slog.Logger) EventDispatcher {
	return &eventDispatcher{
		publisher: p.Publisher,
		logger:    logger,
	}
}

func (d *eventDispatcher) Publish(ctx context.Context, ev event.Exportable) error {
	if ev == nil {
		return errors.New("event dispatcher: cannot publish nil event")
	}
	topic := ev.GetRoutingKey()
	if topic == "" || d.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(model.NewOutboundEvent(ev.GetUserID(), ev.GetKind().String(), ev.GetPayload()))
	if err != nil {
		return fmt.Errorf("event dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataUserID, ev.GetUserID())
	msg.Metadata.Set(MetadataKind, ev.GetKind().String())
	msg.Metadata.Set(MetadataTopic, topic)
	msg.SetContext(ctx)

	if err := d.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("event dispatcher: failed to publish to topic %s: %w", topic, err)
	}

	d.logger.Debug("EVENT_PUBLISHED", "topic", topic, "msg_id", msg.UUID, "user_id", ev.GetUserID())
	return nil
}
