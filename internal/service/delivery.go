package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/webitel/im-private-chat/internal/domain/event"
	"github.com/webitel/im-private-chat/internal/domain/model"
	"github.com/webitel/im-private-chat/internal/domain/registry"
	"github.com/webitel/im-private-chat/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Deliverer is the store-then-best-effort-push pipeline.
type Deliverer interface {
	// Send persists the message, pushes it to the recipient if online and echoes it to the sender.
	// origin is the sender's own channel; nil falls back to the sender's registry entry.
	Send(ctx context.Context, origin registry.Connector, req SendRequest) (*model.Message, error)
}

type SendRequest struct {
	SenderID        string
	RecipientID     string
	Content         string
	ContentType     string
	ClientMessageID string
}

func (r SendRequest) validate() (model.ContentType, error) {
	switch {
	case r.SenderID == "":
		return "", fmt.Errorf("%w: sender is required", ErrInvalidMessage)
	case r.RecipientID == "":
		return "", fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	case strings.TrimSpace(r.Content) == "":
		return "", fmt.Errorf("%w: content is empty", ErrInvalidMessage)
	}
	ct, err := model.ParseContentType(r.ContentType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return ct, nil
}

var _ Deliverer = (*DeliveryService)(nil)

type DeliveryService struct {
	hub       registry.Hubber
	messages  store.MessageStore
	enricher  Enricher
	publisher Publisher
	clock     *Clock
	tracer    trace.Tracer
	logger    *slog.Logger
}

func NewDeliveryService(
	hub registry.Hubber,
	messages store.MessageStore,
	enricher Enricher,
	publisher Publisher,
	tracer trace.Tracer,
	logger *slog.Logger,
) *DeliveryService {
	return &DeliveryService{
		hub:       hub,
		messages:  messages,
		enricher:  enricher,
		publisher: publisher,
		clock:     NewClock(),
		tracer:    tracer,
		logger:    logger,
	}
}

func (s *DeliveryService) Send(ctx context.Context, origin registry.Connector, req SendRequest) (*model.Message, error) {
	ctx, span := s.tracer.Start(ctx, "DeliveryService.Send", trace.WithAttributes(
		attribute.String("sender.id", req.SenderID),
		attribute.String("recipient.id", req.RecipientID),
	))
	defer span.End()

	msg, created, err := s.persist(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("message.id", msg.ID), attribute.Bool("message.retry", !created))

	s.pushToRecipient(ctx, msg)
	s.echoToSender(origin, msg)

	if created {
		if err := s.publisher.Publish(ctx, event.NewMessageCreatedEvent(msg)); err != nil {
			s.logger.Warn("MESSAGE_EXPORT_FAILED", "message_id", msg.ID, "err", err)
		}
	}

	return msg, nil
}

// persist stores the message. A retried client id returns the stored copy with created=false.
func (s *DeliveryService) persist(ctx context.Context, req SendRequest) (*model.Message, bool, error) {
	ct, err := req.validate()
	if err != nil {
		return nil, false, err
	}
	if _, err := s.enricher.ResolveUser(ctx, req.RecipientID); err != nil {
		return nil, false, err
	}

	id := req.ClientMessageID
	if id == "" {
		id = uuid.NewString()
	}

	msg := &model.Message{
		ID:          id,
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		Content:     req.Content,
		ContentType: ct,
		CreatedAt:   s.clock.Now(),
	}

	err = s.messages.InsertMessage(ctx, msg)
	if err == nil {
		return msg, true, nil
	}
	if !errors.Is(err, store.ErrDuplicateMessage) {
		s.logger.Error("MESSAGE_PERSIST_FAILED", "message_id", id, "sender_id", req.SenderID, "err", err)
		return nil, false, fmt.Errorf("%w: insert message: %w", ErrPersistence, err)
	}

	// [IDEMPOTENT_RETRY] Same client id: re-deliver what was stored the first time.
	existing, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("%w: load retried message: %w", ErrPersistence, err)
	}
	if existing.SenderID != req.SenderID || existing.RecipientID != req.RecipientID {
		return nil, false, fmt.Errorf("%w: message id %s already taken", ErrInvalidMessage, id)
	}
	s.logger.Debug("MESSAGE_RETRY_DEDUPLICATED", "message_id", id)
	return existing, false, nil
}

func (s *DeliveryService) pushToRecipient(ctx context.Context, msg *model.Message) {
	if !s.hub.IsConnected(msg.RecipientID) {
		s.logger.Debug("DELIVERY_RECIPIENT_OFFLINE", "message_id", msg.ID, "recipient_id", msg.RecipientID)
		return
	}

	// A failed lookup pushes with the bare sender id.
	sender, _ := s.enricher.ResolveUser(ctx, msg.SenderID)

	// [CHANNEL_UNAVAILABLE] A dead channel only delays delivery until the next backlog fetch.
	if !s.hub.Push(msg.RecipientID, event.NewMessageReceivedEvent(msg, sender)) {
		s.logger.Debug("DELIVERY_PUSH_SKIPPED", "message_id", msg.ID, "recipient_id", msg.RecipientID)
		return
	}
	s.logger.Debug("DELIVERY_PUSHED", "message_id", msg.ID, "recipient_id", msg.RecipientID)
}

func (s *DeliveryService) echoToSender(origin registry.Connector, msg *model.Message) {
	echo := event.NewSendEchoEvent(msg)

	var ok bool
	if origin != nil {
		ok = origin.Send(echo, s.hub.SendTimeout())
	} else {
		ok = s.hub.Push(msg.SenderID, echo)
	}
	if !ok {
		s.logger.Debug("ECHO_PUSH_SKIPPED", "message_id", msg.ID, "sender_id", msg.SenderID)
	}
}
