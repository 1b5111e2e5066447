package event

import (
	"github.com/google/uuid"
	"github.com/webitel/im-private-chat/internal/domain/model"
)

const (
	TopicMessageCreated = "im_chat.message.created.v1"
	TopicUserStatus     = "im_chat.user.status.v1"
)

var (
	_ Eventer    = (*MessageEvent)(nil)
	_ Exportable = (*MessageCreatedEvent)(nil)
	_ Exportable = (*UserStatusEvent)(nil)
)

// MessageEvent carries a message view to one physical recipient (UserID).
//
// The same persisted message produces a MessageReceived event for the
// recipient and a SendEcho event for the sender.
type MessageEvent struct {
	ID         uuid.UUID
	Kind       EventKind
	UserID     string
	OccurredAt int64
	Payload    any
	Cached     any `json:"-"`
}

// NewMessageReceivedEvent addresses the recipient view of msg to msg.RecipientID.
func NewMessageReceivedEvent(msg *model.Message, sender *model.User) *MessageEvent {
	return &MessageEvent{
		ID:         uuid.New(),
		Kind:       MessageReceived,
		UserID:     msg.RecipientID,
		OccurredAt: msg.CreatedAt.UnixMilli(),
		Payload:    model.NewMessageReceivedPayload(msg, sender),
	}
}

// NewSendEchoEvent addresses the sender view of msg to msg.SenderID.
func NewSendEchoEvent(msg *model.Message) *MessageEvent {
	return &MessageEvent{
		ID:         uuid.New(),
		Kind:       SendEcho,
		UserID:     msg.SenderID,
		OccurredAt: msg.CreatedAt.UnixMilli(),
		Payload:    model.NewSendEchoPayload(msg),
	}
}

func (e *MessageEvent) GetID() string              { return e.ID.String() }
func (e *MessageEvent) GetKind() EventKind         { return e.Kind }
func (e *MessageEvent) GetUserID() string          { return e.UserID }
func (e *MessageEvent) GetPriority() EventPriority { return PriorityHigh }
func (e *MessageEvent) GetOccurredAt() int64       { return e.OccurredAt }
func (e *MessageEvent) GetPayload() any            { return e.Payload }
func (e *MessageEvent) GetCached() any             { return e.Cached }
func (e *MessageEvent) SetCached(v any)            { e.Cached = v }

// MessageCreatedEvent is exported to the bus after a message is persisted.
type MessageCreatedEvent struct {
	*SystemEvent
	Message *model.Message
}

func NewMessageCreatedEvent(msg *model.Message) *MessageCreatedEvent {
	return &MessageCreatedEvent{
		SystemEvent: NewSystemEvent(msg.RecipientID, MessageCreated, PriorityNormal, msg),
		Message:     msg,
	}
}

func (e *MessageCreatedEvent) GetRoutingKey() string { return TopicMessageCreated }

// UserStatusEvent is exported when a connection transition flips a user's status.
type UserStatusEvent struct {
	*SystemEvent
}

func NewUserStatusEvent(userID string, status model.UserStatus) *UserStatusEvent {
	return &UserStatusEvent{
		SystemEvent: NewSystemEvent(userID, UserStatusChanged, PriorityLow, &model.UserStatusPayload{
			UserID: userID,
			Status: status,
		}),
	}
}

func (e *UserStatusEvent) GetRoutingKey() string { return TopicUserStatus }
