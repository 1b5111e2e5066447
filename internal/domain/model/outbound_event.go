package model

import (
	"time"

	"github.com/google/uuid"
)

const EventSource = "im-private-chat"

// OutboundEvent is the envelope published from this service to the message bus.
type OutboundEvent struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	UserID    string `json:"user_id"`
	Kind      string `json:"kind"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// NewOutboundEvent creates a fresh envelope ready for publishing.
func NewOutboundEvent(userID, kind string, payload any) *OutboundEvent {
	return &OutboundEvent{
		ID:        uuid.NewString(),
		Source:    EventSource,
		UserID:    userID,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}
