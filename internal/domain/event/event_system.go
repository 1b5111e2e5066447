package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-private-chat/internal/domain/model"
)

// ShutdownCode marks the disconnect pushed to every bound channel when the server stops.
const ShutdownCode = "SHUTDOWN"

// [GUARD] Ensure compliance with the Eventer interface.
var _ Eventer = (*SystemEvent)(nil)

// SystemEvent is a generic envelope for internal signals (handshake, teardown, RPC acks).
type SystemEvent struct {
	id         string
	userID     string
	kind       EventKind
	priority   EventPriority
	occurredAt int64
	payload    any
	cached     any
}

func (e *SystemEvent) GetID() string              { return e.id }
func (e *SystemEvent) GetKind() EventKind         { return e.kind }
func (e *SystemEvent) GetUserID() string          { return e.userID }
func (e *SystemEvent) GetPriority() EventPriority { return e.priority }
func (e *SystemEvent) GetOccurredAt() int64       { return e.occurredAt }
func (e *SystemEvent) GetPayload() any            { return e.payload }
func (e *SystemEvent) GetCached() any             { return e.cached }
func (e *SystemEvent) SetCached(v any)            { e.cached = v }

// NewSystemEvent is a universal factory for creating any signal.
func NewSystemEvent(userID string, kind EventKind, priority EventPriority, payload any) *SystemEvent {
	return &SystemEvent{
		id:         uuid.NewString(),
		userID:     userID,
		kind:       kind,
		priority:   priority,
		occurredAt: time.Now().UnixMilli(),
		payload:    payload,
	}
}

// NewShutdownEvent is the last event a bound channel receives before the server closes it.
func NewShutdownEvent(userID string) *SystemEvent {
	return NewSystemEvent(userID, Disconnected, PriorityHigh, &model.DisconnectedPayload{
		Reason: "server is shutting down",
		Code:   ShutdownCode,
	})
}
