package event

type EventKind int16

const (
	Connected       EventKind = iota + 1 // [SYSTEM]
	Disconnected                         // [SYSTEM]
	Ack                                  // [RPC]
	MessageReceived                      // [BUSINESS]
	SendEcho                             // [BUSINESS]
	MessageCreated                       // [EXPORT]
	UserStatusChanged                    // [EXPORT]
)

var kindNames = map[EventKind]string{
	Connected:         "connected",
	Disconnected:      "disconnected",
	Ack:               "ack",
	MessageReceived:   "message_received",
	SendEcho:          "send_echo",
	MessageCreated:    "message_created",
	UserStatusChanged: "user_status_changed",
}

// String returns the wire name of the kind.
func (k EventKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

type EventPriority int32

const (
	PriorityLow    EventPriority = 10
	PriorityNormal EventPriority = 20
	PriorityHigh   EventPriority = 30
)

// Eventer defines the contract for all data packets pushed through a channel handle.
type Eventer interface {
	GetID() string
	GetKind() EventKind
	GetUserID() string
	GetPriority() EventPriority
	GetOccurredAt() int64
	GetPayload() any
	GetCached() any
	SetCached(any)
}

// Exportable defines an event that should be re-published to the message bus.
type Exportable interface {
	Eventer
	// GetRoutingKey returns the bus topic. An empty key skips publishing.
	GetRoutingKey() string
}
