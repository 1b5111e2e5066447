package model

// DisconnectedPayload represents the notification sent before the server closes the channel.
type DisconnectedPayload struct {
	Reason string `json:"reason"`
	Code   string `json:"code,omitempty"` // "SHUTDOWN", "UNKNOWN_USER"
}
