package wsmarshaller

import "encoding/json"

// Client → server frame types.
const (
	RequestSend               = "send"
	RequestRegisterConnection = "register_connection"
)

// Request is a client-invoked RPC frame. The answer is an "ack" event carrying the same RequestID.
type Request struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
}

type SendRequest struct {
	RecipientID     string `json:"recipient_id"`
	Content         string `json:"content"`
	ContentType     string `json:"content_type,omitempty"`
	ClientMessageID string `json:"client_message_id,omitempty"`
}

type RegisterConnectionRequest struct {
	UserID string `json:"user_id"`
}

// NewRequest encodes payload into a Request frame.
func NewRequest(kind, requestID string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Request{Type: kind, RequestID: requestID, Payload: raw})
}
