package model

import "time"

// MessageReceivedPayload is the live push sent to a recipient.
// Sender display fields are resolved at send time.
type MessageReceivedPayload struct {
	MessageID    string      `json:"message_id"`
	SenderID     string      `json:"sender_id"`
	SenderName   string      `json:"sender_name"`
	SenderAvatar string      `json:"sender_avatar,omitempty"`
	Content      string      `json:"content"`
	ContentType  ContentType `json:"content_type"`
	SentAt       time.Time   `json:"sent_at"`
}

// SendEchoPayload confirms persistence to the message's own sender.
type SendEchoPayload struct {
	MessageID   string      `json:"message_id"`
	ReceiverID  string      `json:"receiver_id"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"content_type"`
	SentAt      time.Time   `json:"sent_at"`
}

// AckPayload answers a client-invoked RPC frame.
type AckPayload struct {
	RequestID string `json:"request_id"`
	Ok        bool   `json:"ok"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewMessageReceivedPayload builds the recipient view of msg.
func NewMessageReceivedPayload(msg *Message, sender *User) *MessageReceivedPayload {
	p := &MessageReceivedPayload{
		MessageID:   msg.ID,
		SenderID:    msg.SenderID,
		SenderName:  msg.SenderID,
		Content:     msg.Content,
		ContentType: msg.ContentType,
		SentAt:      msg.CreatedAt,
	}
	if sender != nil {
		p.SenderName = sender.DisplayName()
		p.SenderAvatar = sender.AvatarURL
	}
	return p
}

// NewSendEchoPayload builds the sender view of msg.
func NewSendEchoPayload(msg *Message) *SendEchoPayload {
	return &SendEchoPayload{
		MessageID:   msg.ID,
		ReceiverID:  msg.RecipientID,
		Content:     msg.Content,
		ContentType: msg.ContentType,
		SentAt:      msg.CreatedAt,
	}
}

// Message reconstructs the stored entity from the recipient view.
func (p *MessageReceivedPayload) Message(recipientID string) *Message {
	return &Message{
		ID:          p.MessageID,
		SenderID:    p.SenderID,
		RecipientID: recipientID,
		Content:     p.Content,
		ContentType: p.ContentType,
		CreatedAt:   p.SentAt,
	}
}

// Message reconstructs the stored entity from the sender view.
func (p *SendEchoPayload) Message(senderID string) *Message {
	return &Message{
		ID:          p.MessageID,
		SenderID:    senderID,
		RecipientID: p.ReceiverID,
		Content:     p.Content,
		ContentType: p.ContentType,
		CreatedAt:   p.SentAt,
	}
}
