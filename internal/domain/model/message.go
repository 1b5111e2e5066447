package model

import (
	"fmt"
	"time"
)

// ContentType tags the payload carried by a Message.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentFile  ContentType = "file"
)

// ParseContentType maps a wire value to a ContentType.
// An empty value defaults to ContentText.
func ParseContentType(s string) (ContentType, error) {
	switch ct := ContentType(s); ct {
	case "":
		return ContentText, nil
	case ContentText, ContentImage, ContentFile:
		return ct, nil
	default:
		return "", fmt.Errorf("unsupported content type %q", s)
	}
}

// [MESSAGE] CORE ENTITY OF A PRIVATE CONVERSATION
//
// Read is the only field mutated after creation.
type Message struct {
	ID          string      `json:"id"`
	SenderID    string      `json:"sender_id"`
	RecipientID string      `json:"recipient_id"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"content_type"`
	Read        bool        `json:"read"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Counterpart returns the other participant of the message relative to self.
func (m *Message) Counterpart(self string) string {
	if m.SenderID == self {
		return m.RecipientID
	}
	return m.SenderID
}
