package session

import (
	"time"

	"github.com/webitel/im-private-chat/internal/domain/model"
	"github.com/webitel/im-private-chat/internal/service"
)

// Entry is one displayed transcript line.
type Entry struct {
	ID           string
	SenderID     string
	SenderName   string
	SenderAvatar string
	Content      string
	ContentType  model.ContentType
	SentAt       time.Time
	// Own marks messages this user sent; they never count as unread.
	Own bool
}

func entryFromReceived(p *model.MessageReceivedPayload) *Entry {
	return &Entry{
		ID:           p.MessageID,
		SenderID:     p.SenderID,
		SenderName:   p.SenderName,
		SenderAvatar: p.SenderAvatar,
		Content:      p.Content,
		ContentType:  p.ContentType,
		SentAt:       p.SentAt,
	}
}

func entryFromEcho(self string, p *model.SendEchoPayload) *Entry {
	return &Entry{
		ID:          p.MessageID,
		SenderID:    self,
		Content:     p.Content,
		ContentType: p.ContentType,
		SentAt:      p.SentAt,
		Own:         true,
	}
}

func entryFromBacklog(b *service.BacklogEntry) *Entry {
	return &Entry{
		ID:           b.ID,
		SenderID:     b.SenderID,
		SenderName:   b.SenderName,
		SenderAvatar: b.SenderAvatar,
		Content:      b.Content,
		ContentType:  b.ContentType,
		SentAt:       b.CreatedAt,
	}
}

// transcript is an append-only sequence deduplicated by message id.
type transcript struct {
	entries []*Entry
	seen    map[string]struct{}
}

func newTranscript() *transcript {
	return &transcript{seen: make(map[string]struct{})}
}

func (t *transcript) has(id string) bool {
	_, ok := t.seen[id]
	return ok
}

// append adds entries not yet present and returns the ones actually added.
func (t *transcript) append(entries ...*Entry) []*Entry {
	var added []*Entry
	for _, e := range entries {
		if t.has(e.ID) {
			continue
		}
		t.seen[e.ID] = struct{}{}
		t.entries = append(t.entries, e)
		added = append(added, e)
	}
	return added
}

func (t *transcript) unread() int {
	n := 0
	for _, e := range t.entries {
		if !e.Own {
			n++
		}
	}
	return n
}

func (t *transcript) snapshot() []*Entry {
	return append([]*Entry(nil), t.entries...)
}

// Conversation is an open chat with one friend.
type Conversation struct {
	FriendID string
	// Draft is the unsent input, kept while another conversation is active.
	Draft string
	// LastActivity is the send time of the newest displayed entry.
	LastActivity time.Time
	lines        *transcript
}

func newConversation(friendID string) *Conversation {
	return &Conversation{FriendID: friendID, lines: newTranscript()}
}

func (c *Conversation) Entries() []*Entry { return c.lines.snapshot() }

// append displays entries not shown yet and advances LastActivity.
func (c *Conversation) append(entries ...*Entry) []*Entry {
	added := c.lines.append(entries...)
	for _, e := range added {
		if e.SentAt.After(c.LastActivity) {
			c.LastActivity = e.SentAt
		}
	}
	return added
}

// ConversationView is a copy of a conversation's state.
type ConversationView struct {
	FriendID     string
	Draft        string
	LastActivity time.Time
	Entries      []*Entry
}

func (c *Conversation) view() *ConversationView {
	return &ConversationView{
		FriendID:     c.FriendID,
		Draft:        c.Draft,
		LastActivity: c.LastActivity,
		Entries:      c.Entries(),
	}
}
