package session

import "github.com/webitel/im-private-chat/internal/service"

// Shell is the UI sink. Every call comes from the manager's loop goroutine, in order.
type Shell interface {
	FriendsChanged(friends []*service.Friend)
	UnreadChanged(total int, perFriend map[string]int)
	// Opened hands over the full transcript and saved draft of the conversation that just became active.
	Opened(friendID string, entries []*Entry, draft string)
	// Appended delivers new lines for a conversation that already exists.
	Appended(friendID string, entries []*Entry)
	SendFailed(friendID, content string, err error)
	Notice(text string)
}
