package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/webitel/im-private-chat/internal/client/session"
	"github.com/webitel/im-private-chat/internal/domain/model"
	"github.com/webitel/im-private-chat/internal/service"
)

type focus int

const (
	focusFriends focus = iota
	focusInput
)

type actionKind int

const (
	actionNone actionKind = iota
	actionOpen
	actionSend
	actionQuit
)

type action struct {
	kind     actionKind
	friendID string
	content  string
	// leaving is the conversation being switched away from; content then holds its draft.
	leaving string
}

// state is everything the screen shows. It is only touched from the UI goroutine.
type state struct {
	self     string
	friends  []*service.Friend
	unread   map[string]int
	total    int
	selected int
	active   string
	lines    []string
	input    []rune
	focus    focus
	status   string
}

func newState(self string) *state {
	return &state{self: self, unread: map[string]int{}}
}

func (s *state) setFriends(friends []*service.Friend) {
	var keep string
	if f := s.selectedFriend(); f != nil {
		keep = f.ID
	}

	s.friends = append([]*service.Friend(nil), friends...)
	sort.SliceStable(s.friends, func(i, j int) bool {
		return s.friends[i].DisplayName() < s.friends[j].DisplayName()
	})

	s.selected = 0
	for i, f := range s.friends {
		if f.ID == keep {
			s.selected = i
		}
	}
}

func (s *state) selectedFriend() *service.Friend {
	if s.selected < 0 || s.selected >= len(s.friends) {
		return nil
	}
	return s.friends[s.selected]
}

func (s *state) nameOf(id string) string {
	if id == s.self {
		return "me"
	}
	for _, f := range s.friends {
		if f.ID == id {
			return f.DisplayName()
		}
	}
	return id
}

func (s *state) friendRows() []string {
	rows := make([]string, 0, len(s.friends))
	for _, f := range s.friends {
		rows = append(rows, friendRow(f, s.unread[f.ID], f.ID == s.active))
	}
	return rows
}

func friendRow(f *service.Friend, unread int, active bool) string {
	var b strings.Builder
	if active {
		b.WriteString("> ")
	} else {
		b.WriteString("  ")
	}
	if f.Online {
		b.WriteString("● ")
	} else {
		b.WriteString("○ ")
	}
	b.WriteString(f.DisplayName())
	if unread > 0 {
		fmt.Fprintf(&b, " (%d)", unread)
	}
	return b.String()
}

func entryLine(e *session.Entry, name string) string {
	ts := e.SentAt.Local().Format("15:04")
	switch e.ContentType {
	case model.ContentImage, model.ContentFile:
		return fmt.Sprintf("[%s] %s: <%s> %s", ts, name, e.ContentType, e.Content)
	default:
		return fmt.Sprintf("[%s] %s: %s", ts, name, e.Content)
	}
}

func (s *state) showTranscript(friendID string, entries []*session.Entry, draft string) {
	s.active = friendID
	s.lines = s.lines[:0]
	s.input = []rune(draft)
	s.appendEntries(entries)
}

func (s *state) appendEntries(entries []*session.Entry) {
	for _, e := range entries {
		name := e.SenderName
		if e.Own || name == "" {
			name = s.nameOf(e.SenderID)
		}
		s.lines = append(s.lines, entryLine(e, name))
	}
}

func (s *state) badge() string {
	if s.total == 0 {
		return s.status
	}
	return fmt.Sprintf("%d unread · %s", s.total, s.status)
}

// key applies a termui key id and reports what the caller should do about it.
func (s *state) key(id string) action {
	switch id {
	case "<C-c>":
		return action{kind: actionQuit}
	case "<Tab>":
		if s.focus == focusFriends {
			s.focus = focusInput
		} else {
			s.focus = focusFriends
		}
		return action{}
	}

	if s.focus == focusFriends {
		switch id {
		case "q":
			return action{kind: actionQuit}
		case "<Up>", "k":
			if s.selected > 0 {
				s.selected--
			}
		case "<Down>", "j":
			if s.selected < len(s.friends)-1 {
				s.selected++
			}
		case "<Enter>":
			f := s.selectedFriend()
			if f == nil {
				break
			}
			s.focus = focusInput
			if f.ID == s.active {
				break
			}
			a := action{kind: actionOpen, friendID: f.ID}
			if s.active != "" {
				a.leaving, a.content = s.active, string(s.input)
			}
			return a
		}
		return action{}
	}

	switch id {
	case "<Enter>":
		content := strings.TrimSpace(string(s.input))
		if content == "" || s.active == "" {
			return action{}
		}
		s.input = s.input[:0]
		return action{kind: actionSend, friendID: s.active, content: content}
	case "<Backspace>", "<C-<Backspace>>":
		if len(s.input) > 0 {
			s.input = s.input[:len(s.input)-1]
		}
	case "<Space>":
		s.input = append(s.input, ' ')
	case "<Escape>":
		s.focus = focusFriends
	default:
		if r := []rune(id); len(r) == 1 {
			s.input = append(s.input, r[0])
		}
	}
	return action{}
}
