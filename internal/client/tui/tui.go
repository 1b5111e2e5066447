package tui

import (
	"context"
	"log/slog"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/webitel/im-private-chat/internal/client/session"
	"github.com/webitel/im-private-chat/internal/service"
)

// Controller is what the screen drives.
type Controller interface {
	Open(friendID string)
	SaveDraft(friendID, text string)
	Send(ctx context.Context, friendID, content, contentType string) (string, error)
}

var _ session.Shell = (*Shell)(nil)

// Shell renders the chat in the terminal. Session callbacks arrive on other goroutines
// and are funnelled into the UI loop through updates.
type Shell struct {
	state   *state
	updates chan func(*state)
	logger  *slog.Logger

	friends    *widgets.List
	transcript *widgets.List
	input      *widgets.Paragraph
	status     *widgets.Paragraph
	grid       *ui.Grid
}

func New(self string, logger *slog.Logger) *Shell {
	return &Shell{
		state:   newState(self),
		updates: make(chan func(*state), 256),
		logger:  logger,
	}
}

func (s *Shell) post(fn func(*state)) {
	select {
	case s.updates <- fn:
	default:
		s.logger.Warn("TUI_UPDATE_DROPPED")
	}
}

func (s *Shell) FriendsChanged(friends []*service.Friend) {
	s.post(func(st *state) { st.setFriends(friends) })
}

func (s *Shell) UnreadChanged(total int, perFriend map[string]int) {
	s.post(func(st *state) {
		st.total = total
		st.unread = perFriend
	})
}

func (s *Shell) Opened(friendID string, entries []*session.Entry, draft string) {
	s.post(func(st *state) { st.showTranscript(friendID, entries, draft) })
}

func (s *Shell) Appended(friendID string, entries []*session.Entry) {
	s.post(func(st *state) {
		if st.active == friendID {
			st.appendEntries(entries)
		}
	})
}

func (s *Shell) SendFailed(friendID, content string, err error) {
	s.post(func(st *state) { st.status = "send failed: " + err.Error() })
}

func (s *Shell) Notice(text string) {
	s.post(func(st *state) { st.status = text })
}

// Run owns the terminal until the user quits or ctx ends.
func (s *Shell) Run(ctx context.Context, ctrl Controller) error {
	if err := ui.Init(); err != nil {
		return err
	}
	defer ui.Close()

	s.build()
	s.render()

	events := ui.PollEvents()
	for {
		select {
		case <-ctx.Done():
			return nil

		case fn := <-s.updates:
			fn(s.state)
			s.render()

		case e := <-events:
			switch e.Type {
			case ui.ResizeEvent:
				payload := e.Payload.(ui.Resize)
				s.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
			case ui.KeyboardEvent:
				if s.dispatch(ctx, ctrl, s.state.key(e.ID)) {
					return nil
				}
			}
			s.render()
		}
	}
}

func (s *Shell) dispatch(ctx context.Context, ctrl Controller, a action) (quit bool) {
	switch a.kind {
	case actionQuit:
		return true
	case actionOpen:
		if a.leaving != "" {
			ctrl.SaveDraft(a.leaving, a.content)
		}
		ctrl.Open(a.friendID)
	case actionSend:
		go func() {
			// Failures come back through SendFailed.
			_, _ = ctrl.Send(ctx, a.friendID, a.content, "")
		}()
	}
	return false
}

func (s *Shell) build() {
	s.friends = widgets.NewList()
	s.friends.Title = "Friends"
	s.friends.SelectedRowStyle = ui.NewStyle(ui.ColorYellow)

	s.transcript = widgets.NewList()
	s.transcript.Title = "Conversation"
	s.transcript.WrapText = true

	s.input = widgets.NewParagraph()
	s.input.Title = "Message"

	s.status = widgets.NewParagraph()
	s.status.Border = false

	s.grid = ui.NewGrid()
	w, h := ui.TerminalDimensions()
	s.grid.SetRect(0, 0, w, h)
	s.grid.Set(
		ui.NewRow(0.85,
			ui.NewCol(0.3, s.friends),
			ui.NewCol(0.7, s.transcript),
		),
		ui.NewRow(0.1, ui.NewCol(1.0, s.input)),
		ui.NewRow(0.05, ui.NewCol(1.0, s.status)),
	)
}

func (s *Shell) render() {
	st := s.state

	s.friends.Rows = st.friendRows()
	s.friends.SelectedRow = st.selected

	s.transcript.Rows = st.lines
	if n := len(st.lines); n > 0 {
		s.transcript.SelectedRow = n - 1
	}
	if st.active != "" {
		s.transcript.Title = st.nameOf(st.active)
	}

	s.input.Text = string(st.input)
	if st.focus == focusInput {
		s.input.BorderStyle = ui.NewStyle(ui.ColorGreen)
		s.friends.BorderStyle = ui.NewStyle(ui.ColorWhite)
	} else {
		s.input.BorderStyle = ui.NewStyle(ui.ColorWhite)
		s.friends.BorderStyle = ui.NewStyle(ui.ColorGreen)
	}

	s.status.Text = st.badge()
	ui.Render(s.grid)
}
