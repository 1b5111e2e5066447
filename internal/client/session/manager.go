package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/webitel/im-private-chat/internal/client/push"
	"github.com/webitel/im-private-chat/internal/domain/model"
	"github.com/webitel/im-private-chat/internal/service"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotAttached = errors.New("session: no push channel attached")
	ErrStopped     = errors.New("session: manager stopped")
)

// API is the request/response surface the manager depends on.
type API interface {
	Friends(ctx context.Context) ([]*service.Friend, error)
	GetUnread(ctx context.Context) ([]*service.BacklogEntry, error)
	MarkRead(ctx context.Context, messageID string) error
	MarkReadForPair(ctx context.Context, friendID string) (int64, error)
}

// Sender hands outgoing messages to the server.
type Sender interface {
	Send(ctx context.Context, req *push.SendRequest) (string, error)
}

// Manager owns the client's conversations and unread state.
// All state is confined to the Run goroutine; public methods enqueue work onto it.
type Manager struct {
	self   string
	api    API
	shell  Shell
	logger *slog.Logger

	queue chan func()
	done  chan struct{}
	once  sync.Once

	// background mark-read calls
	bg sync.WaitGroup

	// loop-owned state
	sender        Sender
	friends       map[string]*service.Friend
	conversations map[string]*Conversation
	pending       map[string]*transcript
	active        string
}

func New(self string, api API, shell Shell, logger *slog.Logger) *Manager {
	return &Manager{
		self:          self,
		api:           api,
		shell:         shell,
		logger:        logger,
		queue:         make(chan func(), 256),
		done:          make(chan struct{}),
		friends:       make(map[string]*service.Friend),
		conversations: make(map[string]*Conversation),
		pending:       make(map[string]*transcript),
	}
}

// Run drains the work queue until ctx ends.
func (m *Manager) Run(ctx context.Context) {
	defer m.once.Do(func() { close(m.done) })
	for {
		select {
		case <-ctx.Done():
			m.bg.Wait()
			return
		case fn := <-m.queue:
			fn()
		}
	}
}

func (m *Manager) enqueue(fn func()) bool {
	select {
	case m.queue <- fn:
		return true
	case <-m.done:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (m *Manager) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !m.enqueue(func() { fn(); close(finished) }) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach routes future sends through s. Passing nil detaches.
func (m *Manager) Attach(s Sender) {
	m.enqueue(func() { m.sender = s })
}

// Consume feeds server pushes into the loop until events closes or ctx ends.
func (m *Manager) Consume(ctx context.Context, events <-chan push.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !m.enqueue(func() { m.handle(ev) }) {
				return
			}
		}
	}
}

// HandleEvent processes a single server push.
func (m *Manager) HandleEvent(ev push.Event) {
	m.enqueue(func() { m.handle(ev) })
}

func (m *Manager) handle(ev push.Event) {
	switch p := ev.Payload.(type) {
	case *model.MessageReceivedPayload:
		m.onReceived(entryFromReceived(p))
	case *model.SendEchoPayload:
		m.onEcho(p.ReceiverID, entryFromEcho(m.self, p))
	case *model.ConnectedPayload:
		m.shell.Notice("connected as " + p.UserID)
	case *model.DisconnectedPayload:
		m.shell.Notice("disconnected: " + p.Reason)
	default:
		m.logger.Debug("SESSION_EVENT_IGNORED", "kind", ev.Kind)
	}
}

// onReceived applies the live-message rule: active conversation appends and marks read,
// everything else is buffered and counted.
func (m *Manager) onReceived(e *Entry) {
	friendID := e.SenderID

	if conv, ok := m.conversations[friendID]; ok && m.active == friendID {
		if added := conv.append(e); len(added) > 0 {
			m.shell.Appended(friendID, added)
			m.markRead(e.ID)
		}
		return
	}

	if m.buffer(friendID, e) {
		m.publishUnread()
	}
}

// onEcho appends the sender's own message once the server has stored it.
func (m *Manager) onEcho(friendID string, e *Entry) {
	if conv, ok := m.conversations[friendID]; ok {
		if added := conv.append(e); len(added) > 0 {
			m.shell.Appended(friendID, added)
		}
		return
	}
	// No conversation yet: hold it so it shows up in order when one opens.
	m.buffer(friendID, e)
}

// buffer adds e to the friend's pending backlog unless it is already displayed or buffered.
func (m *Manager) buffer(friendID string, e *Entry) bool {
	if conv, ok := m.conversations[friendID]; ok && conv.lines.has(e.ID) {
		return false
	}
	p, ok := m.pending[friendID]
	if !ok {
		p = newTranscript()
		m.pending[friendID] = p
	}
	return len(p.append(e)) > 0
}

// Open activates the conversation with friendID, draining its pending buffer into it.
func (m *Manager) Open(friendID string) {
	m.enqueue(func() { m.open(friendID) })
}

func (m *Manager) open(friendID string) {
	conv, ok := m.conversations[friendID]
	if !ok {
		conv = newConversation(friendID)
		m.conversations[friendID] = conv
	}
	m.active = friendID

	if p, ok := m.pending[friendID]; ok {
		conv.append(p.entries...)
		delete(m.pending, friendID)
	}

	m.shell.Opened(friendID, conv.Entries(), conv.Draft)
	m.publishUnread()
	m.markPairRead(friendID)
}

// SaveDraft keeps unsent input with friendID's conversation until it is opened again.
func (m *Manager) SaveDraft(friendID, text string) {
	m.enqueue(func() {
		if conv, ok := m.conversations[friendID]; ok {
			conv.Draft = text
		}
	})
}

// Close deactivates the current conversation. Its transcript is kept.
func (m *Manager) Close() {
	m.enqueue(func() { m.active = "" })
}

// Sync fetches friends and the full unread backlog in parallel, then merges the backlog
// the same way live messages are merged. Counters are published once at the end.
func (m *Manager) Sync(ctx context.Context) error {
	var (
		friends []*service.Friend
		backlog []*service.BacklogEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		friends, err = m.api.Friends(gctx)
		return err
	})
	g.Go(func() (err error) {
		backlog, err = m.api.GetUnread(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		m.logger.Warn("SESSION_SYNC_FAILED", "err", err)
		return err
	}

	return m.call(ctx, func() { m.merge(friends, backlog) })
}

func (m *Manager) merge(friends []*service.Friend, backlog []*service.BacklogEntry) {
	m.friends = make(map[string]*service.Friend, len(friends))
	for _, f := range friends {
		m.friends[f.ID] = f
	}
	m.shell.FriendsChanged(friends)

	groups := make(map[string][]*Entry)
	var order []string
	for _, b := range backlog {
		if _, ok := groups[b.SenderID]; !ok {
			order = append(order, b.SenderID)
		}
		groups[b.SenderID] = append(groups[b.SenderID], entryFromBacklog(b))
	}

	for _, friendID := range order {
		entries := groups[friendID]
		if conv, ok := m.conversations[friendID]; ok && m.active == friendID {
			if added := conv.append(entries...); len(added) > 0 {
				m.shell.Appended(friendID, added)
				m.markPairRead(friendID)
			}
			continue
		}
		for _, e := range entries {
			m.buffer(friendID, e)
		}
	}

	m.publishUnread()
	m.logger.Debug("SESSION_SYNCED", "friends", len(friends), "backlog", len(backlog))
}

// Send hands content to the server. Nothing is appended locally: the transcript
// grows only when the server echoes the stored message back.
func (m *Manager) Send(ctx context.Context, friendID, content, contentType string) (string, error) {
	var sender Sender
	if err := m.call(ctx, func() { sender = m.sender }); err != nil {
		return "", err
	}

	var (
		id  string
		err = ErrNotAttached
	)
	if sender != nil {
		id, err = sender.Send(ctx, &push.SendRequest{
			RecipientID: friendID,
			Content:     content,
			ContentType: contentType,
		})
	}
	if err != nil {
		m.logger.Warn("SESSION_SEND_FAILED", "friend_id", friendID, "err", err)
		m.enqueue(func() { m.shell.SendFailed(friendID, content, err) })
		return "", err
	}
	return id, nil
}

// Snapshot is a copy of the manager's counters, for tests and status lines.
type Snapshot struct {
	Active    string
	Total     int
	PerFriend map[string]int
}

func (m *Manager) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := m.call(ctx, func() {
		s.Active = m.active
		s.Total, s.PerFriend = m.counts()
	})
	return s, err
}

// Transcript returns the displayed entries of friendID's conversation.
func (m *Manager) Transcript(ctx context.Context, friendID string) ([]*Entry, error) {
	var res []*Entry
	err := m.call(ctx, func() {
		if conv, ok := m.conversations[friendID]; ok {
			res = conv.Entries()
		}
	})
	return res, err
}

// Conversation returns a copy of friendID's conversation, or nil if it was never opened.
func (m *Manager) Conversation(ctx context.Context, friendID string) (*ConversationView, error) {
	var res *ConversationView
	err := m.call(ctx, func() {
		if conv, ok := m.conversations[friendID]; ok {
			res = conv.view()
		}
	})
	return res, err
}

// Friend returns the cached profile of friendID.
func (m *Manager) Friend(ctx context.Context, friendID string) (*service.Friend, error) {
	var res *service.Friend
	err := m.call(ctx, func() { res = m.friends[friendID] })
	return res, err
}

func (m *Manager) counts() (int, map[string]int) {
	total := 0
	per := make(map[string]int, len(m.pending))
	for friendID, p := range m.pending {
		if n := p.unread(); n > 0 {
			per[friendID] = n
			total += n
		}
	}
	return total, per
}

func (m *Manager) publishUnread() {
	total, per := m.counts()
	m.shell.UnreadChanged(total, per)
}

func (m *Manager) markRead(messageID string) {
	m.background(func(ctx context.Context) error {
		return m.api.MarkRead(ctx, messageID)
	}, "message_id", messageID)
}

func (m *Manager) markPairRead(friendID string) {
	m.background(func(ctx context.Context) error {
		_, err := m.api.MarkReadForPair(ctx, friendID)
		return err
	}, "friend_id", friendID)
}

// background runs read-marker calls off the loop. Failures are logged only:
// the messages stay unread on the server and come back with the next sync.
func (m *Manager) background(fn func(context.Context) error, attrs ...any) {
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		if err := fn(context.Background()); err != nil {
			m.logger.Warn("SESSION_MARK_READ_FAILED", append(attrs, "err", err)...)
		}
	}()
}
