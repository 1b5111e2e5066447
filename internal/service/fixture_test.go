package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/webitel/im-private-chat/internal/domain/event"
	"github.com/webitel/im-private-chat/internal/domain/model"
	"github.com/webitel/im-private-chat/internal/domain/registry"
	"github.com/webitel/im-private-chat/internal/store"
	"github.com/webitel/im-private-chat/internal/store/memstore"
	"go.opentelemetry.io/otel/trace/noop"
)

var errDiskFull = errors.New("disk full")

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Exportable
}

func (p *recordingPublisher) Publish(_ context.Context, ev event.Exportable) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []event.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := make([]event.EventKind, 0, len(p.events))
	for _, ev := range p.events {
		res = append(res, ev.GetKind())
	}
	return res
}

// flakyStore fails message inserts and status writes on demand.
type flakyStore struct {
	store.Store
	failInsert bool
	failStatus bool
	userReads  int
	mu         sync.Mutex
}

func (f *flakyStore) InsertMessage(ctx context.Context, msg *model.Message) error {
	if f.failInsert {
		return errDiskFull
	}
	return f.Store.InsertMessage(ctx, msg)
}

func (f *flakyStore) SetUserStatus(ctx context.Context, id string, status model.UserStatus) error {
	if f.failStatus {
		return errDiskFull
	}
	return f.Store.SetUserStatus(ctx, id, status)
}

func (f *flakyStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	f.userReads++
	f.mu.Unlock()
	return f.Store.GetUser(ctx, id)
}

func (f *flakyStore) reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userReads
}

type fixture struct {
	hub       *registry.Hub
	store     *flakyStore
	publisher *recordingPublisher
	conns     *ConnectionService
	delivery  *DeliveryService
	backlog   *BacklogService
	directory *DirectoryService
	enricher  *PeerEnricher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracer := noop.NewTracerProvider().Tracer("test")

	hub := registry.NewHub(registry.WithSendTimeout(20*time.Millisecond), registry.WithBufferSize(16))
	st := &flakyStore{Store: memstore.New()}
	pub := &recordingPublisher{}
	enricher := newPeerEnricher(st, 100, time.Minute)

	f := &fixture{
		hub:       hub,
		store:     st,
		publisher: pub,
		enricher:  enricher,
		delivery:  NewDeliveryService(hub, st, enricher, pub, tracer, logger),
		backlog:   NewBacklogService(st, enricher, logger),
		directory: NewDirectoryService(hub, st),
	}
	f.conns = &ConnectionService{
		hub:       hub,
		users:     st,
		publisher: pub,
		tracer:    tracer,
		logger:    logger,
		version:   "test",
	}

	ctx := context.Background()
	for _, u := range []*model.User{
		{ID: "alice", Name: "Alice", AvatarURL: "alice.png"},
		{ID: "bob", Name: "Bob"},
		{ID: "carol", Name: "Carol"},
	} {
		require.NoError(t, st.CreateUser(ctx, u))
	}
	require.NoError(t, st.AddFriendship(ctx, "alice", "bob"))
	require.NoError(t, st.AddFriendship(ctx, "alice", "carol"))

	t.Cleanup(hub.Shutdown)
	return f
}

// connect opens and binds a channel for userID, draining the handshake.
func (f *fixture) connect(t *testing.T, userID string) registry.Connector {
	t.Helper()
	conn := f.conns.Open(context.Background(), registry.ConnectMetadata{RemoteIP: "127.0.0.1"})
	require.NoError(t, f.conns.Connect(context.Background(), userID, conn))
	ev := recv(t, conn)
	require.Equal(t, event.Connected, ev.GetKind())
	return conn
}

func recv(t *testing.T, conn registry.Connector) event.Eventer {
	t.Helper()
	select {
	case ev, ok := <-conn.Recv():
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event pushed")
		return nil
	}
}

func assertNoEvent(t *testing.T, conn registry.Connector) {
	t.Helper()
	select {
	case ev, ok := <-conn.Recv():
		if ok {
			t.Fatalf("unexpected event %s", ev.GetKind())
		}
	case <-time.After(30 * time.Millisecond):
	}
}

func (f *fixture) status(t *testing.T, userID string) model.UserStatus {
	t.Helper()
	u, err := f.store.Store.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return u.Status
}
