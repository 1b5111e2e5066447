package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-private-chat/internal/domain/event"
	"github.com/webitel/im-private-chat/internal/domain/model"
	"github.com/webitel/im-private-chat/internal/domain/registry"
)

func TestConnect_BindsAndSetsOnline(t *testing.T) {
	f := newFixture(t)
	conn := f.conns.Open(context.Background(), registry.ConnectMetadata{})

	require.NoError(t, f.conns.Connect(context.Background(), "alice", conn))

	got, ok := f.hub.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, conn, got)
	assert.Equal(t, model.StatusOnline, f.status(t, "alice"))

	ev := recv(t, conn)
	require.Equal(t, event.Connected, ev.GetKind())
	payload := ev.GetPayload().(*model.ConnectedPayload)
	assert.True(t, payload.Ok)
	assert.Equal(t, conn.GetID().String(), payload.ConnectionID)

	assert.Equal(t, []event.EventKind{event.UserStatusChanged}, f.publisher.kinds())
}

func TestConnect_UnknownUserLeavesChannelInert(t *testing.T) {
	f := newFixture(t)
	conn := f.conns.Open(context.Background(), registry.ConnectMetadata{})
	defer conn.Close()

	err := f.conns.Connect(context.Background(), "mallory", conn)
	require.ErrorIs(t, err, ErrUnknownUser)

	assert.False(t, f.hub.IsConnected("mallory"))
	_, bound := f.hub.OwnerOf(conn)
	assert.False(t, bound)
	assert.True(t, conn.Send(event.NewSystemEvent("", event.Ack, event.PriorityHigh, nil), f.hub.SendTimeout()),
		"raw channel stays open")
}

func TestConnect_StatusFailureDoesNotBind(t *testing.T) {
	f := newFixture(t)
	f.store.failStatus = true
	conn := f.conns.Open(context.Background(), registry.ConnectMetadata{})
	defer conn.Close()

	err := f.conns.Connect(context.Background(), "alice", conn)
	require.ErrorIs(t, err, ErrPersistence)
	assert.False(t, f.hub.IsConnected("alice"))
}

func TestDisconnect_UnbindsAndSetsOffline(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t, "alice")

	f.conns.Disconnect(context.Background(), conn)

	assert.False(t, f.hub.IsConnected("alice"))
	assert.Equal(t, model.StatusOffline, f.status(t, "alice"))
	_, open := <-conn.Recv()
	assert.False(t, open, "disconnect closes the channel")
	assert.Equal(t, []event.EventKind{event.UserStatusChanged, event.UserStatusChanged}, f.publisher.kinds())
}

func TestDisconnect_NeverConnected(t *testing.T) {
	f := newFixture(t)
	conn := f.conns.Open(context.Background(), registry.ConnectMetadata{})

	assert.NotPanics(t, func() {
		f.conns.Disconnect(context.Background(), conn)
		f.conns.Disconnect(context.Background(), conn)
	})
	assert.Empty(t, f.publisher.kinds())
}

func TestDisconnect_StaleConnectionKeepsNewerOnline(t *testing.T) {
	f := newFixture(t)
	old := f.connect(t, "alice")
	fresh := f.connect(t, "alice")

	f.conns.Disconnect(context.Background(), old)

	got, ok := f.hub.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, fresh, got)
	assert.Equal(t, model.StatusOnline, f.status(t, "alice"))
}

func TestDisconnect_CancelledContextStillWritesStatus(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.conns.Disconnect(ctx, conn)

	assert.Equal(t, model.StatusOffline, f.status(t, "alice"))
}

func TestRegisterConnection(t *testing.T) {
	f := newFixture(t)
	conn := f.conns.Open(context.Background(), registry.ConnectMetadata{})

	assert.False(t, f.conns.RegisterConnection(context.Background(), "mallory", conn))
	assert.True(t, f.conns.RegisterConnection(context.Background(), "alice", conn))
	assert.True(t, f.conns.RegisterConnection(context.Background(), "alice", conn), "already bound")

	// Rebinding the same channel to another identity releases the first one.
	assert.True(t, f.conns.RegisterConnection(context.Background(), "bob", conn))
	assert.False(t, f.hub.IsConnected("alice"))
	assert.Equal(t, model.StatusOffline, f.status(t, "alice"))
	owner, ok := f.hub.OwnerOf(conn)
	require.True(t, ok)
	assert.Equal(t, "bob", owner)
}

func TestShutdown_ReleasesEveryone(t *testing.T) {
	f := newFixture(t)
	alice := f.connect(t, "alice")
	bob := f.connect(t, "bob")

	f.conns.Shutdown(context.Background())

	for _, conn := range []registry.Connector{alice, bob} {
		ev := recv(t, conn)
		require.Equal(t, event.Disconnected, ev.GetKind())
		assert.Equal(t, event.ShutdownCode, ev.GetPayload().(*model.DisconnectedPayload).Code)
		select {
		case <-conn.Done():
		default:
			t.Fatal("channel left open")
		}
	}
	assert.Empty(t, f.hub.Online())
	assert.Equal(t, model.StatusOffline, f.status(t, "alice"))
	assert.Equal(t, model.StatusOffline, f.status(t, "bob"))
}
