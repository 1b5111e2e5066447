package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-private-chat/internal/domain/event"
	"github.com/webitel/im-private-chat/internal/domain/model"
)

func TestSend_OfflineRecipientGoesToBacklog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.connect(t, "alice")

	msg, err := f.delivery.Send(ctx, alice, SendRequest{SenderID: "alice", RecipientID: "bob", Content: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, model.ContentText, msg.ContentType)

	echo := recv(t, alice)
	require.Equal(t, event.SendEcho, echo.GetKind())
	p := echo.GetPayload().(*model.SendEchoPayload)
	assert.Equal(t, msg.ID, p.MessageID)
	assert.Equal(t, "bob", p.ReceiverID)
	assert.Equal(t, "hi", p.Content)

	unread, err := f.store.GetUnreadForRecipient(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "hi", unread[0].Content)
	assert.False(t, unread[0].Read)

	assert.Equal(t, []event.EventKind{event.UserStatusChanged, event.MessageCreated}, f.publisher.kinds())
}

func TestSend_OnlineRecipientGetsLivePush(t *testing.T) {
	f := newFixture(t)
	alice := f.connect(t, "alice")
	bob := f.connect(t, "bob")

	msg, err := f.delivery.Send(context.Background(), alice, SendRequest{
		SenderID:    "alice",
		RecipientID: "bob",
		Content:     "look",
		ContentType: "image",
	})
	require.NoError(t, err)

	ev := recv(t, bob)
	require.Equal(t, event.MessageReceived, ev.GetKind())
	p := ev.GetPayload().(*model.MessageReceivedPayload)
	assert.Equal(t, msg.ID, p.MessageID)
	assert.Equal(t, "alice", p.SenderID)
	assert.Equal(t, "Alice", p.SenderName)
	assert.Equal(t, "alice.png", p.SenderAvatar)
	assert.Equal(t, model.ContentImage, p.ContentType)
	assert.True(t, msg.CreatedAt.Equal(p.SentAt))

	assert.Equal(t, event.SendEcho, recv(t, alice).GetKind())
	assertNoEvent(t, alice)
}

func TestSend_EchoFallsBackToRegistry(t *testing.T) {
	f := newFixture(t)
	alice := f.connect(t, "alice")

	_, err := f.delivery.Send(context.Background(), nil, SendRequest{SenderID: "alice", RecipientID: "bob", Content: "via rest"})
	require.NoError(t, err)
	assert.Equal(t, event.SendEcho, recv(t, alice).GetKind())
}

func TestSend_PersistenceFailureAbortsWithoutPush(t *testing.T) {
	f := newFixture(t)
	alice := f.connect(t, "alice")
	bob := f.connect(t, "bob")
	f.store.failInsert = true

	msg, err := f.delivery.Send(context.Background(), alice, SendRequest{SenderID: "alice", RecipientID: "bob", Content: "ghost"})
	require.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Nil(t, msg)

	assertNoEvent(t, bob)
	assertNoEvent(t, alice)
	assert.NotContains(t, f.publisher.kinds(), event.MessageCreated)
}

func TestSend_DeadRecipientChannelIsSwallowed(t *testing.T) {
	f := newFixture(t)
	alice := f.connect(t, "alice")
	bob := f.connect(t, "bob")
	bob.Close() // closed between lookup and send; still registered

	msg, err := f.delivery.Send(context.Background(), alice, SendRequest{SenderID: "alice", RecipientID: "bob", Content: "later"})
	require.NoError(t, err)
	assert.Equal(t, event.SendEcho, recv(t, alice).GetKind())

	unread, err := f.store.GetUnreadForPair(context.Background(), "bob", "alice")
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, msg.ID, unread[0].ID)
}

func TestSend_ClientMessageIDIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.connect(t, "alice")
	bob := f.connect(t, "bob")

	req := SendRequest{SenderID: "alice", RecipientID: "bob", Content: "once", ClientMessageID: "client-1"}
	first, err := f.delivery.Send(ctx, alice, req)
	require.NoError(t, err)
	second, err := f.delivery.Send(ctx, alice, req)
	require.NoError(t, err)

	assert.Equal(t, "client-1", first.ID)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt), "retry returns the stored copy")

	unread, err := f.store.GetUnreadForPair(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Len(t, unread, 1)

	// Both attempts are pushed; the client dedupes by id.
	assert.Equal(t, event.MessageReceived, recv(t, bob).GetKind())
	assert.Equal(t, event.MessageReceived, recv(t, bob).GetKind())

	created := 0
	for _, k := range f.publisher.kinds() {
		if k == event.MessageCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)

	_, err = f.delivery.Send(ctx, nil, SendRequest{SenderID: "carol", RecipientID: "bob", Content: "hijack", ClientMessageID: "client-1"})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestSend_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]SendRequest{
		"no sender":    {RecipientID: "bob", Content: "x"},
		"no recipient": {SenderID: "alice", Content: "x"},
		"blank":        {SenderID: "alice", RecipientID: "bob", Content: "  "},
		"content type": {SenderID: "alice", RecipientID: "bob", Content: "x", ContentType: "video"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.delivery.Send(ctx, nil, req)
			assert.ErrorIs(t, err, ErrInvalidMessage)
		})
	}

	_, err := f.delivery.Send(ctx, nil, SendRequest{SenderID: "alice", RecipientID: "nobody", Content: "x"})
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestSend_TimestampsIncrease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var prev *model.Message
	for range 20 {
		msg, err := f.delivery.Send(ctx, nil, SendRequest{SenderID: "alice", RecipientID: "bob", Content: "tick"})
		require.NoError(t, err)
		if prev != nil {
			assert.True(t, msg.CreatedAt.After(prev.CreatedAt))
		}
		prev = msg
	}
}
