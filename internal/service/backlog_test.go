package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-private-chat/internal/domain/event"
	"github.com/webitel/im-private-chat/internal/domain/model"
)

// A online, B offline: the message waits in the backlog and is read exactly once.
func TestBacklog_OfflineRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.connect(t, "alice")

	_, err := f.delivery.Send(ctx, alice, SendRequest{SenderID: "alice", RecipientID: "bob", Content: "hi"})
	require.NoError(t, err)

	f.connect(t, "bob")
	backlog, err := f.backlog.GetUnread(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, "alice", backlog[0].SenderID)
	assert.Equal(t, "Alice", backlog[0].SenderName)
	assert.Equal(t, "hi", backlog[0].Content)
	assert.False(t, backlog[0].Read)

	n, err := f.backlog.MarkReadForPair(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pair, err := f.backlog.GetUnreadForPair(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Empty(t, pair)
}

func TestBacklog_MarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.delivery.Send(ctx, nil, SendRequest{SenderID: "alice", RecipientID: "bob", Content: "hi"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.backlog.MarkRead(ctx, "carol", msg.ID), ErrForbidden)
	assert.ErrorIs(t, f.backlog.MarkRead(ctx, "bob", "missing"), ErrNotFound)

	require.NoError(t, f.backlog.MarkRead(ctx, "bob", msg.ID))
	require.NoError(t, f.backlog.MarkRead(ctx, "bob", msg.ID), "idempotent")

	stored, err := f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Read)
}

// B has A's conversation open: the live push is appended and read right away.
func TestBacklog_LiveAppendLeavesNothingUnread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.connect(t, "alice")
	bob := f.connect(t, "bob")

	_, err := f.delivery.Send(ctx, alice, SendRequest{SenderID: "alice", RecipientID: "bob", Content: "now"})
	require.NoError(t, err)

	ev := recv(t, bob)
	require.Equal(t, event.MessageReceived, ev.GetKind())
	// the client's direct-append path issues a single mark-read
	p := ev.GetPayload().(*model.MessageReceivedPayload)
	require.NoError(t, f.backlog.MarkRead(ctx, "bob", p.MessageID))

	pair, err := f.backlog.GetUnreadForPair(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Empty(t, pair)
}
