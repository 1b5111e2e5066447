// Package storetest holds a behavioural suite every store.Store implementation must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-private-chat/internal/domain/model"
	"github.com/webitel/im-private-chat/internal/store"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newStore(t)) })
	t.Run("DuplicateMessage", func(t *testing.T) { testDuplicateMessage(t, newStore(t)) })
	t.Run("UnreadOrdering", func(t *testing.T) { testUnreadOrdering(t, newStore(t)) })
	t.Run("MarkReadIdempotent", func(t *testing.T) { testMarkReadIdempotent(t, newStore(t)) })
	t.Run("MarkReadForPair", func(t *testing.T) { testMarkReadForPair(t, newStore(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Friends", func(t *testing.T) { testFriends(t, newStore(t)) })
}

var base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func msg(id, from, to string, offset time.Duration) *model.Message {
	return &model.Message{
		ID:          id,
		SenderID:    from,
		RecipientID: to,
		Content:     "content of " + id,
		ContentType: model.ContentText,
		CreatedAt:   base.Add(offset),
	}
}

func ids(msgs []*model.Message) []string {
	res := make([]string, 0, len(msgs))
	for _, m := range msgs {
		res = append(res, m.ID)
	}
	return res
}

func testInsertAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	in := msg("m1", "alice", "bob", 0)
	in.ContentType = model.ContentImage
	require.NoError(t, s.InsertMessage(ctx, in))

	got, err := s.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.SenderID)
	assert.Equal(t, "bob", got.RecipientID)
	assert.Equal(t, in.Content, got.Content)
	assert.Equal(t, model.ContentImage, got.ContentType)
	assert.False(t, got.Read)
	assert.True(t, in.CreatedAt.Equal(got.CreatedAt))

	_, err = s.GetMessage(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDuplicateMessage(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertMessage(ctx, msg("m1", "alice", "bob", 0)))

	dup := msg("m1", "alice", "bob", time.Second)
	dup.Content = "retry"
	assert.ErrorIs(t, s.InsertMessage(ctx, dup), store.ErrDuplicateMessage)

	got, err := s.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "content of m1", got.Content, "first insert wins")
}

func testUnreadOrdering(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertMessage(ctx, msg("c", "alice", "bob", 3*time.Second)))
	require.NoError(t, s.InsertMessage(ctx, msg("a", "alice", "bob", 1*time.Second)))
	require.NoError(t, s.InsertMessage(ctx, msg("b", "carol", "bob", 2*time.Second)))
	require.NoError(t, s.InsertMessage(ctx, msg("x", "bob", "alice", 0)))

	all, err := s.GetUnreadForRecipient(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(all))

	pair, err := s.GetUnreadForPair(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(pair))

	none, err := s.GetUnreadForRecipient(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testMarkReadIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertMessage(ctx, msg("m1", "alice", "bob", 0)))

	require.NoError(t, s.MarkRead(ctx, "m1"))
	require.NoError(t, s.MarkRead(ctx, "m1"))

	got, err := s.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, got.Read)

	assert.ErrorIs(t, s.MarkRead(ctx, "missing"), store.ErrNotFound)
}

func testMarkReadForPair(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertMessage(ctx, msg("a1", "alice", "bob", 0)))
	require.NoError(t, s.InsertMessage(ctx, msg("a2", "alice", "bob", time.Second)))
	require.NoError(t, s.InsertMessage(ctx, msg("c1", "carol", "bob", 2*time.Second)))

	n, err := s.MarkReadForPair(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	pair, err := s.GetUnreadForPair(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Empty(t, pair)

	rest, err := s.GetUnreadForRecipient(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids(rest))

	n, err = s.MarkReadForPair(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &model.User{ID: "alice", Name: "Alice", AvatarURL: "a.png"}))
	assert.ErrorIs(t, s.CreateUser(ctx, &model.User{ID: "alice"}), store.ErrUserExists)

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, model.StatusOffline, u.Status)
	assert.True(t, u.LastOnline.IsZero())

	require.NoError(t, s.SetUserStatus(ctx, "alice", model.StatusOnline))
	u, err = s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOnline, u.Status)
	assert.False(t, u.LastOnline.IsZero())

	before := u.LastOnline
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.TouchLastOnline(ctx, "alice"))
	u, err = s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, u.LastOnline.After(before))

	_, err = s.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.SetUserStatus(ctx, "ghost", model.StatusOnline), store.ErrNotFound)
	assert.ErrorIs(t, s.TouchLastOnline(ctx, "ghost"), store.ErrNotFound)
}

func testFriends(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, u := range []*model.User{
		{ID: "alice", Name: "Alice"},
		{ID: "bob", Name: "Bob"},
		{ID: "carol", Name: "Carol"},
	} {
		require.NoError(t, s.CreateUser(ctx, u))
	}

	require.NoError(t, s.AddFriendship(ctx, "alice", "carol"))
	require.NoError(t, s.AddFriendship(ctx, "alice", "bob"))
	require.NoError(t, s.AddFriendship(ctx, "bob", "alice"), "re-adding is a no-op")
	assert.ErrorIs(t, s.AddFriendship(ctx, "alice", "ghost"), store.ErrNotFound)

	friends, err := s.ListFriends(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, friends, 2)
	assert.Equal(t, "bob", friends[0].ID)
	assert.Equal(t, "carol", friends[1].ID)

	friends, err = s.ListFriends(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, "alice", friends[0].ID)
}
