package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerEnricher_CachesAndInvalidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.store.reads()

	u, err := f.enricher.ResolveUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)

	_, err = f.enricher.ResolveUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, before+1, f.store.reads(), "second lookup is served from cache")

	f.enricher.Invalidate("alice")
	_, err = f.enricher.ResolveUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, before+2, f.store.reads())

	_, err = f.enricher.ResolveUser(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestPeerEnricher_ResolveUsersSkipsUnknown(t *testing.T) {
	f := newFixture(t)

	res, err := f.enricher.ResolveUsers(context.Background(), []string{"alice", "bob", "alice", "nobody"})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "Bob", res["bob"].Name)
}

func TestPeerEnricher_Expires(t *testing.T) {
	f := newFixture(t)
	e := newPeerEnricher(f.store, 10, 10*time.Millisecond)
	before := f.store.reads()

	_, err := e.ResolveUser(context.Background(), "bob")
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	_, err = e.ResolveUser(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, before+2, f.store.reads())
}

func TestClock_StrictlyIncreasing(t *testing.T) {
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Clock{now: func() time.Time { return frozen }}

	a, b := c.Now(), c.Now()
	assert.True(t, b.After(a))
	assert.Equal(t, time.Microsecond, b.Sub(a))
}

func TestDirectory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.connect(t, "bob")

	friends, err := f.directory.Friends(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, friends, 2)
	assert.Equal(t, "bob", friends[0].ID)
	assert.True(t, friends[0].Online)
	assert.False(t, friends[1].Online)

	require.NoError(t, f.directory.Heartbeat(ctx, "alice"))
	assert.ErrorIs(t, f.directory.Heartbeat(ctx, "nobody"), ErrUnknownUser)

	stats := f.directory.Online()
	assert.Equal(t, []string{"bob"}, stats.Users)
}
