package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-private-chat/internal/handler/handlertest"
	"github.com/webitel/im-private-chat/internal/service"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestClient_RoundTrips(t *testing.T) {
	h := handlertest.New(t)
	ctx := context.Background()

	msg, err := h.Deliverer.Send(ctx, nil, service.SendRequest{SenderID: "alice", RecipientID: "bob", Content: "hi"})
	require.NoError(t, err)
	_, err = h.Deliverer.Send(ctx, nil, service.SendRequest{SenderID: "alice", RecipientID: "bob", Content: "again"})
	require.NoError(t, err)

	bob, err := New(h.URL(), "bob", discard())
	require.NoError(t, err)

	unread, err := bob.GetUnread(ctx)
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, "Alice", unread[0].SenderName)

	require.NoError(t, bob.MarkRead(ctx, msg.ID))

	pair, err := bob.GetUnreadForPair(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, pair, 1)
	assert.Equal(t, "again", pair[0].Content)

	n, err := bob.MarkReadForPair(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, bob.Heartbeat(ctx))

	alice, err := New(h.URL(), "alice", discard())
	require.NoError(t, err)
	friends, err := alice.Friends(ctx)
	require.NoError(t, err)
	assert.Len(t, friends, 2)

	stats, err := alice.Online(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalUsers)
}

func TestClient_ClientErrorsKeepBreakerClosed(t *testing.T) {
	h := handlertest.New(t)
	ghost, err := New(h.URL(), "ghost", discard())
	require.NoError(t, err)

	for range 10 {
		err := ghost.Heartbeat(context.Background())
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusNotFound, se.Code)
	}
}

func TestClient_ServerFailuresOpenBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "bob", discard())
	require.NoError(t, err)

	for range 5 {
		err := c.Heartbeat(context.Background())
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrUnavailable))
	}

	err = c.Heartbeat(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 5, hits.Load())
}

func TestClient_BreakerRecovers(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "bob", discard())
	require.NoError(t, err)
	settings := c.defaultSettings()
	settings.Timeout = 20 * time.Millisecond
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 1 }
	WithBreaker(settings)(c)

	require.Error(t, c.Heartbeat(context.Background()))
	assert.ErrorIs(t, c.Heartbeat(context.Background()), ErrUnavailable)

	healthy.Store(true)
	assert.Eventually(t, func() bool {
		return c.Heartbeat(context.Background()) == nil
	}, time.Second, 10*time.Millisecond)
}
