package bus

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-private-chat/config"
	"github.com/webitel/im-private-chat/internal/adapter/pubsub"
	"github.com/webitel/im-private-chat/internal/domain/event"
	"github.com/webitel/im-private-chat/internal/domain/model"
)

type invalidations struct {
	mu  sync.Mutex
	ids []string
}

func (i *invalidations) ResolveUser(context.Context, string) (*model.User, error) { return nil, nil }
func (i *invalidations) ResolveUsers(context.Context, []string) (map[string]*model.User, error) {
	return nil, nil
}

func (i *invalidations) Invalidate(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ids = append(i.ids, id)
}

func (i *invalidations) seen() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.ids...)
}

func TestRouter_StatusChangeInvalidatesProfile(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wlog := watermill.NopLogger{}

	provider, err := pubsub.NewProvider(&config.Config{Bus: config.BusConfig{Driver: pubsub.DriverGoChannel}}, wlog)
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Close() })

	router, err := NewWatermillRouter(wlog)
	require.NoError(t, err)

	enricher := &invalidations{}
	h := NewMessageHandler(logger, enricher)
	require.NoError(t, h.RegisterHandlers(router, provider, wlog))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, Run(ctx, router, logger))
	t.Cleanup(func() { _ = router.Close() })

	d := pubsub.NewEventDispatcher(provider, logger)
	require.NoError(t, d.Publish(ctx, event.NewUserStatusEvent("bob", model.StatusOnline)))

	assert.Eventually(t, func() bool {
		ids := enricher.seen()
		return len(ids) == 1 && ids[0] == "bob"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBind_MalformedPayloadIsAcked(t *testing.T) {
	h := NewMessageHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), &invalidations{})
	called := false
	fn := Bind(h, func(context.Context, string, *model.UserStatusPayload) error {
		called = true
		return nil
	})

	assert.NoError(t, fn(message.NewMessage("1", []byte("not json"))))
	assert.NoError(t, fn(message.NewMessage("2", []byte(`{"user_id":"","payload":{"status":"online"}}`))))
	assert.False(t, called)
}

func TestBind_RecoversPanic(t *testing.T) {
	h := NewMessageHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), &invalidations{})
	fn := Bind(h, func(context.Context, string, *model.UserStatusPayload) error {
		panic("boom")
	})

	assert.NoError(t, fn(message.NewMessage("1", []byte(`{"user_id":"bob","payload":{"user_id":"bob","status":"online"}}`))))
}
