// Package handlertest runs the full delivery stack behind an httptest server.
package handlertest

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-private-chat/config"
	"github.com/webitel/im-private-chat/internal/adapter/pubsub"
	"github.com/webitel/im-private-chat/internal/domain/model"
	"github.com/webitel/im-private-chat/internal/domain/registry"
	httphandler "github.com/webitel/im-private-chat/internal/handler/http"
	"github.com/webitel/im-private-chat/internal/handler/ws"
	"github.com/webitel/im-private-chat/internal/service"
	"github.com/webitel/im-private-chat/internal/store/memstore"
	"go.opentelemetry.io/otel/trace/noop"
)

type Harness struct {
	Store     *memstore.Store
	Hub       *registry.Hub
	Lifecycle service.Lifecycle
	Deliverer service.Deliverer
	Backlog   service.Backlogger
	Directory service.Directory
	Server    *httptest.Server
}

// Users seeded by New. alice is friends with bob and carol.
var Users = []*model.User{
	{ID: "alice", Name: "Alice", AvatarURL: "alice.png"},
	{ID: "bob", Name: "Bob"},
	{ID: "carol", Name: "Carol"},
}

func New(t testing.TB) *Harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracer := noop.NewTracerProvider().Tracer("test")
	cfg := &config.Config{
		Service:  config.ServiceConfig{Name: "test", Version: "test"},
		Enricher: config.EnricherConfig{CacheSize: 100, CacheTTL: time.Minute},
	}

	st := memstore.New()
	hub := registry.NewHub(registry.WithSendTimeout(50*time.Millisecond), registry.WithBufferSize(32))
	publisher := pubsub.NewEventDispatcher(&pubsub.Provider{}, logger)
	enricher := service.NewPeerEnricherService(st, cfg)

	h := &Harness{
		Store:     st,
		Hub:       hub,
		Lifecycle: service.NewConnectionService(hub, st, publisher, tracer, logger, cfg),
		Deliverer: service.NewDeliveryService(hub, st, enricher, publisher, tracer, logger),
		Backlog:   service.NewBacklogService(st, enricher, logger),
		Directory: service.NewDirectoryService(hub, st),
	}

	ctx := context.Background()
	for _, u := range Users {
		cp := *u
		require.NoError(t, st.CreateUser(ctx, &cp))
	}
	require.NoError(t, st.AddFriendship(ctx, "alice", "bob"))
	require.NoError(t, st.AddFriendship(ctx, "alice", "carol"))

	r := chi.NewRouter()
	r.Mount(httphandler.Prefix, httphandler.NewRESTHandler(logger, h.Backlog, h.Directory).Routes())
	r.Handle(ws.Path, ws.NewWSHandler(logger, h.Lifecycle, h.Deliverer, hub))

	h.Server = httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Shutdown()
		h.Server.Close()
	})
	return h
}

// URL is the server base, e.g. http://127.0.0.1:1234.
func (h *Harness) URL() string { return h.Server.URL }

// WSURL is the websocket endpoint.
func (h *Harness) WSURL() string {
	return "ws" + strings.TrimPrefix(h.Server.URL, "http") + ws.Path
}

// WaitOnline blocks until userID is bound in the registry.
func (h *Harness) WaitOnline(t testing.TB, userID string) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Hub.IsConnected(userID) }, 2*time.Second, 5*time.Millisecond)
}

// WaitOffline blocks until userID has left the registry and its stored status says so.
func (h *Harness) WaitOffline(t testing.TB, userID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		u, err := h.Store.GetUser(context.Background(), userID)
		return err == nil && !h.Hub.IsConnected(userID) && u.Status == model.StatusOffline
	}, 2*time.Second, 5*time.Millisecond)
}
