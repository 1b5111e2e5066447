package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/webitel/im-private-chat/config"
	"github.com/webitel/im-private-chat/internal/domain/event"
	"github.com/webitel/im-private-chat/internal/domain/model"
	"github.com/webitel/im-private-chat/internal/domain/registry"
	"github.com/webitel/im-private-chat/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Lifecycle binds user identities to channel handles and keeps the durable status in step.
type Lifecycle interface {
	// Open creates an unbound channel handle for a freshly accepted transport.
	Open(ctx context.Context, meta registry.ConnectMetadata) registry.Connector
	// Connect moves the user Offline → Online. On ErrUnknownUser the handle stays open but unbound.
	Connect(ctx context.Context, userID string, conn registry.Connector) error
	// Disconnect moves the owning user Online → Offline and closes conn.
	// It is safe to call for handles that were never bound.
	Disconnect(ctx context.Context, conn registry.Connector)
	// RegisterConnection (re)binds conn to userID on manual reconnection flows.
	RegisterConnection(ctx context.Context, userID string, conn registry.Connector) bool
	// OwnerOf reports the user conn is currently bound to.
	OwnerOf(conn registry.Connector) (string, bool)
	// Shutdown notifies, releases and closes every bound channel.
	Shutdown(ctx context.Context)
}

// Publisher exports domain events to the message bus.
type Publisher interface {
	Publish(ctx context.Context, ev event.Exportable) error
}

var _ Lifecycle = (*ConnectionService)(nil)

const statusWriteTimeout = 5 * time.Second

type ConnectionService struct {
	hub       registry.Hubber
	users     store.UserStore
	publisher Publisher
	tracer    trace.Tracer
	logger    *slog.Logger
	version   string

	// transitions serializes status writes per user (striped by id hash).
	transitions [64]sync.Mutex
}

func NewConnectionService(
	hub registry.Hubber,
	users store.UserStore,
	publisher Publisher,
	tracer trace.Tracer,
	logger *slog.Logger,
	cfg *config.Config,
) *ConnectionService {
	return &ConnectionService{
		hub:       hub,
		users:     users,
		publisher: publisher,
		tracer:    tracer,
		logger:    logger,
		version:   cfg.Service.Version,
	}
}

func (s *ConnectionService) lockFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &s.transitions[h.Sum32()%uint32(len(s.transitions))]
}

func (s *ConnectionService) Open(ctx context.Context, meta registry.ConnectMetadata) registry.Connector {
	return s.hub.NewConnector(ctx, meta)
}

func (s *ConnectionService) Connect(ctx context.Context, userID string, conn registry.Connector) error {
	ctx, span := s.tracer.Start(ctx, "ConnectionService.Connect",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.String("conn.id", conn.GetID().String())))
	defer span.End()

	if err := s.connect(ctx, userID, conn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *ConnectionService) connect(ctx context.Context, userID string, conn registry.Connector) error {
	// [IDENTITY_GATE] Only real accounts may occupy the registry.
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("CONNECT_REJECTED_UNKNOWN_USER", "user_id", userID, "conn_id", conn.GetID())
			return fmt.Errorf("%w: %s", ErrUnknownUser, userID)
		}
		return fmt.Errorf("%w: get user: %w", ErrPersistence, err)
	}

	if err := s.bind(ctx, userID, conn); err != nil {
		return err
	}

	s.logger.Info("USER_CONNECTED",
		"user_id", userID,
		"conn_id", conn.GetID(),
		"remote_ip", conn.Metadata().RemoteIP,
	)

	conn.Send(event.NewSystemEvent(userID, event.Connected, event.PriorityHigh, &model.ConnectedPayload{
		Ok:            true,
		UserID:        userID,
		ConnectionID:  conn.GetID().String(),
		ServerVersion: s.version,
	}), s.hub.SendTimeout())

	s.publishStatus(ctx, userID, model.StatusOnline)
	return nil
}

func (s *ConnectionService) bind(ctx context.Context, userID string, conn registry.Connector) error {
	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.users.SetUserStatus(ctx, userID, model.StatusOnline); err != nil {
		return fmt.Errorf("%w: set status online: %w", ErrPersistence, err)
	}

	if displaced := s.hub.Bind(userID, conn); displaced != nil {
		s.logger.Info("CONNECTION_DISPLACED",
			"user_id", userID,
			"conn_id", conn.GetID(),
			"displaced_conn_id", displaced.GetID(),
		)
	}
	return nil
}

func (s *ConnectionService) Disconnect(ctx context.Context, conn registry.Connector) {
	defer conn.Close()

	// Teardown usually runs after the request context is gone.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "ConnectionService.Disconnect",
		trace.WithAttributes(attribute.String("conn.id", conn.GetID().String())))
	defer span.End()

	userID, ok := s.hub.OwnerOf(conn)
	if !ok {
		// Never bound, or already displaced by a newer connection.
		s.logger.Debug("DISCONNECT_UNBOUND", "conn_id", conn.GetID())
		return
	}
	span.SetAttributes(attribute.String("user.id", userID))

	if err := s.release(ctx, userID, conn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// release unbinds conn from userID and flips the status offline, as one step
// with respect to concurrent Connect calls for the same user.
func (s *ConnectionService) release(ctx context.Context, userID string, conn registry.Connector) error {
	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	if !s.hub.Unbind(userID, conn) {
		// [LOOKUP_RACE] A newer connection owns the entry now; leave its status alone.
		s.logger.Debug("DISCONNECT_STALE", "user_id", userID, "conn_id", conn.GetID())
		return nil
	}

	s.logger.Info("USER_DISCONNECTED", "user_id", userID, "conn_id", conn.GetID(), "dropped_events", conn.Dropped())

	if err := s.users.SetUserStatus(ctx, userID, model.StatusOffline); err != nil {
		s.logger.Error("SET_STATUS_OFFLINE_FAILED", "user_id", userID, "err", err)
		return fmt.Errorf("%w: set status offline: %w", ErrPersistence, err)
	}

	s.publishStatus(ctx, userID, model.StatusOffline)
	return nil
}

func (s *ConnectionService) RegisterConnection(ctx context.Context, userID string, conn registry.Connector) bool {
	if owner, ok := s.hub.OwnerOf(conn); ok {
		if owner == userID {
			return true
		}
		if err := s.release(ctx, owner, conn); err != nil {
			return false
		}
	}

	if err := s.Connect(ctx, userID, conn); err != nil {
		s.logger.Warn("REGISTER_CONNECTION_FAILED", "user_id", userID, "conn_id", conn.GetID(), "err", err)
		return false
	}
	return true
}

// Shutdown runs the normal Online → Offline transition for every bound user
// so persisted statuses do not outlive the process.
func (s *ConnectionService) Shutdown(ctx context.Context) {
	users := s.hub.Online()
	for _, userID := range users {
		conn, ok := s.hub.Lookup(userID)
		if !ok {
			continue
		}
		conn.Send(event.NewShutdownEvent(userID), s.hub.SendTimeout())

		if err := s.release(ctx, userID, conn); err != nil {
			s.logger.Warn("SHUTDOWN_RELEASE_FAILED", "user_id", userID, "err", err)
		}
		conn.Close()
	}
	s.logger.Info("CONNECTIONS_DRAINED", "count", len(users))
}

func (s *ConnectionService) OwnerOf(conn registry.Connector) (string, bool) {
	return s.hub.OwnerOf(conn)
}

func (s *ConnectionService) publishStatus(ctx context.Context, userID string, status model.UserStatus) {
	if err := s.publisher.Publish(ctx, event.NewUserStatusEvent(userID, status)); err != nil {
		s.logger.Warn("STATUS_EXPORT_FAILED", "user_id", userID, "status", status, "err", err)
	}
}
