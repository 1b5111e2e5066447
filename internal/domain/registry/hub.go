package registry

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/webitel/im-private-chat/internal/domain/event"
	"github.com/webitel/im-private-chat/internal/domain/model"
)

// Hubber defines the presence registry: at most one channel handle per user id.
type Hubber interface {
	NewConnector(ctx context.Context, meta ConnectMetadata) Connector
	Bind(userID string, conn Connector) Connector
	Unbind(userID string, conn Connector) bool
	Lookup(userID string) (Connector, bool)
	OwnerOf(conn Connector) (string, bool)
	IsConnected(userID string) bool
	Push(userID string, ev event.Eventer) bool
	SendTimeout() time.Duration
	Online() []string
	Stats() model.HubStats
	Shutdown()
}

var _ Hubber = (*Hub)(nil)

// Hub implements the process-wide presence registry.
type Hub struct {
	// entries stores map[string]Connector. Optimized for [READ_HEAVY] workloads.
	entries   sync.Map
	config    hubConfig
	startedAt time.Time
}

type hubConfig struct {
	sendTimeout time.Duration
	bufferSize  int
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		config: hubConfig{
			sendTimeout: 500 * time.Millisecond,
			bufferSize:  256,
		},
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewConnector creates an unbound channel handle sized by the hub configuration.
func (h *Hub) NewConnector(ctx context.Context, meta ConnectMetadata) Connector {
	return NewConnector(ctx, h.config.bufferSize, meta)
}

// Bind replaces any existing entry for userID (last writer wins) and returns the displaced handle, if any.
// The displaced handle is left open and receives no signal.
func (h *Hub) Bind(userID string, conn Connector) Connector {
	prev, loaded := h.entries.Swap(userID, conn)
	if !loaded {
		return nil
	}
	if p, ok := prev.(Connector); ok && p != conn {
		return p
	}
	return nil
}

// Unbind removes the entry only if it still points at conn.
// A stale disconnect can never evict a newer connection for the same user.
func (h *Hub) Unbind(userID string, conn Connector) bool {
	return h.entries.CompareAndDelete(userID, conn)
}

func (h *Hub) Lookup(userID string) (Connector, bool) {
	val, ok := h.entries.Load(userID)
	if !ok {
		return nil, false
	}
	conn, ok := val.(Connector)
	return conn, ok
}

// OwnerOf scans the registry for the user bound to conn. The scan tolerates concurrent mutation.
func (h *Hub) OwnerOf(conn Connector) (string, bool) {
	var owner string
	h.entries.Range(func(key, val any) bool {
		if c, ok := val.(Connector); ok && c == conn {
			owner = key.(string)
			return false
		}
		return true
	})
	return owner, owner != ""
}

func (h *Hub) IsConnected(userID string) bool {
	_, ok := h.entries.Load(userID)
	return ok
}

// Push routes an event to the user's current channel. Returns false on miss or a dead channel.
func (h *Hub) Push(userID string, ev event.Eventer) bool {
	conn, ok := h.Lookup(userID)
	if !ok {
		return false
	}
	return conn.Send(ev, h.config.sendTimeout)
}

// SendTimeout is the per-event delivery window applied to bound channels.
func (h *Hub) SendTimeout() time.Duration {
	return h.config.sendTimeout
}

// Online returns a sorted snapshot of connected user ids.
func (h *Hub) Online() []string {
	var users []string
	h.entries.Range(func(key, _ any) bool {
		users = append(users, key.(string))
		return true
	})
	slices.Sort(users)
	return users
}

func (h *Hub) Stats() model.HubStats {
	users := h.Online()
	return model.HubStats{
		TotalUsers: len(users),
		Users:      users,
		Uptime:     time.Since(h.startedAt),
	}
}

// Shutdown notifies and closes every bound channel, then empties the registry.
// It leaves stored statuses alone; in the server the connection service has already
// released everyone by the time the registry stops, so this only catches stragglers.
func (h *Hub) Shutdown() {
	h.entries.Range(func(key, val any) bool {
		if conn, ok := val.(Connector); ok {
			conn.Send(event.NewShutdownEvent(key.(string)), h.config.sendTimeout)
			conn.Close()
		}
		h.entries.Delete(key)
		return true
	})
}
