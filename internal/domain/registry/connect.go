package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-private-chat/internal/domain/event"
)

// Interface guard
var _ Connector = (*connect)(nil)

// [CONNECTOR] OPAQUE CHANNEL HANDLE THAT CAN RECEIVE PUSHED EVENTS
// Pointer identity is the ownership token used by Hub.Unbind, so connectors are never pooled.
type Connector interface {
	GetID() uuid.UUID
	Metadata() ConnectMetadata
	Send(ev event.Eventer, timeout time.Duration) bool // Thread-safe send with backpressure handling
	Recv() <-chan event.Eventer
	Done() <-chan struct{}
	Dropped() uint64
	Close() // Terminate connection and release resources
}

// [METADATA] EXPORTED FOR TRANSPORT AND LOGGING
type ConnectMetadata struct {
	RemoteIP  string
	UserAgent string
}

type connect struct {
	id        uuid.UUID
	metadata  ConnectMetadata
	createdAt time.Time
	ctx       context.Context
	cancelFn  context.CancelFunc

	// mu guards sendCh against close while a Send is in flight.
	mu        sync.RWMutex
	sendCh    chan event.Eventer
	closeOnce sync.Once

	droppedCount uint64 // [ATOMIC_FIELD]
}

// NewConnector creates a channel handle whose lifetime is bound to ctx.
func NewConnector(ctx context.Context, bufferSize int, meta ConnectMetadata) Connector {
	childCtx, cancel := context.WithCancel(ctx)
	return &connect{
		id:        uuid.New(),
		metadata:  meta,
		createdAt: time.Now(),
		ctx:       childCtx,
		cancelFn:  cancel,
		sendCh:    make(chan event.Eventer, bufferSize),
	}
}

func (c *connect) GetID() uuid.UUID           { return c.id }
func (c *connect) Metadata() ConnectMetadata  { return c.metadata }
func (c *connect) Recv() <-chan event.Eventer { return c.sendCh }
func (c *connect) Done() <-chan struct{}      { return c.ctx.Done() }
func (c *connect) Dropped() uint64            { return atomic.LoadUint64(&c.droppedCount) }

// Send attempts to push an event into the channel.
// It returns false when the channel is closed or stays saturated for the whole timeout.
func (c *connect) Send(ev event.Eventer, timeout time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// 1. [LIFECYCLE_GATE] Immediately abort if the underlying transport is already dead.
	if c.ctx.Err() != nil {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return false

	// 2. [PRIMARY_DELIVERY] Wait up to 'timeout' for buffer space.
	case c.sendCh <- ev:
		return true

	// 3. [BACKPRESSURE_THRESHOLD] Buffer stayed saturated for the entire window.
	case <-timer.C:
		return c.handleBackpressure(ev)
	}
}

// handleBackpressure makes room for high-priority events by evicting one buffered event of lower priority.
// Caller holds c.mu.RLock.
func (c *connect) handleBackpressure(ev event.Eventer) bool {
	if ev.GetPriority() <= event.PriorityLow {
		atomic.AddUint64(&c.droppedCount, 1)
		return false
	}

	select {
	case oldEv := <-c.sendCh:
		if oldEv.GetPriority() < ev.GetPriority() {
			select {
			case c.sendCh <- ev:
				atomic.AddUint64(&c.droppedCount, 1) // oldEv
				return true
			default:
			}
		}
		// Put it back (best effort)
		select {
		case c.sendCh <- oldEv:
		default:
			atomic.AddUint64(&c.droppedCount, 1)
		}
	default:
	}

	atomic.AddUint64(&c.droppedCount, 1)
	return false
}

// Close terminates the handle. Safe to call more than once and concurrently with Send.
func (c *connect) Close() {
	c.closeOnce.Do(func() {
		// [SIGNAL_ABORT] Cancel first so blocked senders release the read lock.
		c.cancelFn()

		c.mu.Lock()
		close(c.sendCh)
		c.mu.Unlock()
	})
}
