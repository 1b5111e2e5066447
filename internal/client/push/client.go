package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/webitel/im-private-chat/infra/server/http/interceptors"
	"github.com/webitel/im-private-chat/internal/domain/model"
	wsmarshaller "github.com/webitel/im-private-chat/internal/handler/marshaller/ws"
)

var (
	ErrClosed   = errors.New("push: connection closed")
	ErrRejected = errors.New("push: request rejected")
)

const (
	writeWait   = 10 * time.Second
	eventBuffer = 256
)

// Event is a decoded server push. Payload is one of the model payload pointers.
type Event struct {
	Kind    string
	ID      string
	Payload any
}

// Client is the push half of the chat client: one websocket, server events in, RPC frames out.
type Client struct {
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *model.AckPayload
	err     error

	events chan Event
	done   chan struct{}
}

// WSURL turns an http(s) base url into the push endpoint.
func WSURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("push: unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	return u.String(), nil
}

// Dial opens the push channel. An empty userID leaves it unbound until RegisterConnection.
func Dial(ctx context.Context, serverURL, userID string, logger *slog.Logger) (*Client, error) {
	target, err := WSURL(serverURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if userID != "" {
		header.Set(interceptors.HeaderUserID, userID)
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		return nil, fmt.Errorf("push: dial %s: %w", target, err)
	}

	c := &Client{
		ws:      ws,
		logger:  logger,
		pending: make(map[string]chan *model.AckPayload),
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events yields every non-ack server frame in arrival order. Closed when the connection ends.
func (c *Client) Events() <-chan Event { return c.events }

func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.ws.Close()
}

type SendRequest = wsmarshaller.SendRequest

// Send asks the server to persist and deliver a message. It returns the server-assigned id.
func (c *Client) Send(ctx context.Context, req *SendRequest) (string, error) {
	ack, err := c.call(ctx, wsmarshaller.RequestSend, req)
	if err != nil {
		return "", err
	}
	return ack.MessageID, nil
}

// RegisterConnection binds this channel to userID on the server.
func (c *Client) RegisterConnection(ctx context.Context, userID string) error {
	_, err := c.call(ctx, wsmarshaller.RequestRegisterConnection, &wsmarshaller.RegisterConnectionRequest{UserID: userID})
	return err
}

func (c *Client) call(ctx context.Context, kind string, payload any) (*model.AckPayload, error) {
	requestID := uuid.NewString()
	data, err := wsmarshaller.NewRequest(kind, requestID, payload)
	if err != nil {
		return nil, err
	}

	wait := make(chan *model.AckPayload, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, c.err
	}
	c.pending[requestID] = wait
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	if err := c.write(data); err != nil {
		return nil, fmt.Errorf("push: write %s: %w", kind, err)
	}

	select {
	case ack := <-wait:
		if !ack.Ok {
			return ack, fmt.Errorf("%w: %s", ErrRejected, ack.Error)
		}
		return ack, nil
	case <-c.done:
		return nil, c.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.events)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}

		frame, payload, err := wsmarshaller.UnmarshalFrame(data)
		if err != nil {
			c.logger.Warn("PUSH_FRAME_INVALID", "err", err)
			continue
		}

		if ack, ok := payload.(*model.AckPayload); ok {
			c.resolve(ack)
			continue
		}

		// Blocking here applies backpressure to the server's per-connection queue.
		c.events <- Event{Kind: frame.Event, ID: frame.ID, Payload: payload}
	}
}

func (c *Client) resolve(ack *model.AckPayload) {
	c.mu.Lock()
	wait, ok := c.pending[ack.RequestID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("PUSH_ACK_ORPHANED", "request_id", ack.RequestID)
		return
	}
	select {
	case wait <- ack:
	default:
	}
}

func (c *Client) fail(err error) {
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Debug("PUSH_READ_FAILED", "err", err)
	}
	err = fmt.Errorf("%w: %w", ErrClosed, err)
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}
