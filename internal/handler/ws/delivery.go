package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/webitel/im-private-chat/infra/server/http/interceptors"
	"github.com/webitel/im-private-chat/internal/domain/event"
	"github.com/webitel/im-private-chat/internal/domain/model"
	"github.com/webitel/im-private-chat/internal/domain/registry"
	wsmarshaller "github.com/webitel/im-private-chat/internal/handler/marshaller/ws"
	"github.com/webitel/im-private-chat/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

type WSHandler struct {
	logger      *slog.Logger
	lifecycle   service.Lifecycle
	deliverer   service.Deliverer
	sendTimeout time.Duration
	upgrader    websocket.Upgrader
}

func NewWSHandler(logger *slog.Logger, lifecycle service.Lifecycle, deliverer service.Deliverer, hub registry.Hubber) *WSHandler {
	return &WSHandler{
		logger:      logger,
		lifecycle:   lifecycle,
		deliverer:   deliverer,
		sendTimeout: hub.SendTimeout(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true }, // Security: adjust for production
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. EXTRACT USER ID (may be empty: the client can bind later via register_connection)
	userID := interceptors.UserIDFromRequest(r)

	// 2. UPGRADE TO WEBSOCKET
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WS_UPGRADE_FAILED", "err", err)
		return
	}
	defer ws.Close()

	// Hijacked connections outlive nothing but the pumps below.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	conn := h.lifecycle.Open(ctx, registry.ConnectMetadata{
		RemoteIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	// [TEARDOWN] Fires exactly once per transport, however it ended.
	defer h.lifecycle.Disconnect(ctx, conn)

	// 3. BIND IDENTITY
	if userID != "" {
		if err := h.lifecycle.Connect(ctx, userID, conn); err != nil {
			// Unknown or unreachable users keep an open but inert channel.
			h.logger.Warn("WS_CONNECT_FAILED", "user_id", userID, "conn_id", conn.GetID(), "err", err)
		}
	}

	h.logger.Info("WS_OPENED", "user_id", userID, "conn_id", conn.GetID())

	go h.readPump(ctx, cancel, ws, conn)
	h.writePump(ctx, ws, conn)

	h.logger.Info("WS_CLOSED", "conn_id", conn.GetID())
}

// writePump is the only goroutine writing to ws.
func (h *WSHandler) writePump(ctx context.Context, ws *websocket.Conn, conn registry.Connector) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-conn.Done():
			// Closed by the registry (shutdown). Flush what is already queued.
			h.drain(ws, conn)
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
				time.Now().Add(writeWait))
			return

		case ev, ok := <-conn.Recv():
			if !ok {
				return
			}
			if err := h.write(ws, ev); err != nil {
				h.logger.Warn("WS_SEND_FAILED", "conn_id", conn.GetID(), "err", err)
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) drain(ws *websocket.Conn, conn registry.Connector) {
	for {
		select {
		case ev, ok := <-conn.Recv():
			if !ok {
				return
			}
			if err := h.write(ws, ev); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (h *WSHandler) write(ws *websocket.Conn, ev event.Eventer) error {
	data, err := wsmarshaller.MarshallDeliveryEvent(ev)
	if err != nil {
		h.logger.Error("WS_MARSHAL_FAILED", "kind", ev.GetKind(), "err", err)
		return nil
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, data)
}

// readPump decodes client RPC frames. Its exit tears the whole connection down.
func (h *WSHandler) readPump(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, conn registry.Connector) {
	defer cancel()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			var ne net.Error
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				h.logger.Debug("WS_PEER_CLOSED", "conn_id", conn.GetID())
			case errors.As(err, &ne) && ne.Timeout():
				h.logger.Info("WS_READ_TIMEOUT", "conn_id", conn.GetID())
			default:
				h.logger.Debug("WS_READ_FAILED", "conn_id", conn.GetID(), "err", err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		var req wsmarshaller.Request
		if err := json.Unmarshal(data, &req); err != nil {
			h.logger.Warn("WS_FRAME_INVALID", "conn_id", conn.GetID(), "err", err)
			continue
		}

		h.ack(conn, h.dispatch(ctx, conn, &req))
	}
}

func (h *WSHandler) dispatch(ctx context.Context, conn registry.Connector, req *wsmarshaller.Request) *model.AckPayload {
	ack := &model.AckPayload{RequestID: req.RequestID}

	switch req.Type {
	case wsmarshaller.RequestSend:
		var body wsmarshaller.SendRequest
		if err := json.Unmarshal(req.Payload, &body); err != nil {
			ack.Error = "malformed send payload"
			return ack
		}
		senderID, bound := h.lifecycle.OwnerOf(conn)
		if !bound {
			ack.Error = "connection is not bound to a user"
			return ack
		}

		msg, err := h.deliverer.Send(ctx, conn, service.SendRequest{
			SenderID:        senderID,
			RecipientID:     body.RecipientID,
			Content:         body.Content,
			ContentType:     body.ContentType,
			ClientMessageID: body.ClientMessageID,
		})
		if err != nil {
			ack.Error = err.Error()
			return ack
		}
		ack.Ok, ack.MessageID = true, msg.ID

	case wsmarshaller.RequestRegisterConnection:
		var body wsmarshaller.RegisterConnectionRequest
		if err := json.Unmarshal(req.Payload, &body); err != nil || body.UserID == "" {
			ack.Error = "malformed register_connection payload"
			return ack
		}
		ack.Ok = h.lifecycle.RegisterConnection(ctx, body.UserID, conn)
		if !ack.Ok {
			ack.Error = "registration rejected"
		}

	default:
		ack.Error = "unknown request type: " + req.Type
	}
	return ack
}

func (h *WSHandler) ack(conn registry.Connector, ack *model.AckPayload) {
	if ack.RequestID == "" {
		return
	}
	if !conn.Send(event.NewSystemEvent("", event.Ack, event.PriorityHigh, ack), h.sendTimeout) {
		h.logger.Debug("WS_ACK_DROPPED", "conn_id", conn.GetID(), "request_id", ack.RequestID)
	}
}
