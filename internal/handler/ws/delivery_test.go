package ws_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-private-chat/internal/domain/model"
	"github.com/webitel/im-private-chat/internal/handler/handlertest"
	wsmarshaller "github.com/webitel/im-private-chat/internal/handler/marshaller/ws"
)

func dial(t *testing.T, h *handlertest.Harness, userID string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if userID != "" {
		header.Set("X-User-ID", userID)
	}
	c, _, err := websocket.DefaultDialer.Dial(h.WSURL(), header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func read(t *testing.T, c *websocket.Conn) (string, any) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	f, payload, err := wsmarshaller.UnmarshalFrame(data)
	require.NoError(t, err)
	return f.Event, payload
}

func request(t *testing.T, c *websocket.Conn, kind, id string, payload any) {
	t.Helper()
	data, err := wsmarshaller.NewRequest(kind, id, payload)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, data))
}

func connected(t *testing.T, c *websocket.Conn, userID string) {
	t.Helper()
	kind, payload := read(t, c)
	require.Equal(t, "connected", kind)
	p := payload.(*model.ConnectedPayload)
	assert.True(t, p.Ok)
	assert.Equal(t, userID, p.UserID)
	assert.NotEmpty(t, p.ConnectionID)
}

func TestWS_SendDeliversAndEchoes(t *testing.T) {
	h := handlertest.New(t)
	alice := dial(t, h, "alice")
	connected(t, alice, "alice")
	bob := dial(t, h, "bob")
	connected(t, bob, "bob")

	request(t, alice, wsmarshaller.RequestSend, "r-1", &wsmarshaller.SendRequest{RecipientID: "bob", Content: "hello"})

	kind, payload := read(t, bob)
	require.Equal(t, "message_received", kind)
	got := payload.(*model.MessageReceivedPayload)
	assert.Equal(t, "alice", got.SenderID)
	assert.Equal(t, "Alice", got.SenderName)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, model.ContentText, got.ContentType)

	kind, payload = read(t, alice)
	require.Equal(t, "send_echo", kind)
	echo := payload.(*model.SendEchoPayload)
	assert.Equal(t, got.MessageID, echo.MessageID)
	assert.Equal(t, "bob", echo.ReceiverID)

	kind, payload = read(t, alice)
	require.Equal(t, "ack", kind)
	ack := payload.(*model.AckPayload)
	assert.Equal(t, "r-1", ack.RequestID)
	assert.True(t, ack.Ok)
	assert.Equal(t, got.MessageID, ack.MessageID)
}

func TestWS_OfflineRecipientGetsBacklog(t *testing.T) {
	h := handlertest.New(t)
	alice := dial(t, h, "alice")
	connected(t, alice, "alice")

	request(t, alice, wsmarshaller.RequestSend, "r-1", &wsmarshaller.SendRequest{RecipientID: "bob", Content: "later"})

	kind, _ := read(t, alice)
	require.Equal(t, "send_echo", kind)
	kind, payload := read(t, alice)
	require.Equal(t, "ack", kind)
	require.True(t, payload.(*model.AckPayload).Ok)

	entries, err := h.Backlog.GetUnread(t.Context(), "bob")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "later", entries[0].Content)
}

func TestWS_SendValidationFailureAcks(t *testing.T) {
	h := handlertest.New(t)
	alice := dial(t, h, "alice")
	connected(t, alice, "alice")

	request(t, alice, wsmarshaller.RequestSend, "r-1", &wsmarshaller.SendRequest{RecipientID: "bob", Content: "x", ContentType: "video"})

	kind, payload := read(t, alice)
	require.Equal(t, "ack", kind)
	ack := payload.(*model.AckPayload)
	assert.False(t, ack.Ok)
	assert.NotEmpty(t, ack.Error)
}

func TestWS_UnknownUserStaysInert(t *testing.T) {
	h := handlertest.New(t)
	ghost := dial(t, h, "ghost")

	request(t, ghost, wsmarshaller.RequestSend, "r-1", &wsmarshaller.SendRequest{RecipientID: "bob", Content: "hi"})

	kind, payload := read(t, ghost)
	require.Equal(t, "ack", kind)
	assert.False(t, payload.(*model.AckPayload).Ok)
	assert.False(t, h.Hub.IsConnected("ghost"))
}

func TestWS_RegisterConnection(t *testing.T) {
	h := handlertest.New(t)
	c := dial(t, h, "")

	request(t, c, wsmarshaller.RequestRegisterConnection, "r-1", &wsmarshaller.RegisterConnectionRequest{UserID: "carol"})

	connected(t, c, "carol")
	kind, payload := read(t, c)
	require.Equal(t, "ack", kind)
	assert.True(t, payload.(*model.AckPayload).Ok)
	h.WaitOnline(t, "carol")
}

func TestWS_CloseMarksOffline(t *testing.T) {
	h := handlertest.New(t)
	bob := dial(t, h, "bob")
	connected(t, bob, "bob")
	h.WaitOnline(t, "bob")

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	require.NoError(t, bob.Close())

	h.WaitOffline(t, "bob")
}

func TestWS_ReconnectKeepsNewestOnline(t *testing.T) {
	h := handlertest.New(t)
	first := dial(t, h, "bob")
	connected(t, first, "bob")
	second := dial(t, h, "bob")
	connected(t, second, "bob")

	// The displaced transport going away must not evict the newer binding.
	require.NoError(t, first.Close())
	time.Sleep(100 * time.Millisecond)
	assert.True(t, h.Hub.IsConnected("bob"))

	alice := dial(t, h, "alice")
	connected(t, alice, "alice")
	request(t, alice, wsmarshaller.RequestSend, "r-1", &wsmarshaller.SendRequest{RecipientID: "bob", Content: "still there?"})

	kind, _ := read(t, second)
	assert.Equal(t, "message_received", kind)
}
