package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-private-chat/internal/domain/model"
)

func TestNewShutdownEvent(t *testing.T) {
	ev := NewShutdownEvent("alice")

	assert.Equal(t, Disconnected, ev.GetKind())
	assert.Equal(t, PriorityHigh, ev.GetPriority())
	assert.Equal(t, "alice", ev.GetUserID())
	assert.NotEmpty(t, ev.GetID())

	p, ok := ev.GetPayload().(*model.DisconnectedPayload)
	require.True(t, ok)
	assert.Equal(t, ShutdownCode, p.Code)
	assert.NotEmpty(t, p.Reason)
}
