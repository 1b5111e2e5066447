package session

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-private-chat/config"
	"github.com/webitel/im-private-chat/internal/scheduler"
)

type countingHeartbeat struct{ n atomic.Int32 }

func (c *countingHeartbeat) Heartbeat(context.Context) error {
	c.n.Add(1)
	return nil
}

func TestHeartbeat_RunsImmediatelyAndRepeats(t *testing.T) {
	api := &countingHeartbeat{}
	s, err := NewHeartbeat(api, config.HeartbeatConfig{
		Interval:       20 * time.Millisecond,
		RetryInterval:  10 * time.Millisecond,
		MaxRetryCount:  3,
		RunImmediately: true,
		AutoStart:      true,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return api.n.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.Equal(t, scheduler.Stopped, s.State())
}

func TestHeartbeat_RejectsBadConfig(t *testing.T) {
	_, err := NewHeartbeat(&countingHeartbeat{}, config.HeartbeatConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, scheduler.ErrInvalidConfig)
}
