package session

import (
	"context"
	"log/slog"

	"github.com/webitel/im-private-chat/config"
	"github.com/webitel/im-private-chat/internal/scheduler"
)

// HeartbeatAPI refreshes the user's last-online time.
type HeartbeatAPI interface {
	Heartbeat(ctx context.Context) error
}

// NewHeartbeat schedules periodic heartbeats with the configured retry policy.
func NewHeartbeat(api HeartbeatAPI, cfg config.HeartbeatConfig, logger *slog.Logger) (*scheduler.Scheduler, error) {
	return scheduler.New("heartbeat", api.Heartbeat, scheduler.Config{
		Interval:       cfg.Interval,
		RetryInterval:  cfg.RetryInterval,
		MaxRetryCount:  cfg.MaxRetryCount,
		RunImmediately: cfg.RunImmediately,
		Timeout:        cfg.Timeout,
		AutoStart:      cfg.AutoStart,
	}, scheduler.WithLogger(logger))
}
