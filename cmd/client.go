package cmd

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/webitel/im-private-chat/config"
	"github.com/webitel/im-private-chat/internal/client/api"
	"github.com/webitel/im-private-chat/internal/client/push"
	"github.com/webitel/im-private-chat/internal/client/session"
	"github.com/webitel/im-private-chat/internal/client/tui"
	"github.com/webitel/im-private-chat/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

func runClient(ctx context.Context, cfg *config.Config) error {
	logFile, err := os.OpenFile(cfg.Client.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()

	logger, err := newLogger(cfg, logFile)
	if err != nil {
		return err
	}
	logger = logger.With("user_id", cfg.Client.UserID)

	rest, err := api.NewFromConfig(cfg, logger)
	if err != nil {
		return err
	}

	shell := tui.New(cfg.Client.UserID, logger)
	mgr := session.New(cfg.Client.UserID, rest, shell, logger)

	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.Go(func() error {
		mgr.Run(ctx)
		return nil
	})

	heartbeat, err := session.NewHeartbeat(rest, cfg.Client.Heartbeat, logger)
	if err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	defer func() { _ = heartbeat.Stop() }()

	link := &pushLink{cfg: cfg, mgr: mgr, logger: logger, runCtx: ctx}
	supervisor, err := scheduler.New("push", link.ensure, scheduler.Config{
		Interval:       5 * time.Second,
		RetryInterval:  2 * time.Second,
		MaxRetryCount:  3,
		RunImmediately: true,
		Timeout:        cfg.Client.Timeout,
		AutoStart:      true,
	}, scheduler.WithLogger(logger))
	if err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	defer func() { _ = supervisor.Stop() }()
	defer link.close()

	g.Go(func() error {
		defer cancel()
		return shell.Run(ctx, mgr)
	})

	return g.Wait()
}

// pushLink keeps one live push channel attached to the session manager and the
// backlog synced against it.
type pushLink struct {
	cfg    *config.Config
	mgr    *session.Manager
	logger *slog.Logger
	runCtx context.Context

	mu     sync.Mutex
	cur    *push.Client
	synced bool // backlog fetched since cur was dialled
}

func (l *pushLink) alive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur == nil {
		return false
	}
	select {
	case <-l.cur.Done():
		return false
	default:
		return true
	}
}

func (l *pushLink) isSynced() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.synced
}

// ensure dials when the channel is gone and resyncs the backlog, which covers
// everything that arrived while offline. A failed sync is retried on the next run
// over the same channel.
func (l *pushLink) ensure(ctx context.Context) error {
	if !l.alive() {
		if err := l.dial(ctx); err != nil {
			return err
		}
	}
	if l.isSynced() {
		return nil
	}

	if err := l.mgr.Sync(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	l.synced = true
	l.mu.Unlock()
	l.logger.Info("PUSH_LINK_READY")
	return nil
}

func (l *pushLink) dial(ctx context.Context) error {
	l.mgr.Attach(nil)

	p, err := push.Dial(ctx, l.cfg.Client.ServerURL, l.cfg.Client.UserID, l.logger)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.cur = p
	l.synced = false
	l.mu.Unlock()

	l.mgr.Attach(p)
	go l.mgr.Consume(l.runCtx, p.Events())
	return nil
}

func (l *pushLink) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur != nil {
		_ = l.cur.Close()
	}
}
