package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/webitel/im-private-chat/internal/domain/model"
)

type storeWriter interface {
	CreateUser(ctx context.Context, user *model.User) error
	AddFriendship(ctx context.Context, userID, friendID string) error
}

func withStore(c *cli.Context, fn func(ctx context.Context, st storeWriter) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Store.Driver == "memory" {
		return fmt.Errorf("store.driver=memory does not persist; pass -- --store.driver=sqlite3 --store.dsn=<file>")
	}

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	st, err := OpenStore(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(ctx, st)
}
