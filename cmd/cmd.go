package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/webitel/im-private-chat/config"
	"github.com/webitel/im-private-chat/internal/domain/model"
)

const (
	ServiceName      = "im-private-chat"
	ServiceNamespace = "webitel"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	app := &cli.App{
		Name:    ServiceName,
		Usage:   "Presence-aware private chat: delivery server and terminal client",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config_file",
				Usage:   "Path to the configuration file",
				EnvVars: []string{"IM_CONFIG_FILE"},
			},
		},
		Commands: []*cli.Command{
			serverCmd(),
			clientCmd(),
			userCmd(),
			versionCmd(),
		},
	}

	return app.Run(os.Args)
}

// loadConfig reads the file named by --config_file; anything after "--" is treated as --key=value overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config_file"), c.Args().Slice())
	if err != nil {
		return nil, err
	}
	cfg.Service.Version = version
	return cfg, nil
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the delivery server (REST + websocket push)",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			app := NewApp(cfg)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("Shutting down...")
			return app.Stop(context.Background())
		},
	}
}

func clientCmd() *cli.Command {
	return &cli.Command{
		Name:    "client",
		Aliases: []string{"c"},
		Usage:   "Run the terminal chat client",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if cfg.Client.UserID == "" {
				return errors.New("client.user_id is required (-- --client.user_id=<id>)")
			}

			ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runClient(ctx, cfg)
		},
	}
}

func userCmd() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage chat accounts in the configured store",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create an account",
				ArgsUsage: "[-- --store.driver=... --store.dsn=...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "avatar"},
				},
				Action: func(c *cli.Context) error {
					return withStore(c, func(ctx context.Context, st storeWriter) error {
						return st.CreateUser(ctx, &model.User{
							ID:        c.String("id"),
							Name:      c.String("name"),
							AvatarURL: c.String("avatar"),
							Status:    model.StatusOffline,
						})
					})
				},
			},
			{
				Name:  "befriend",
				Usage: "Make two accounts friends",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true},
					&cli.StringFlag{Name: "friend", Required: true},
				},
				Action: func(c *cli.Context) error {
					return withStore(c, func(ctx context.Context, st storeWriter) error {
						return st.AddFriendship(ctx, c.String("user"), c.String("friend"))
					})
				},
			},
		},
	}
}

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			_, err := c.App.Writer.Write([]byte(
				"version: " + version + "\ncommit: " + commit + "\ncommit date: " + commitDate +
					"\nbranch: " + branch + "\nbuilt: " + buildTimestamp + "\n"))
			return err
		},
	}
}
