package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/webitel/im-private-chat/config"
	"go.uber.org/fx"
)

// Opener builds a Store for a configured driver. Kept as a seam so the
// store package does not import its own implementations.
type Opener func(ctx context.Context, driver, dsn string) (Store, error)

// NewModule provides Store plus its MessageStore/UserStore facets and closes it on stop.
func NewModule(open Opener) fx.Option {
	return fx.Module("store",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (Store, error) {
				s, err := open(context.Background(), cfg.Store.Driver, cfg.Store.DSN)
				if err != nil {
					return nil, fmt.Errorf("open store %q: %w", cfg.Store.Driver, err)
				}
				logger.Info("STORE_OPENED", "driver", cfg.Store.Driver)
				lc.Append(fx.Hook{
					OnStop: func(ctx context.Context) error {
						return s.Close()
					},
				})
				return s, nil
			},
			func(s Store) MessageStore { return s },
			func(s Store) UserStore { return s },
		),
	)
}
