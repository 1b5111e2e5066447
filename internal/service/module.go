package service

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		// Domain services
		fx.Annotate(
			NewConnectionService,
			fx.As(new(Lifecycle)),
		),
		fx.Annotate(
			NewDeliveryService,
			fx.As(new(Deliverer)),
		),
		fx.Annotate(
			NewBacklogService,
			fx.As(new(Backlogger)),
		),
		fx.Annotate(
			NewDirectoryService,
			fx.As(new(Directory)),
		),
		fx.Annotate(
			NewPeerEnricherService,
			fx.As(new(Enricher)),
		),
	),

	// [DECORATION_LAYER] Intercept Enricher to add cross-cutting concerns
	fx.Decorate(func(orig Enricher, logger *slog.Logger) Enricher {
		return NewEnricherMiddleware(orig, logger)
	}),

	// [GRACEFUL_SHUTDOWN] Flip everyone offline while the store is still open.
	fx.Invoke(func(lc fx.Lifecycle, l Lifecycle) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				l.Shutdown(ctx)
				return nil
			},
		})
	}),
)
