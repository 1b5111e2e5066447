package cmd

import (
	"log/slog"

	"github.com/webitel/im-private-chat/config"
	httpsrv "github.com/webitel/im-private-chat/infra/server/http"
	"github.com/webitel/im-private-chat/internal/adapter/pubsub"
	"github.com/webitel/im-private-chat/internal/domain/registry"
	"github.com/webitel/im-private-chat/internal/handler/bus"
	httphandler "github.com/webitel/im-private-chat/internal/handler/http"
	"github.com/webitel/im-private-chat/internal/handler/ws"
	"github.com/webitel/im-private-chat/internal/service"
	"github.com/webitel/im-private-chat/internal/store"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logger}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		serverOptions(cfg),
	)
}

func serverOptions(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
			ProvideTracer,
			ProvidePublisher,
		),
		store.NewModule(OpenStore),
		pubsub.Module,
		registry.Module,
		service.Module,
		httpsrv.Module,
		httphandler.Module,
		ws.Module,
		bus.Module,
	)
}
