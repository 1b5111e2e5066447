package bus

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/im-private-chat/internal/adapter/pubsub"
	"go.uber.org/fx"
)

var Module = fx.Module("bus-handler",
	fx.Provide(
		NewMessageHandler,
		NewWatermillRouter,
	),

	fx.Invoke(func(
		lc fx.Lifecycle,
		h *MessageHandler,
		router *message.Router,
		provider *pubsub.Provider,
		wlog watermill.LoggerAdapter,
		logger *slog.Logger,
	) error {
		if !provider.Enabled() {
			logger.Info("BUS_DISABLED")
			return nil
		}
		if err := h.RegisterHandlers(router, provider, wlog); err != nil {
			return err
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return Run(ctx, router, logger)
			},
			OnStop: func(ctx context.Context) error {
				return router.Close()
			},
		})
		return nil
	}),
)
