package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/webitel/im-private-chat/internal/adapter/pubsub"
	"github.com/webitel/im-private-chat/internal/domain/event"
	"github.com/webitel/im-private-chat/internal/service"
)

const PoisonTopic = "im_chat.consumer.poison.v1"

type MessageHandler struct {
	logger   *slog.Logger
	enricher service.Enricher
}

func NewMessageHandler(logger *slog.Logger, enricher service.Enricher) *MessageHandler {
	return &MessageHandler{logger: logger, enricher: enricher}
}

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{CloseTimeout: 5 * time.Second}, logger)
}

// [REGISTRATION_PIPELINE]
func (h *MessageHandler) RegisterHandlers(router *message.Router, provider *pubsub.Provider, wlog watermill.LoggerAdapter) error {
	poison, err := middleware.PoisonQueue(provider.Publisher, PoisonTopic)
	if err != nil {
		return fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	configs := []struct {
		name    string
		topic   string
		handler message.NoPublishHandlerFunc
	}{
		{"ON_USER_STATUS", event.TopicUserStatus, Bind(h, h.OnUserStatusChanged)},
	}

	for _, c := range configs {
		router.AddConsumerHandler(c.name, c.topic, provider.Subscriber, c.handler).AddMiddleware(
			TraceIDMiddleware,
			LoggingMiddleware(h.logger),
			poison,
			NewRetryMiddleware(wlog).Middleware,
			middleware.Recoverer,
			middleware.NewThrottle(100, time.Second).Middleware,
			middleware.Timeout(10*time.Second),
		)
	}

	h.logger.Info("BUS_PIPELINE_READY", "driver", provider.Driver, "handlers", len(configs))
	return nil
}

// Run starts the router and blocks until it is running or ctx ends.
func Run(ctx context.Context, router *message.Router, logger *slog.Logger) error {
	go func() {
		if err := router.Run(context.Background()); err != nil {
			logger.Error("BUS_ROUTER_STOPPED", "err", err)
		}
	}()

	select {
	case <-router.Running():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
