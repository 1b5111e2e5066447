package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/webitel/im-private-chat/config"
	"github.com/webitel/im-private-chat/internal/adapter/pubsub"
	"github.com/webitel/im-private-chat/internal/service"
	"github.com/webitel/im-private-chat/internal/store"
	"github.com/webitel/im-private-chat/internal/store/memstore"
	"github.com/webitel/im-private-chat/internal/store/sqlstore"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

// ProvideLogger builds the process logger. The level follows config file reloads.
func ProvideLogger(cfg *config.Config) (*slog.Logger, error) {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	level := new(slog.LevelVar)
	level.Set(lvl)

	cfg.OnChange(func(next *config.Config) {
		if l, err := config.ParseLevel(next.Log.Level); err == nil && l != level.Level() {
			level.Set(l)
			slog.Info("LOG_LEVEL_CHANGED", "level", l.String())
		}
	})

	var h slog.Handler
	switch cfg.Log.Format {
	case "text":
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case "otel":
		h = &levelHandler{Handler: otelslog.NewHandler(cfg.Service.Name), level: level}
	default:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(h).With("service", cfg.Service.Name, "version", version)
	slog.SetDefault(logger)
	return logger, nil
}

// levelHandler applies a dynamic level to handlers that have no level option of their own.
type levelHandler struct {
	slog.Handler
	level slog.Leveler
}

func (h *levelHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level.Level() && h.Handler.Enabled(ctx, l)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{Handler: h.Handler.WithAttrs(attrs), level: h.level}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{Handler: h.Handler.WithGroup(name), level: h.level}
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger.With("component", "watermill"))
}

// ProvideTracer installs the global tracer provider and hands out the service tracer.
func ProvideTracer(lc fx.Lifecycle, cfg *config.Config) trace.Tracer {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.Service.Name),
			attribute.String("service.namespace", ServiceNamespace),
			attribute.String("service.version", version),
		)),
	)
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: tp.Shutdown,
	})
	return tp.Tracer(cfg.Service.Name)
}

// ProvidePublisher exposes the bus dispatcher to the service layer.
func ProvidePublisher(d pubsub.EventDispatcher) service.Publisher {
	return d
}

// OpenStore selects the store implementation for the configured driver.
func OpenStore(ctx context.Context, driver, dsn string) (store.Store, error) {
	switch driver {
	case "memory":
		return memstore.New(), nil
	case sqlstore.DriverSQLite, sqlstore.DriverPostgres:
		return sqlstore.New(ctx, driver, dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}
