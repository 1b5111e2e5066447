package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/webitel/im-private-chat/internal/domain/model"
)

// EnricherMiddleware implements [DECORATOR_PATTERN] to add observability
// to the enrichment process without touching business logic.
type EnricherMiddleware struct {
	Next   Enricher
	Logger *slog.Logger
}

// NewEnricherMiddleware creates a new logging decorator for the Enricher.
func NewEnricherMiddleware(next Enricher, logger *slog.Logger) Enricher {
	return &EnricherMiddleware{
		Next:   next,
		Logger: logger,
	}
}

func (m *EnricherMiddleware) ResolveUser(ctx context.Context, id string) (*model.User, error) {
	start := time.Now()

	res, err := m.Next.ResolveUser(ctx, id)
	if err != nil {
		m.Logger.Warn("PEER_ENRICHMENT_FAILED",
			"user_id", id,
			"err", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return res, err
}

func (m *EnricherMiddleware) ResolveUsers(ctx context.Context, ids []string) (map[string]*model.User, error) {
	start := time.Now()

	res, err := m.Next.ResolveUsers(ctx, ids)

	duration := time.Since(start)
	if err != nil {
		m.Logger.Error("PEER_ENRICHMENT_BATCH_FAILED",
			"err", err,
			"batch_size", len(ids),
			"duration_ms", duration.Milliseconds(),
		)
	} else {
		m.Logger.Debug("PEER_ENRICHMENT_BATCH_COMPLETED",
			"batch_size", len(ids),
			"resolved", len(res),
			"duration_ms", duration.Milliseconds(),
		)
	}

	return res, err
}

func (m *EnricherMiddleware) Invalidate(id string) {
	m.Logger.Debug("PEER_CACHE_INVALIDATED", "user_id", id)
	m.Next.Invalidate(id)
}
