package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/webitel/im-private-chat/config"
	"github.com/webitel/im-private-chat/internal/domain/model"
	"github.com/webitel/im-private-chat/internal/store"
	"golang.org/x/sync/errgroup"
)

// Enricher resolves display info (name, avatar) for user ids.
type Enricher interface {
	// ResolveUser returns ErrUnknownUser for ids with no account.
	ResolveUser(ctx context.Context, id string) (*model.User, error)
	// ResolveUsers resolves many ids concurrently. Unknown ids are left out of the result.
	ResolveUsers(ctx context.Context, ids []string) (map[string]*model.User, error)
	// Invalidate drops a cached profile so the next lookup hits the store.
	Invalidate(id string)
}

var _ Enricher = (*PeerEnricher)(nil)

type PeerEnricher struct {
	users store.UserStore
	cache *expirable.LRU[string, model.User]
}

// NewPeerEnricherService provides a thread-safe resolver with an expiring LRU cache.
func NewPeerEnricherService(users store.UserStore, cfg *config.Config) *PeerEnricher {
	return newPeerEnricher(users, cfg.Enricher.CacheSize, cfg.Enricher.CacheTTL)
}

func newPeerEnricher(users store.UserStore, size int, ttl time.Duration) *PeerEnricher {
	if size <= 0 {
		size = 10000
	}
	return &PeerEnricher{
		users: users,
		cache: expirable.NewLRU[string, model.User](size, nil, ttl),
	}
}

func (e *PeerEnricher) ResolveUser(ctx context.Context, id string) (*model.User, error) {
	// [HOT_PATH] Check cache first
	if cached, ok := e.cache.Get(id); ok {
		return &cached, nil
	}

	u, err := e.users.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get user %s: %v", ErrPersistence, id, err)
	}

	e.cache.Add(id, *u)
	return u, nil
}

// ResolveUsers fans lookups out with errgroup; any store failure fails the batch.
func (e *PeerEnricher) ResolveUsers(ctx context.Context, ids []string) (map[string]*model.User, error) {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	var mu sync.Mutex
	res := make(map[string]*model.User, len(ids))
	seen := make(map[string]struct{}, len(ids))

	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		g.Go(func() error {
			u, err := e.ResolveUser(gCtx, id)
			if errors.Is(err, ErrUnknownUser) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			res[id] = u
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("parallel enrichment failed: %w", err)
	}
	return res, nil
}

func (e *PeerEnricher) Invalidate(id string) {
	e.cache.Remove(id)
}
