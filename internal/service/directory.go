package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/webitel/im-private-chat/internal/domain/model"
	"github.com/webitel/im-private-chat/internal/domain/registry"
	"github.com/webitel/im-private-chat/internal/store"
)

// Friend is a friend's profile plus live presence.
type Friend struct {
	*model.User
	Online bool `json:"online"`
}

// Directory answers profile and presence questions.
type Directory interface {
	Friends(ctx context.Context, userID string) ([]*Friend, error)
	Heartbeat(ctx context.Context, userID string) error
	Online() model.HubStats
}

var _ Directory = (*DirectoryService)(nil)

type DirectoryService struct {
	hub   registry.Hubber
	users store.UserStore
}

func NewDirectoryService(hub registry.Hubber, users store.UserStore) *DirectoryService {
	return &DirectoryService{hub: hub, users: users}
}

func (s *DirectoryService) Friends(ctx context.Context, userID string) ([]*Friend, error) {
	users, err := s.users.ListFriends(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list friends: %w", ErrPersistence, err)
	}

	res := make([]*Friend, 0, len(users))
	for _, u := range users {
		res = append(res, &Friend{User: u, Online: s.hub.IsConnected(u.ID)})
	}
	return res, nil
}

// Heartbeat refreshes the caller's last-online time.
func (s *DirectoryService) Heartbeat(ctx context.Context, userID string) error {
	err := s.users.TouchLastOnline(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if err != nil {
		return fmt.Errorf("%w: touch last online: %w", ErrPersistence, err)
	}
	return nil
}

func (s *DirectoryService) Online() model.HubStats {
	return s.hub.Stats()
}
