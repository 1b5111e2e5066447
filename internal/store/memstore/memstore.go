// Package memstore is the in-process Store used by tests and the default server profile.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/webitel/im-private-chat/internal/domain/model"
	"github.com/webitel/im-private-chat/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu       sync.RWMutex
	messages map[string]*model.Message
	order    []string // insertion order, tie-breaker for equal timestamps
	users    map[string]*model.User
	friends  map[string]map[string]struct{}
}

func New() *Store {
	return &Store{
		messages: make(map[string]*model.Message),
		users:    make(map[string]*model.User),
		friends:  make(map[string]map[string]struct{}),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) InsertMessage(_ context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[msg.ID]; ok {
		return store.ErrDuplicateMessage
	}
	cp := *msg
	s.messages[msg.ID] = &cp
	s.order = append(s.order, msg.ID)
	return nil
}

func (s *Store) GetMessage(_ context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (s *Store) GetUnreadForRecipient(_ context.Context, recipientID string) ([]*model.Message, error) {
	return s.collect(func(m *model.Message) bool {
		return !m.Read && m.RecipientID == recipientID
	}), nil
}

func (s *Store) GetUnreadForPair(_ context.Context, recipientID, senderID string) ([]*model.Message, error) {
	return s.collect(func(m *model.Message) bool {
		return !m.Read && m.RecipientID == recipientID && m.SenderID == senderID
	}), nil
}

func (s *Store) collect(match func(*model.Message) bool) []*model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*model.Message, 0)
	for _, id := range s.order {
		if m := s.messages[id]; match(m) {
			cp := *m
			res = append(res, &cp)
		}
	}
	slices.SortStableFunc(res, func(a, b *model.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return res
}

func (s *Store) MarkRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	msg.Read = true
	return nil
}

func (s *Store) MarkReadForPair(_ context.Context, recipientID, senderID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, m := range s.messages {
		if !m.Read && m.RecipientID == recipientID && m.SenderID == senderID {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return store.ErrUserExists
	}
	cp := *user
	if cp.Status == "" {
		cp.Status = model.StatusOffline
	}
	s.users[user.ID] = &cp
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) SetUserStatus(_ context.Context, id string, status model.UserStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Status = status
	if status == model.StatusOnline {
		u.LastOnline = time.Now()
	}
	return nil
}

func (s *Store) TouchLastOnline(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.LastOnline = time.Now()
	return nil
}

func (s *Store) AddFriendship(_ context.Context, userID, friendID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.users[friendID]; !ok {
		return store.ErrNotFound
	}
	s.link(userID, friendID)
	s.link(friendID, userID)
	return nil
}

func (s *Store) link(a, b string) {
	set, ok := s.friends[a]
	if !ok {
		set = make(map[string]struct{})
		s.friends[a] = set
	}
	set[b] = struct{}{}
}

func (s *Store) ListFriends(_ context.Context, userID string) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*model.User, 0, len(s.friends[userID]))
	for id := range s.friends[userID] {
		if u, ok := s.users[id]; ok {
			cp := *u
			res = append(res, &cp)
		}
	}
	slices.SortFunc(res, func(a, b *model.User) int {
		return strings.Compare(a.DisplayName(), b.DisplayName())
	})
	return res, nil
}
