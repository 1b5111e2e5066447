package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/webitel/im-private-chat/internal/domain/model"
	"github.com/webitel/im-private-chat/internal/store"
)

// BacklogEntry is an unread message with its sender's display info.
type BacklogEntry struct {
	*model.Message
	SenderName   string `json:"sender_name"`
	SenderAvatar string `json:"sender_avatar,omitempty"`
}

// Backlogger serves the unread backlog and its read markers.
type Backlogger interface {
	GetUnread(ctx context.Context, userID string) ([]*BacklogEntry, error)
	GetUnreadForPair(ctx context.Context, userID, friendID string) ([]*BacklogEntry, error)
	// MarkRead is idempotent. Only the recipient may mark a message read.
	MarkRead(ctx context.Context, userID, messageID string) error
	MarkReadForPair(ctx context.Context, userID, friendID string) (int64, error)
}

var _ Backlogger = (*BacklogService)(nil)

type BacklogService struct {
	messages store.MessageStore
	enricher Enricher
	logger   *slog.Logger
}

func NewBacklogService(messages store.MessageStore, enricher Enricher, logger *slog.Logger) *BacklogService {
	return &BacklogService{
		messages: messages,
		enricher: enricher,
		logger:   logger,
	}
}

func (s *BacklogService) GetUnread(ctx context.Context, userID string) ([]*BacklogEntry, error) {
	msgs, err := s.messages.GetUnreadForRecipient(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: unread for %s: %w", ErrPersistence, userID, err)
	}
	return s.enrich(ctx, msgs), nil
}

func (s *BacklogService) GetUnreadForPair(ctx context.Context, userID, friendID string) ([]*BacklogEntry, error) {
	msgs, err := s.messages.GetUnreadForPair(ctx, userID, friendID)
	if err != nil {
		return nil, fmt.Errorf("%w: unread for pair %s/%s: %w", ErrPersistence, userID, friendID, err)
	}
	return s.enrich(ctx, msgs), nil
}

// enrich attaches sender display info. Lookup failures degrade to bare ids.
func (s *BacklogService) enrich(ctx context.Context, msgs []*model.Message) []*BacklogEntry {
	senders := make([]string, 0, len(msgs))
	for _, m := range msgs {
		senders = append(senders, m.SenderID)
	}

	profiles, _ := s.enricher.ResolveUsers(ctx, senders)

	res := make([]*BacklogEntry, 0, len(msgs))
	for _, m := range msgs {
		entry := &BacklogEntry{Message: m, SenderName: m.SenderID}
		if u, ok := profiles[m.SenderID]; ok {
			entry.SenderName = u.DisplayName()
			entry.SenderAvatar = u.AvatarURL
		}
		res = append(res, entry)
	}
	return res
}

func (s *BacklogService) MarkRead(ctx context.Context, userID, messageID string) error {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	if err != nil {
		return fmt.Errorf("%w: get message: %w", ErrPersistence, err)
	}
	if msg.RecipientID != userID {
		return fmt.Errorf("%w: message %s is not addressed to %s", ErrForbidden, messageID, userID)
	}
	if msg.Read {
		return nil
	}

	if err := s.messages.MarkRead(ctx, messageID); err != nil {
		return fmt.Errorf("%w: mark read: %w", ErrPersistence, err)
	}
	s.logger.Debug("MESSAGE_MARKED_READ", "message_id", messageID, "user_id", userID)
	return nil
}

func (s *BacklogService) MarkReadForPair(ctx context.Context, userID, friendID string) (int64, error) {
	n, err := s.messages.MarkReadForPair(ctx, userID, friendID)
	if err != nil {
		return 0, fmt.Errorf("%w: mark read for pair: %w", ErrPersistence, err)
	}
	s.logger.Debug("PAIR_MARKED_READ", "user_id", userID, "friend_id", friendID, "count", n)
	return n, nil
}
