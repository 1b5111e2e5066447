// Package store declares the persistence contracts consumed by the delivery core.
package store

import (
	"context"
	"errors"

	"github.com/webitel/im-private-chat/internal/domain/model"
)

var (
	ErrNotFound         = errors.New("store: not found")
	ErrDuplicateMessage = errors.New("store: duplicate message id")
	ErrUserExists       = errors.New("store: user already exists")
)

// MessageStore is the durable record of messages keyed by message id.
// Unread queries return messages ordered by creation time.
type MessageStore interface {
	// InsertMessage returns ErrDuplicateMessage when the id is already taken.
	InsertMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	GetUnreadForRecipient(ctx context.Context, recipientID string) ([]*model.Message, error)
	GetUnreadForPair(ctx context.Context, recipientID, senderID string) ([]*model.Message, error)
	// MarkRead is idempotent; it returns ErrNotFound for an unknown id.
	MarkRead(ctx context.Context, id string) error
	// MarkReadForPair flags every unread message from senderID to recipientID and reports how many changed.
	MarkReadForPair(ctx context.Context, recipientID, senderID string) (int64, error)
}

// UserStore is the companion user-status interface.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	SetUserStatus(ctx context.Context, id string, status model.UserStatus) error
	TouchLastOnline(ctx context.Context, id string) error
	AddFriendship(ctx context.Context, userID, friendID string) error
	ListFriends(ctx context.Context, userID string) ([]*model.User, error)
}

type Store interface {
	MessageStore
	UserStore
	Close() error
}
