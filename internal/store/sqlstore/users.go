package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/webitel/im-private-chat/internal/domain/model"
	"github.com/webitel/im-private-chat/internal/store"
)

const userColumns = "id, name, avatar_url, status, last_online"

func (s *SQLStore) CreateUser(ctx context.Context, user *model.User) error {
	status := user.Status
	if status == "" {
		status = model.StatusOffline
	}
	var lastOnline int64
	if !user.LastOnline.IsZero() {
		lastOnline = user.LastOnline.UnixMicro()
	}

	query := s.rebind("INSERT INTO users (" + userColumns + ") VALUES (?, ?, ?, ?, ?)")
	if _, err := s.db.ExecContext(ctx, query, user.ID, user.Name, user.AvatarURL, string(status), lastOnline); err != nil {
		if isUniqueViolation(err) {
			return store.ErrUserExists
		}
		return fmt.Errorf("sqlstore: create user: %w", err)
	}
	return nil
}

func scanUser(row scanner) (*model.User, error) {
	var (
		u          model.User
		status     string
		lastOnline int64
	)
	if err := row.Scan(&u.ID, &u.Name, &u.AvatarURL, &status, &lastOnline); err != nil {
		return nil, err
	}
	u.Status = model.UserStatus(status)
	if lastOnline > 0 {
		u.LastOnline = time.UnixMicro(lastOnline)
	}
	return &u, nil
}

func (s *SQLStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	query := s.rebind("SELECT " + userColumns + " FROM users WHERE id = ?")
	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get user: %w", err)
	}
	return u, nil
}

func (s *SQLStore) SetUserStatus(ctx context.Context, id string, status model.UserStatus) error {
	query := "UPDATE users SET status = ? WHERE id = ?"
	args := []any{string(status), id}
	if status == model.StatusOnline {
		query = "UPDATE users SET status = ?, last_online = ? WHERE id = ?"
		args = []any{string(status), time.Now().UnixMicro(), id}
	}
	return s.updateUser(ctx, "set user status", query, args...)
}

func (s *SQLStore) TouchLastOnline(ctx context.Context, id string) error {
	return s.updateUser(ctx, "touch last online", "UPDATE users SET last_online = ? WHERE id = ?", time.Now().UnixMicro(), id)
}

func (s *SQLStore) updateUser(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("sqlstore: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: %s: %w", op, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AddFriendship links both users in both directions. Re-adding is a no-op.
func (s *SQLStore) AddFriendship(ctx context.Context, userID, friendID string) error {
	for _, id := range []string{userID, friendID} {
		if _, err := s.GetUser(ctx, id); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: add friendship: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := s.rebind("INSERT INTO friendships (user_id, friend_id) VALUES (?, ?) ON CONFLICT DO NOTHING")
	for _, pair := range [][2]string{{userID, friendID}, {friendID, userID}} {
		if _, err := tx.ExecContext(ctx, query, pair[0], pair[1]); err != nil {
			return fmt.Errorf("sqlstore: add friendship: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) ListFriends(ctx context.Context, userID string) ([]*model.User, error) {
	query := s.rebind(`SELECT u.id, u.name, u.avatar_url, u.status, u.last_online
		FROM friendships f JOIN users u ON u.id = f.friend_id
		WHERE f.user_id = ?
		ORDER BY u.name, u.id`)
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list friends: %w", err)
	}
	defer rows.Close()

	res := make([]*model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan user: %w", err)
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
