// Package sqlstore implements store.Store on database/sql for sqlite3 and postgres.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/webitel/im-private-chat/internal/domain/model"
	"github.com/webitel/im-private-chat/internal/store"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var _ store.Store = (*SQLStore)(nil)

type SQLStore struct {
	db         *sql.DB
	driverName string
}

func New(ctx context.Context, driverName, dataSourceName string) (*SQLStore, error) {
	if driverName != DriverSQLite && driverName != DriverPostgres {
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driverName)
	}

	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	if driverName == DriverSQLite {
		// sqlite serializes writers; a single connection also keeps ":memory:" databases shared.
		db.SetMaxOpenConns(1)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: ping: %w", err)
	}

	s := &SQLStore{db: db, driverName: driverName}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'offline',
			last_online BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS friendships (
			user_id TEXT NOT NULL REFERENCES users(id),
			friend_id TEXT NOT NULL REFERENCES users(id),
			PRIMARY KEY (user_id, friend_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender_id TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			content TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT 'text',
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS messages_unread_idx ON messages (recipient_id, is_read, created_at)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("sqlstore: create tables: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driverName != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUniqueViolation reports a primary-key/unique conflict for either driver.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

const messageColumns = "id, sender_id, recipient_id, content, content_type, is_read, created_at"

func (s *SQLStore) InsertMessage(ctx context.Context, msg *model.Message) error {
	query := s.rebind("INSERT INTO messages (" + messageColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)")
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.SenderID, msg.RecipientID, msg.Content, string(msg.ContentType), msg.Read, msg.CreatedAt.UnixMicro())
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateMessage
		}
		return fmt.Errorf("sqlstore: insert message: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*model.Message, error) {
	var (
		msg         model.Message
		contentType string
		createdAt   int64
	)
	if err := row.Scan(&msg.ID, &msg.SenderID, &msg.RecipientID, &msg.Content, &contentType, &msg.Read, &createdAt); err != nil {
		return nil, err
	}
	msg.ContentType = model.ContentType(contentType)
	msg.CreatedAt = time.UnixMicro(createdAt)
	return &msg, nil
}

func (s *SQLStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	query := s.rebind("SELECT " + messageColumns + " FROM messages WHERE id = ?")
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get message: %w", err)
	}
	return msg, nil
}

func (s *SQLStore) queryMessages(ctx context.Context, query string, args ...any) ([]*model.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: query messages: %w", err)
	}
	defer rows.Close()

	res := make([]*model.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan message: %w", err)
		}
		res = append(res, msg)
	}
	return res, rows.Err()
}

func (s *SQLStore) GetUnreadForRecipient(ctx context.Context, recipientID string) ([]*model.Message, error) {
	return s.queryMessages(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE recipient_id = ? AND is_read = ? ORDER BY created_at, id",
		recipientID, false)
}

func (s *SQLStore) GetUnreadForPair(ctx context.Context, recipientID, senderID string) ([]*model.Message, error) {
	return s.queryMessages(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE recipient_id = ? AND sender_id = ? AND is_read = ? ORDER BY created_at, id",
		recipientID, senderID, false)
}

func (s *SQLStore) MarkRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind("UPDATE messages SET is_read = ? WHERE id = ?"), true, id)
	if err != nil {
		return fmt.Errorf("sqlstore: mark read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: mark read: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLStore) MarkReadForPair(ctx context.Context, recipientID, senderID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE messages SET is_read = ? WHERE recipient_id = ? AND sender_id = ? AND is_read = ?"),
		true, recipientID, senderID, false)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: mark read for pair: %w", err)
	}
	return res.RowsAffected()
}
