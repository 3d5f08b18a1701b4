// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/levchat/internal/model"
)

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating when missing) the database at path and
// initializes the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, opError("open", "", errors.New("database path is empty"))
	}

	// Create database directory if needed
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, opError("open", "", fmt.Errorf("failed to create database directory: %w", err))
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, opError("open", "", fmt.Errorf("failed to open database: %w", err))
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, opError("open", "", fmt.Errorf("failed to set pragma: %w", err))
		}
	}

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, opError("open", "", fmt.Errorf("failed to initialize schema: %w", err))
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// CreateChat implements Store.
func (s *SQLiteStore) CreateChat(ctx context.Context, name string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chats (id, name, created_at) VALUES (?, ?, ?)",
		id, name, time.Now().UnixMilli())
	if err != nil {
		return "", opError("create chat", "", err)
	}
	return id, nil
}

// RenameChat implements Store.
func (s *SQLiteStore) RenameChat(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE chats SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return opError("rename chat", id, err)
	}
	return opError("rename chat", id, requireRow(res))
}

// ListChats implements Store.
func (s *SQLiteStore) ListChats(ctx context.Context) ([]model.ChatRef, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM chats ORDER BY created_at ASC, rowid ASC")
	if err != nil {
		return nil, opError("list chats", "", err)
	}
	defer rows.Close()

	var chats []model.ChatRef
	for rows.Next() {
		var ref model.ChatRef
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, opError("list chats", "", err)
		}
		chats = append(chats, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, opError("list chats", "", err)
	}
	return chats, nil
}

// GetChat returns a single chat with its creation time.
func (s *SQLiteStore) GetChat(ctx context.Context, id string) (model.Chat, error) {
	var chat model.Chat
	var created int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM chats WHERE id = ?", id).
		Scan(&chat.ID, &chat.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Chat{}, opError("get chat", id, ErrChatNotFound)
	}
	if err != nil {
		return model.Chat{}, opError("get chat", id, err)
	}
	chat.CreatedAt = time.UnixMilli(created)
	return chat, nil
}

// DeleteChat implements Store. Messages are removed explicitly in the same
// transaction so the result does not depend on the foreign_keys pragma.
func (s *SQLiteStore) DeleteChat(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return opError("delete chat", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE chat_id = ?", id); err != nil {
		return opError("delete chat", id, fmt.Errorf("failed to delete messages: %w", err))
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", id)
	if err != nil {
		return opError("delete chat", id, err)
	}
	if err := requireRow(res); err != nil {
		return opError("delete chat", id, err)
	}
	return opError("delete chat", id, tx.Commit())
}

// AppendMessage implements Store.
func (s *SQLiteStore) AppendMessage(ctx context.Context, chatID string, msg model.Message) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, opError("append message", chatID, err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM chats WHERE id = ?", chatID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, opError("append message", chatID, ErrChatNotFound)
	}
	if err != nil {
		return 0, opError("append message", chatID, err)
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO messages (chat_id, content, is_user, timestamp) VALUES (?, ?, ?, ?)",
		chatID, msg.Content, boolToInt(msg.IsUser), ts.UnixMilli())
	if err != nil {
		return 0, opError("append message", chatID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, opError("append message", chatID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, opError("append message", chatID, err)
	}
	return id, nil
}

// LoadMessages implements Store.
func (s *SQLiteStore) LoadMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content, is_user, timestamp FROM messages WHERE chat_id = ? ORDER BY id ASC",
		chatID)
	if err != nil {
		return nil, opError("load messages", chatID, err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var (
			msg    model.Message
			isUser int
			ts     int64
		)
		if err := rows.Scan(&msg.ID, &msg.Content, &isUser, &ts); err != nil {
			return nil, opError("load messages", chatID, err)
		}
		msg.ChatID = chatID
		msg.IsUser = isUser != 0
		msg.Timestamp = time.UnixMilli(ts)
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, opError("load messages", chatID, err)
	}
	return msgs, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrChatNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
