// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"errors"

	"github.com/jeranaias/levchat/internal/model"
)

// =============================================================================
// STORE CONTRACT
// =============================================================================

// Store persists chats and their messages. Implementations must be safe for
// concurrent use.
type Store interface {
	// CreateChat creates a chat and returns its id.
	CreateChat(ctx context.Context, name string) (string, error)

	// RenameChat changes the name of a chat.
	RenameChat(ctx context.Context, id, name string) error

	// ListChats returns every chat in creation order.
	ListChats(ctx context.Context) ([]model.ChatRef, error)

	// DeleteChat removes a chat and all of its messages.
	DeleteChat(ctx context.Context, id string) error

	// AppendMessage stores a message and returns its id. The chat must exist.
	AppendMessage(ctx context.Context, chatID string, msg model.Message) (int64, error)

	// LoadMessages returns the messages of a chat in insertion order.
	LoadMessages(ctx context.Context, chatID string) ([]model.Message, error)

	// Close releases the store.
	Close() error
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrChatNotFound is returned when a chat id does not exist.
var ErrChatNotFound = errors.New("chat not found")

// PersistenceError wraps every failure returned by a store.
type PersistenceError struct {
	Op     string
	ChatID string
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.ChatID != "" {
		return "history " + e.Op + " (chat " + e.ChatID + "): " + e.Err.Error()
	}
	return "history " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func opError(op, chatID string, err error) error {
	if err == nil {
		return nil
	}
	var perr *PersistenceError
	if errors.As(err, &perr) {
		return err
	}
	return &PersistenceError{Op: op, ChatID: chatID, Err: err}
}
