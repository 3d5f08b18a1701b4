// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// ROLE
// =============================================================================

// Role names the two kinds of message. No other roles exist.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	if r == RoleUser {
		return "You"
	}
	return "Assistant"
}

// =============================================================================
// MESSAGE
// =============================================================================

// Message is a single entry of a chat.
type Message struct {
	// ID is assigned by the history store; zero until persisted.
	ID        int64     `json:"id,omitempty"`
	ChatID    string    `json:"chat_id"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"is_user"`
	Timestamp time.Time `json:"timestamp"`

	// In-memory state, never persisted
	Pending   bool   `json:"-"` // assistant reply still streaming
	Cancelled bool   `json:"-"` // reply interrupted by the user
	Err       string `json:"-"` // reply ended by an error
}

// NewUserMessage creates a complete user message.
func NewUserMessage(chatID, content string, now time.Time) Message {
	return Message{
		ChatID:    chatID,
		Content:   content,
		IsUser:    true,
		Timestamp: now,
	}
}

// NewAssistantMessage creates a complete assistant message.
func NewAssistantMessage(chatID, content string, now time.Time) Message {
	return Message{
		ChatID:    chatID,
		Content:   content,
		Timestamp: now,
	}
}

// Role returns the message role.
func (m Message) Role() Role {
	if m.IsUser {
		return RoleUser
	}
	return RoleAssistant
}

// Failed reports whether the reply ended with an error.
func (m Message) Failed() bool {
	return m.Err != ""
}

// Display returns the text shown for the message, including the error
// annotation of a failed reply.
func (m Message) Display() string {
	if !m.Failed() {
		return m.Content
	}
	if m.Content == "" {
		return "Error: " + m.Err
	}
	return m.Content + "\n\n[Error: " + m.Err + "]"
}
