// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoPlaceholder is returned when a reply is updated but no assistant
	// message is in progress.
	ErrNoPlaceholder = errors.New("no pending assistant message")

	// ErrPlaceholderExists is returned when a second in-progress reply is
	// started.
	ErrPlaceholderExists = errors.New("an assistant message is already pending")
)

// =============================================================================
// CONVERSATION
// =============================================================================

// Conversation is the ordered message sequence of one chat. The pending
// assistant message, when there is one, is always the last element.
type Conversation struct {
	chatID   string
	messages []Message
}

// NewConversation creates an empty conversation for chatID. The id may be
// empty until the chat is first persisted.
func NewConversation(chatID string) *Conversation {
	return &Conversation{chatID: chatID}
}

// LoadConversation creates a conversation from persisted messages.
func LoadConversation(chatID string, msgs []Message) *Conversation {
	c := &Conversation{chatID: chatID, messages: make([]Message, 0, len(msgs))}
	for _, m := range msgs {
		m.Pending = false
		c.messages = append(c.messages, m)
	}
	return c
}

// ChatID returns the owning chat id.
func (c *Conversation) ChatID() string {
	return c.chatID
}

// SetChatID sets the owning chat id and fills it in on messages created
// before the chat existed.
func (c *Conversation) SetChatID(id string) {
	c.chatID = id
	for i := range c.messages {
		if c.messages[i].ChatID == "" {
			c.messages[i].ChatID = id
		}
	}
}

// Append adds a complete message. It fails while a reply is pending, since
// the pending reply must stay last.
func (c *Conversation) Append(msg Message) error {
	if c.pendingIndex() >= 0 {
		return ErrPlaceholderExists
	}
	msg.Pending = false
	if msg.ChatID == "" {
		msg.ChatID = c.chatID
	}
	c.messages = append(c.messages, msg)
	return nil
}

// AppendPlaceholder adds the empty assistant message that streamed deltas
// are written into.
func (c *Conversation) AppendPlaceholder(now time.Time) error {
	if c.pendingIndex() >= 0 {
		return ErrPlaceholderExists
	}
	c.messages = append(c.messages, Message{
		ChatID:    c.chatID,
		Timestamp: now,
		Pending:   true,
	})
	return nil
}

// Pending returns the in-progress assistant message.
func (c *Conversation) Pending() (Message, bool) {
	i := c.pendingIndex()
	if i < 0 {
		return Message{}, false
	}
	return c.messages[i], true
}

// SetPendingContent replaces the content of the pending message in place.
func (c *Conversation) SetPendingContent(content string) error {
	i := c.pendingIndex()
	if i < 0 {
		return ErrNoPlaceholder
	}
	c.messages[i].Content = content
	return nil
}

// Finalize ends the pending reply and returns it.
func (c *Conversation) Finalize() (Message, error) {
	i := c.pendingIndex()
	if i < 0 {
		return Message{}, ErrNoPlaceholder
	}
	c.messages[i].Pending = false
	return c.messages[i], nil
}

// Fail ends the pending reply with an error annotation, keeping whatever
// content arrived. Without a pending reply an error message is appended.
func (c *Conversation) Fail(annotation string) Message {
	i := c.pendingIndex()
	if i < 0 {
		c.messages = append(c.messages, Message{
			ChatID:    c.chatID,
			Timestamp: time.Now(),
			Err:       annotation,
		})
		return c.messages[len(c.messages)-1]
	}
	c.messages[i].Pending = false
	c.messages[i].Err = annotation
	return c.messages[i]
}

// Abandon ends the pending reply after a cancellation. Partial content is
// kept and marked cancelled; an empty placeholder is removed. It reports
// whether a message was kept.
func (c *Conversation) Abandon() (Message, bool) {
	i := c.pendingIndex()
	if i < 0 {
		return Message{}, false
	}
	if c.messages[i].Content == "" {
		c.messages = c.messages[:i]
		return Message{}, false
	}
	c.messages[i].Pending = false
	c.messages[i].Cancelled = true
	return c.messages[i], true
}

// Messages returns a copy of the message sequence.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Last returns the final message.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// pendingIndex returns the index of the pending message or -1. Only the
// last message can be pending.
func (c *Conversation) pendingIndex() int {
	n := len(c.messages)
	if n > 0 && c.messages[n-1].Pending {
		return n - 1
	}
	return -1
}
