// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"slices"
	"time"

	"github.com/jeranaias/levchat/internal/util"
)

// DefaultNameWidth is the display width chat names are truncated to.
const DefaultNameWidth = 40

// defaultNameLayout formats the timestamp label of a new chat.
const defaultNameLayout = "Chat 2006-01-02 15:04:05"

// Chat is a persisted conversation.
type Chat struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Ref returns the list projection of the chat.
func (c Chat) Ref() ChatRef {
	return ChatRef{ID: c.ID, Name: c.Name}
}

// ChatRef is what the history store returns when listing chats.
type ChatRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EqualRefs reports whether two chat lists are identical, order included.
func EqualRefs(a, b []ChatRef) bool {
	return slices.Equal(a, b)
}

// DefaultChatName is the label a chat gets when it is created.
func DefaultChatName(t time.Time) string {
	return t.Format(defaultNameLayout)
}

// ChatNameFromPrompt derives a chat name from the first user message:
// normalized to a single line and truncated to maxWidth display columns.
// A prompt with no visible text yields the timestamp label.
func ChatNameFromPrompt(prompt string, maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = DefaultNameWidth
	}
	name := util.NormalizeLine(prompt)
	if name == "" {
		return DefaultChatName(time.Now())
	}
	return util.TruncateWidth(name, maxWidth)
}
