// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_Role(t *testing.T) {
	user := NewUserMessage("c1", "hi", testTime)
	assert.Equal(t, RoleUser, user.Role())
	assert.Equal(t, "You", user.Role().DisplayName())

	reply := NewAssistantMessage("c1", "hello", testTime)
	assert.Equal(t, RoleAssistant, reply.Role())
	assert.Equal(t, "Assistant", reply.Role().DisplayName())
}

func TestMessage_Display(t *testing.T) {
	assert.Equal(t, "ok", Message{Content: "ok"}.Display())
	assert.Equal(t, "Error: refused", Message{Err: "refused"}.Display())
	assert.Equal(t, "Hi\n\n[Error: reset]", Message{Content: "Hi", Err: "reset"}.Display())
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_PlaceholderLifecycle(t *testing.T) {
	conv := NewConversation("c1")
	require.NoError(t, conv.Append(NewUserMessage("", "Hello", testTime)))
	require.NoError(t, conv.AppendPlaceholder(testTime))

	pending, ok := conv.Pending()
	require.True(t, ok)
	assert.Equal(t, "c1", pending.ChatID)
	assert.Empty(t, pending.Content)

	require.NoError(t, conv.SetPendingContent("Hi"))
	require.NoError(t, conv.SetPendingContent("Hi there"))

	final, err := conv.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "Hi there", final.Content)
	assert.False(t, final.Pending)
	assert.False(t, final.IsUser)

	_, ok = conv.Pending()
	assert.False(t, ok)
	assert.Equal(t, 2, conv.Len())
}

func TestConversation_SinglePlaceholder(t *testing.T) {
	conv := NewConversation("c1")
	require.NoError(t, conv.AppendPlaceholder(testTime))

	assert.ErrorIs(t, conv.AppendPlaceholder(testTime), ErrPlaceholderExists)
	assert.ErrorIs(t, conv.Append(NewUserMessage("c1", "x", testTime)), ErrPlaceholderExists)
	assert.Equal(t, 1, conv.Len())
}

func TestConversation_NoPlaceholder(t *testing.T) {
	conv := NewConversation("c1")

	assert.ErrorIs(t, conv.SetPendingContent("x"), ErrNoPlaceholder)
	_, err := conv.Finalize()
	assert.ErrorIs(t, err, ErrNoPlaceholder)
}

func TestConversation_Fail(t *testing.T) {
	t.Run("keeps partial content", func(t *testing.T) {
		conv := NewConversation("c1")
		require.NoError(t, conv.AppendPlaceholder(testTime))
		require.NoError(t, conv.SetPendingContent("Hi"))

		msg := conv.Fail("connection reset")
		assert.Equal(t, "Hi", msg.Content)
		assert.True(t, msg.Failed())
		assert.Equal(t, 1, conv.Len())
	})

	t.Run("appends annotation without placeholder", func(t *testing.T) {
		conv := NewConversation("c1")
		msg := conv.Fail("server not running")
		assert.Equal(t, "server not running", msg.Err)
		assert.Equal(t, 1, conv.Len())
	})
}

func TestConversation_Abandon(t *testing.T) {
	t.Run("partial content is kept as cancelled", func(t *testing.T) {
		conv := NewConversation("c1")
		require.NoError(t, conv.AppendPlaceholder(testTime))
		require.NoError(t, conv.SetPendingContent("Hi"))

		msg, kept := conv.Abandon()
		require.True(t, kept)
		assert.True(t, msg.Cancelled)
		assert.False(t, msg.Pending)
	})

	t.Run("empty placeholder is removed", func(t *testing.T) {
		conv := NewConversation("c1")
		require.NoError(t, conv.Append(NewUserMessage("c1", "q", testTime)))
		require.NoError(t, conv.AppendPlaceholder(testTime))

		_, kept := conv.Abandon()
		assert.False(t, kept)
		assert.Equal(t, 1, conv.Len())
	})
}

func TestConversation_SetChatID(t *testing.T) {
	conv := NewConversation("")
	require.NoError(t, conv.Append(NewUserMessage("", "first", testTime)))
	require.NoError(t, conv.Append(NewUserMessage("other", "second", testTime)))

	conv.SetChatID("c9")
	msgs := conv.Messages()
	assert.Equal(t, "c9", msgs[0].ChatID)
	assert.Equal(t, "other", msgs[1].ChatID)
	assert.Equal(t, "c9", conv.ChatID())
}

func TestConversation_MessagesIsCopy(t *testing.T) {
	conv := LoadConversation("c1", []Message{NewUserMessage("c1", "a", testTime)})
	msgs := conv.Messages()
	msgs[0].Content = "changed"

	last, ok := conv.Last()
	require.True(t, ok)
	assert.Equal(t, "a", last.Content)
}

// =============================================================================
// CHAT NAMING TESTS
// =============================================================================

func TestDefaultChatName(t *testing.T) {
	assert.Equal(t, "Chat 2025-03-14 09:26:53", DefaultChatName(testTime))
}

func TestChatNameFromPrompt(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		width  int
		want   string
	}{
		{"short prompt", "Hello", 40, "Hello"},
		{"newlines collapsed", "line one\n\n  line two", 40, "line one line two"},
		{"truncated", "What is the capital of France?", 12, "What is the…"},
		{"wide runes", "日本語で説明してください", 9, "日本語で…"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ChatNameFromPrompt(tc.prompt, tc.width))
		})
	}
}

func TestChatNameFromPrompt_EmptyFallsBack(t *testing.T) {
	name := ChatNameFromPrompt(" \n\t", 40)
	assert.True(t, strings.HasPrefix(name, "Chat "), name)
}

func TestEqualRefs(t *testing.T) {
	a := []ChatRef{{ID: "1", Name: "one"}, {ID: "2", Name: "two"}}
	b := []ChatRef{{ID: "1", Name: "one"}, {ID: "2", Name: "two"}}
	assert.True(t, EqualRefs(a, b))

	b[1].Name = "renamed"
	assert.False(t, EqualRefs(a, b))
	assert.False(t, EqualRefs(a, a[:1]))
	assert.True(t, EqualRefs(nil, []ChatRef{}))

	c := Chat{ID: "x", Name: "n", CreatedAt: testTime}
	assert.Equal(t, ChatRef{ID: "x", Name: "n"}, c.Ref())
}
