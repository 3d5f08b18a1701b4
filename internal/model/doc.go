// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats and messages.
//
// # Key Types
//
//   - Chat / ChatRef: a persisted conversation and its list projection
//   - Message: a user or assistant message; assistant replies are created
//     empty ("placeholder") and filled in place while streaming
//   - Conversation: the in-memory message sequence of the active chat,
//     enforcing that at most one assistant reply is in progress
//
// # Usage
//
//	conv := model.NewConversation(chatID)
//	conv.Append(model.NewUserMessage(chatID, "Hello", time.Now()))
//	conv.AppendPlaceholder(time.Now())
//	conv.SetPendingContent("Hi")
//	final, err := conv.Finalize()
//
// Conversation is not safe for concurrent use; the session state machine
// owns it and serializes access.
package model
