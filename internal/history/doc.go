// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history provides chat history persistence.
//
// # Key Types
//
//   - Store: the persistence contract used by the session state machine
//   - SQLiteStore: durable store on modernc.org/sqlite
//   - MemoryStore: in-process store with the same semantics, used by tests
//     and when no database path is configured
//   - RetryStore: wraps a Store and retries failed message appends
//   - Poller: refreshes the chat list periodically and reports changes
//
// # Usage
//
//	store, err := history.OpenSQLite(ctx, "~/.levchat/chats.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//	id, err := store.CreateChat(ctx, model.DefaultChatName(time.Now()))
//
// Every error returned by a store is a *PersistenceError; lookups of an
// unknown chat additionally match ErrChatNotFound.
package history
