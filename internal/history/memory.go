// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/levchat/internal/model"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	chats    map[string]model.Chat
	order    []string
	messages map[string][]model.Message
	nextID   int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:    make(map[string]model.Chat),
		messages: make(map[string][]model.Message),
	}
}

// CreateChat implements Store.
func (s *MemoryStore) CreateChat(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", opError("create chat", "", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.chats[id] = model.Chat{ID: id, Name: name, CreatedAt: time.Now()}
	s.order = append(s.order, id)
	return id, nil
}

// RenameChat implements Store.
func (s *MemoryStore) RenameChat(ctx context.Context, id, name string) error {
	if err := ctx.Err(); err != nil {
		return opError("rename chat", id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[id]
	if !ok {
		return opError("rename chat", id, ErrChatNotFound)
	}
	chat.Name = name
	s.chats[id] = chat
	return nil
}

// ListChats implements Store.
func (s *MemoryStore) ListChats(ctx context.Context) ([]model.ChatRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, opError("list chats", "", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]model.ChatRef, 0, len(s.order))
	for _, id := range s.order {
		refs = append(refs, s.chats[id].Ref())
	}
	return refs, nil
}

// DeleteChat implements Store.
func (s *MemoryStore) DeleteChat(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return opError("delete chat", id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[id]; !ok {
		return opError("delete chat", id, ErrChatNotFound)
	}
	delete(s.chats, id)
	delete(s.messages, id)
	for i, cid := range s.order {
		if cid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// AppendMessage implements Store.
func (s *MemoryStore) AppendMessage(ctx context.Context, chatID string, msg model.Message) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, opError("append message", chatID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return 0, opError("append message", chatID, ErrChatNotFound)
	}
	s.nextID++
	stored := model.Message{
		ID:        s.nextID,
		ChatID:    chatID,
		Content:   msg.Content,
		IsUser:    msg.IsUser,
		Timestamp: msg.Timestamp,
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now()
	}
	s.messages[chatID] = append(s.messages[chatID], stored)
	return stored.ID, nil
}

// LoadMessages implements Store.
func (s *MemoryStore) LoadMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, opError("load messages", chatID, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[chatID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
