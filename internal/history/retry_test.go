// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/levchat/internal/model"
)

// flakyStore fails the first n appends.
type flakyStore struct {
	*MemoryStore
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *flakyStore) AppendMessage(ctx context.Context, chatID string, msg model.Message) (int64, error) {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return 0, &PersistenceError{Op: "append message", ChatID: chatID, Err: errors.New("disk I/O error")}
	}
	return f.MemoryStore.AppendMessage(ctx, chatID, msg)
}

func newFlaky(t *testing.T, failures int32) (*flakyStore, string) {
	t.Helper()
	f := &flakyStore{MemoryStore: NewMemoryStore()}
	f.failures.Store(failures)
	id, err := f.CreateChat(context.Background(), "c")
	require.NoError(t, err)
	return f, id
}

func TestRetryStore_RecoversFromTransientFailure(t *testing.T) {
	flaky, chat := newFlaky(t, 2)
	s := WithRetry(flaky, 2, time.Millisecond, nil)

	id, err := s.AppendMessage(context.Background(), chat, model.NewUserMessage(chat, "x", time.Now()))
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, int32(3), flaky.calls.Load())
}

func TestRetryStore_GivesUp(t *testing.T) {
	flaky, chat := newFlaky(t, 10)
	s := WithRetry(flaky, 2, time.Millisecond, nil)

	_, err := s.AppendMessage(context.Background(), chat, model.NewUserMessage(chat, "x", time.Now()))
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, int32(3), flaky.calls.Load())
}

func TestRetryStore_ChatNotFoundIsNotRetried(t *testing.T) {
	s := WithRetry(NewMemoryStore(), 5, time.Second, nil)

	start := time.Now()
	_, err := s.AppendMessage(context.Background(), "missing", model.Message{Content: "x"})
	assert.ErrorIs(t, err, ErrChatNotFound)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRetryStore_ContextCancelled(t *testing.T) {
	flaky, chat := newFlaky(t, 10)
	s := WithRetry(flaky, 3, time.Hour, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.AppendMessage(ctx, chat, model.Message{Content: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Same(t, flaky, s.Unwrap())
}
