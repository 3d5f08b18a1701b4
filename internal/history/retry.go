// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jeranaias/levchat/internal/model"
)

// RetryStore retries failed message appends with linear backoff. All other
// operations pass straight through.
type RetryStore struct {
	Store
	retries int
	delay   time.Duration
	logger  *slog.Logger
}

// WithRetry wraps store so that AppendMessage is retried up to retries more
// times, waiting delay, 2*delay, ... between attempts. A chat that does not
// exist is never retried.
func WithRetry(store Store, retries int, delay time.Duration, logger *slog.Logger) *RetryStore {
	if retries < 0 {
		retries = 0
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RetryStore{Store: store, retries: retries, delay: delay, logger: logger}
}

// Unwrap returns the wrapped store.
func (r *RetryStore) Unwrap() Store {
	return r.Store
}

// AppendMessage implements Store.
func (r *RetryStore) AppendMessage(ctx context.Context, chatID string, msg model.Message) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			r.logger.Warn("retrying message append",
				"chat_id", chatID, "attempt", attempt, "err", lastErr)
			select {
			case <-ctx.Done():
				return 0, opError("append message", chatID, ctx.Err())
			case <-time.After(time.Duration(attempt) * r.delay):
			}
		}

		id, err := r.Store.AppendMessage(ctx, chatID, msg)
		if err == nil {
			return id, nil
		}
		if errors.Is(err, ErrChatNotFound) {
			return 0, err
		}
		lastErr = err
	}
	return 0, lastErr
}
