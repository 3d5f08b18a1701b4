// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/levchat/internal/config"
)

type ctxKey string

const ctxKeyChatID ctxKey = "chat_id"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// =============================================================================
// CONSTRUCTION
// =============================================================================

// New returns a logger for cfg. Output goes to cfg.File when set (appended,
// created with 0600) and to w otherwise. The returned closer releases the
// file and is always non-nil.
func New(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w, closer = f, f
	}
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		closer.Close()
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return slog.New(handler), closer, nil
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// =============================================================================
// CONTEXT HELPERS
// =============================================================================

// WithChatID stores the current chat id in ctx.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, ctxKeyChatID, chatID)
}

// FromContext adds chat_id to base when ctx carries one.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	id, _ := ctx.Value(ctxKeyChatID).(string)
	if id == "" {
		return base
	}
	return base.With("chat_id", id)
}
