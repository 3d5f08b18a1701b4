// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jeranaias/levchat/internal/model"
)

// DefaultPollInterval is how often the chat list is refreshed.
const DefaultPollInterval = 2 * time.Second

// Poller periodically lists chats and reports the list when it changes.
// It only reads from the store.
type Poller struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	last     []model.ChatRef
	polled   bool
	onChange func([]model.ChatRef)
	onError  func(error)
}

// NewPoller creates a poller. A non-positive interval uses
// DefaultPollInterval.
func NewPoller(store Store, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Poller{store: store, interval: interval, logger: logger}
}

// OnChange sets the callback invoked with the new list whenever it differs
// from the previous one. The first successful poll always reports.
func (p *Poller) OnChange(fn func([]model.ChatRef)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// OnError sets the callback invoked when listing fails.
func (p *Poller) OnError(fn func(error)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

// Chats returns the last list seen.
func (p *Poller) Chats() []model.ChatRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ChatRef, len(p.last))
	copy(out, p.last)
	return out
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}

// Refresh polls once and reports whether the list changed.
func (p *Poller) Refresh(ctx context.Context) bool {
	chats, err := p.store.ListChats(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Warn("chat list refresh failed", "err", err)
		p.mu.Lock()
		onError := p.onError
		p.mu.Unlock()
		if onError != nil {
			onError(err)
		}
		return false
	}

	p.mu.Lock()
	if p.polled && model.EqualRefs(p.last, chats) {
		p.mu.Unlock()
		return false
	}
	p.last = chats
	p.polled = true
	onChange := p.onChange
	p.mu.Unlock()

	p.logger.Debug("chat list changed", "count", len(chats))
	if onChange != nil {
		out := make([]model.ChatRef, len(chats))
		copy(out, chats)
		onChange(out)
	}
	return true
}
