// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"strings"
	"time"

	"github.com/jeranaias/levchat/internal/model"
)

// ErrNoPlaceholder is returned when a delta arrives but the conversation has
// no pending assistant message to write it into.
var ErrNoPlaceholder = errors.New("stream: delta without a pending assistant message")

// =============================================================================
// ACCUMULATOR
// =============================================================================

// Accumulator folds text deltas into the pending message of a conversation.
type Accumulator struct {
	builder strings.Builder
	stats   Stats
}

// NewAccumulator creates an empty accumulator. The start time used for the
// statistics is the moment of creation.
func NewAccumulator() *Accumulator {
	return &Accumulator{stats: Stats{StartTime: time.Now()}}
}

// Apply appends delta and replaces the pending message content with the
// full accumulated text, which it returns. The accumulator is left
// unchanged when there is no pending message.
func (a *Accumulator) Apply(conv *model.Conversation, delta string) (string, error) {
	if conv == nil {
		return "", ErrNoPlaceholder
	}
	if _, ok := conv.Pending(); !ok {
		return "", ErrNoPlaceholder
	}

	a.builder.WriteString(delta)
	a.record(delta)

	content := a.builder.String()
	if err := conv.SetPendingContent(content); err != nil {
		return "", ErrNoPlaceholder
	}
	return content, nil
}

// Content returns the text accumulated so far.
func (a *Accumulator) Content() string {
	return a.builder.String()
}

// Deltas returns the number of deltas applied.
func (a *Accumulator) Deltas() int {
	return a.stats.Deltas
}

// Stats returns the statistics of the current reply.
func (a *Accumulator) Stats() Stats {
	s := a.stats
	if !s.StartTime.IsZero() {
		s.Elapsed = time.Since(s.StartTime)
	}
	return s
}

// Reset clears the accumulated text and restarts the statistics.
func (a *Accumulator) Reset() {
	a.builder.Reset()
	a.stats = Stats{StartTime: time.Now()}
}

func (a *Accumulator) record(delta string) {
	if a.stats.StartTime.IsZero() {
		a.stats.StartTime = time.Now()
	}
	a.stats.Deltas++
	a.stats.Bytes += len(delta)
	if a.stats.FirstDelta == 0 && delta != "" {
		a.stats.FirstDelta = time.Since(a.stats.StartTime)
	}
}

// =============================================================================
// STATISTICS
// =============================================================================

// Stats holds statistics collected while a reply streams.
type Stats struct {
	StartTime time.Time

	// Deltas and Bytes count what has been applied.
	Deltas int
	Bytes  int

	// FirstDelta is the time to the first non-empty delta.
	FirstDelta time.Duration

	// Elapsed is filled in by Accumulator.Stats.
	Elapsed time.Duration
}

// BytesPerSecond returns the average throughput.
func (s Stats) BytesPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.Elapsed.Seconds()
}
