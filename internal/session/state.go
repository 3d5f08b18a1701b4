// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"

	"github.com/jeranaias/levchat/internal/model"
)

// =============================================================================
// STATE
// =============================================================================

// State is the lifecycle state of the session connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateCompleted
	StateCancelled
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Busy reports whether a generation is in flight.
func (s State) Busy() bool {
	return s == StateConnecting || s == StateStreaming
}

// Terminal reports whether the state ends a generation.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is a consistent copy of the machine state.
type Snapshot struct {
	State      State
	ChatID     string
	Generation uint64
	Messages   []model.Message

	// LastError is the error that ended the most recent generation, if it
	// failed. It is cleared by the next submit.
	LastError error
}

// Pending returns the in-progress assistant message.
func (s Snapshot) Pending() (model.Message, bool) {
	if n := len(s.Messages); n > 0 && s.Messages[n-1].Pending {
		return s.Messages[n-1], true
	}
	return model.Message{}, false
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyPrompt is returned by Submit for a prompt with no visible text.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrBusy is returned by Submit while a generation is in flight.
	ErrBusy = errors.New("a response is already being generated")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session is closed")

	// ErrEmptyName is returned when renaming a chat to an empty name.
	ErrEmptyName = errors.New("chat name is empty")

	// ErrProtocolViolation wraps frames the machine cannot apply: a delta
	// with no pending message, or a frame the strict decoder refused.
	ErrProtocolViolation = errors.New("protocol violation")
)
