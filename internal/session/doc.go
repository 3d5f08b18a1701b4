// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session implements the streaming chat session state machine.
//
// A Machine owns the active chat, its in-memory conversation and at most
// one connection to the inference process. Submitting a prompt moves the
// machine from Idle to Connecting; once the socket is open an empty
// assistant message is appended, the machine enters Streaming and the
// request is sent. Frames are read by one goroutine per connection and
// applied in arrival order until a completion status, a cancellation or an
// error ends the generation. Completed, Cancelled and Failed are reported
// to the change callback and immediately followed by Idle.
//
// # Key Types
//
//   - Machine: the state machine
//   - State: connection lifecycle state
//   - Snapshot: consistent copy of the machine state for rendering
//   - Dialer / Connection: transport seams, satisfied by package llama
//
// # Usage
//
//	m := session.New(session.DefaultConfig(), session.LlamaDialer(client), store, logger)
//	defer m.Close()
//	m.SetChangeCallback(func(s session.Snapshot) { render(s) })
//	if err := m.Submit(ctx, "Hello"); err != nil {
//	    return err
//	}
//
// # Generations
//
// Every submit and every cancellation increments a generation counter.
// Work started under an older generation (a dial that completes late,
// frames from a cancelled connection) is discarded when it comes back.
//
// # Persistence
//
// Store writes go through a single FIFO writer goroutine, so durable order
// matches conversation order. The user message is written before the
// request is sent; the assistant message is written once, on completion.
// Cancelled and failed replies stay in memory only.
package session
