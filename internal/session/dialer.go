// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"

	"github.com/jeranaias/levchat/internal/llama"
	"github.com/jeranaias/levchat/internal/protocol"
)

// Connection is one open connection to the inference process.
// ReadFrame is only called from the connection's reader goroutine.
type Connection interface {
	ReadFrame() (protocol.Frame, error)
	SendRequest(req protocol.GenerationRequest) error
	SendCancel() error
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context) (Connection, error)
}

// DialFunc adapts a function to the Dialer interface.
type DialFunc func(ctx context.Context) (Connection, error)

// Dial implements Dialer.
func (f DialFunc) Dial(ctx context.Context) (Connection, error) {
	return f(ctx)
}

// LlamaDialer returns a Dialer backed by a llama client.
func LlamaDialer(client *llama.Client) Dialer {
	return DialFunc(func(ctx context.Context) (Connection, error) {
		conn, err := client.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}
