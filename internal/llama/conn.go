// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llama

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jeranaias/levchat/internal/protocol"
)

// Conn is one open connection to the inference process.
//
// ReadFrame must be called from a single goroutine. SendRequest, SendCancel
// and Close may be called from any goroutine.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	logger       *slog.Logger

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration, logger *slog.Logger) *Conn {
	return &Conn{ws: ws, writeTimeout: writeTimeout, logger: logger}
}

// ReadFrame blocks until the next data frame arrives.
func (c *Conn) ReadFrame() (protocol.Frame, error) {
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return protocol.Frame{}, c.readError(err)
		}
		switch msgType {
		case websocket.TextMessage:
			return protocol.Frame{Kind: protocol.FrameText, Data: data}, nil
		case websocket.BinaryMessage:
			return protocol.Frame{Kind: protocol.FrameBinary, Data: data}, nil
		}
		// Control frames are handled inside ReadMessage; nothing else is
		// delivered, but skip defensively.
	}
}

// SendRequest sends the generation request as a text frame.
func (c *Conn) SendRequest(req protocol.GenerationRequest) error {
	data, err := req.Encode()
	if err != nil {
		return &ClientError{Type: ErrTypeWrite, Message: "failed to encode request", Cause: err}
	}
	return c.write(websocket.TextMessage, data)
}

// SendCancel sends the cancel byte as a single binary frame.
func (c *Conn) SendCancel() error {
	return c.write(websocket.BinaryMessage, protocol.CancelPayload())
}

// Close closes the connection. It sends a close frame best effort and is
// safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		deadline := time.Now().Add(c.writeTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil {
			c.logger.Debug("close frame not sent", "err", werr)
		}
		err = c.ws.Close()
		c.logger.Debug("connection closed")
	})
	return err
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

func (c *Conn) write(msgType int, data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return &ClientError{Type: ErrTypeWrite, Message: "failed to set write deadline", Cause: err}
	}
	if err := c.ws.WriteMessage(msgType, data); err != nil {
		return &ClientError{Type: ErrTypeWrite, Message: "failed to send frame", Cause: err}
	}
	return nil
}

func (c *Conn) readError(err error) error {
	if c.closed.Load() {
		return &ClientError{Type: ErrTypeClosed, Message: ErrClosed.Message, Cause: err}
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return &ClientError{Type: ErrTypeClosed, Message: "server closed the connection", Cause: err}
	}
	return &ClientError{Type: ErrTypeConnection, Message: "connection lost", Cause: err}
}
