// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llama

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the inference client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches another ClientError of the same type, so the sentinels below
// work with errors.Is.
func (e *ClientError) Is(target error) bool {
	var t *ClientError
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeConnection
	ErrTypeClosed
	ErrTypeWrite
	ErrTypeInvalidURL
)

// String returns the error type name.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeNotRunning:
		return "not_running"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeConnection:
		return "connection"
	case ErrTypeClosed:
		return "closed"
	case ErrTypeWrite:
		return "write"
	case ErrTypeInvalidURL:
		return "invalid_url"
	default:
		return "unknown"
	}
}

// Sentinel errors for easy checking.
var (
	ErrNotRunning = &ClientError{Type: ErrTypeNotRunning, Message: "inference server is not running"}
	ErrTimeout    = &ClientError{Type: ErrTypeTimeout, Message: "connection timed out"}
	ErrClosed     = &ClientError{Type: ErrTypeClosed, Message: "connection closed"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// DefaultURL is the address of the local inference process.
const DefaultURL = "ws://127.0.0.1:15555"

// ClientConfig holds configuration options for the inference client.
type ClientConfig struct {
	// URL of the WebSocket endpoint (default: ws://127.0.0.1:15555)
	URL string

	// HandshakeTimeout bounds connect plus upgrade (default: 5s)
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each request and cancel write (default: 5s)
	WriteTimeout time.Duration

	// ReadLimit is the largest inbound frame accepted (default: 1 MiB)
	ReadLimit int64

	// Logger receives connection lifecycle events (default: discard)
	Logger *slog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		URL:              DefaultURL,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadLimit:        1 << 20,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client dials connections to the inference process. It holds no
// connection itself and is safe for concurrent use.
type Client struct {
	config *ClientConfig
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewClient creates a client. A nil config uses DefaultConfig; zero fields
// are filled with defaults.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()

	// Fill in defaults for any zero values
	if config.URL == "" {
		config.URL = defaults.URL
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.ReadLimit == 0 {
		config.ReadLimit = defaults.ReadLimit
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            nil,
			HandshakeTimeout: config.HandshakeTimeout,
		},
		logger: logger,
	}
}

// URL returns the endpoint the client dials.
func (c *Client) URL() string {
	return c.config.URL
}

// Dial opens a new connection.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	if _, err := c.endpoint(); err != nil {
		return nil, err
	}

	ws, resp, err := c.dialer.DialContext(ctx, c.config.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		cerr := classifyDialError(ctx, err)
		c.logger.Debug("dial failed", "url", c.config.URL, "type", cerr.Type.String(), "err", err)
		return nil, cerr
	}

	ws.SetReadLimit(c.config.ReadLimit)
	c.logger.Debug("connected", "url", c.config.URL)
	return newConn(ws, c.config.WriteTimeout, c.logger), nil
}

// CheckRunning verifies that something accepts TCP connections at the
// configured address. It does not perform a WebSocket handshake.
func (c *Client) CheckRunning(ctx context.Context) error {
	u, err := c.endpoint()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.HandshakeTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", hostPort(u))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return &ClientError{Type: ErrTypeNotRunning, Message: ErrNotRunning.Message, Cause: err}
	}
	return conn.Close()
}

func (c *Client) endpoint() (*url.URL, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidURL, Message: "invalid server URL", Cause: err}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, &ClientError{Type: ErrTypeInvalidURL, Message: "server URL must use ws:// or wss://: " + c.config.URL}
	}
	if u.Host == "" {
		return nil, &ClientError{Type: ErrTypeInvalidURL, Message: "server URL has no host: " + c.config.URL}
	}
	return u, nil
}

func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "wss" {
		return net.JoinHostPort(u.Hostname(), "443")
	}
	return net.JoinHostPort(u.Hostname(), "80")
}

func classifyDialError(ctx context.Context, err error) *ClientError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &ClientError{Type: ErrTypeNotRunning, Message: ErrNotRunning.Message, Cause: err}
	}
	if errors.Is(err, websocket.ErrBadHandshake) {
		return &ClientError{Type: ErrTypeConnection, Message: "server rejected the WebSocket handshake", Cause: err}
	}
	return &ClientError{Type: ErrTypeConnection, Message: "failed to connect", Cause: err}
}
