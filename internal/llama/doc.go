// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llama provides the WebSocket client for the local inference
// process.
//
// The inference process listens on ws://127.0.0.1:15555. A connection
// carries exactly one generation: the client sends one JSON request as a
// text frame, the server streams text deltas (binary or text frames) and
// JSON status messages, and the client closes the socket once a status
// containing "completed" arrives. Sending the single byte 0x03 as a binary
// frame asks the server to stop.
//
// # Key Types
//
//   - Client: dials connections and checks that the server is reachable
//   - Conn: one open connection; frames are read by a single goroutine
//   - ClientError: typed transport error with an ErrorType
//
// # Usage
//
//	client := llama.NewClient(nil)
//	conn, err := client.Dial(ctx)
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//	if err := conn.SendRequest(protocol.NewGenerationRequest("Hello", 0.7, 1024)); err != nil {
//	    return err
//	}
//	frame, err := conn.ReadFrame()
package llama
