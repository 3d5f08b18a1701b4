// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol implements the wire format spoken with the local
// inference process.
//
// A generation is one WebSocket connection. The client sends a single
// GenerationRequest as a text frame, then receives any number of frames:
//
//   - binary frames carry raw text deltas
//   - text frames carry either raw text deltas or JSON status messages
//     of the form {"status": "...", "job_id": "..."}
//
// A status whose value contains "completed" ends the generation. The client
// may interrupt a generation by sending the single byte 0x03 as a binary
// frame.
//
// # Key Types
//
//   - Frame: one inbound WebSocket message (binary or text payload)
//   - Event: the classification of a frame (delta, status, completion)
//   - Decoder: pure Frame -> Event classification, lenient or strict
//   - GenerationRequest: the request body sent once per connection
//
// # Usage
//
//	dec := protocol.NewDecoder(protocol.ModeLenient)
//	ev, err := dec.Decode(frame)
//	switch ev.Kind {
//	case protocol.EventTextDelta:
//	    acc.Apply(conv, ev.Delta)
//	case protocol.EventCompletion:
//	    // finalize
//	}
package protocol
