// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream assembles a streamed assistant reply.
//
// An Accumulator collects the text deltas of one generation and writes the
// full text so far into the pending message of a model.Conversation after
// every delta, so the pending content always equals the ordered
// concatenation of the deltas received.
//
//	acc := stream.NewAccumulator()
//	content, err := acc.Apply(conv, "Hi")
//	content, err = acc.Apply(conv, " there") // "Hi there"
//
// An Accumulator is not safe for concurrent use.
package stream
