// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a saved chat to a file.
//
// # Key Types
//
//   - Transcript: a chat with its messages, as loaded from the history store
//   - Exporter: converts a Transcript to one format
//   - Options: metadata and timestamp switches
//
// # Supported Formats
//
//   - markdown: human-readable, with optional YAML front matter
//   - json: the chat and its messages as stored
//
// # Usage
//
//	exp, err := export.ForFormat("markdown", nil)
//	data, err := exp.Export(&export.Transcript{Chat: chat, Messages: msgs})
//	name := export.FileName(chat, exp, time.Now())
package export
