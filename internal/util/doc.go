// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across levchat packages.
//
// # Key Functions
//
// String Utilities:
//   - NormalizeLine: NFC-normalize text and collapse all whitespace runs
//   - TruncateWidth: display-width aware truncation with an ellipsis
//   - PadWidth: right-pad to a display width for aligned listings
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	name := util.TruncateWidth(util.NormalizeLine(prompt), 40)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
