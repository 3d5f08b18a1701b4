// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the levchat command line.
//
// # Commands
//
//   - chat: Interactive chat session (the default command)
//   - chats: List, show, rename, delete and export saved chats
//   - models: List, validate, download and watch GGUF models
//   - doctor: Check the server, the chat database and the model library
//   - config: Show, initialize and edit the configuration
//   - version: Print version information
//
// # Usage
//
//	os.Exit(cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr))
//
// Exit codes: 0 success, 1 general error, 2 usage error, 3 configuration
// error, 5 inference server unreachable.
package cli
