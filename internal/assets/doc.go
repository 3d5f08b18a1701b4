// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package assets manages the local model files used by the inference
// process.
//
// Models are GGUF files kept in per-kind directories under a library root
// (by default ~/Documents/LevChat):
//
//	model/      language models
//	em_model/   embedding models
//
// # Key Types
//
//   - Kind: languageModel or embeddingModel
//   - Library: lists the models of each kind
//   - Downloader: fetches one model at a time with progress and cancel
//   - Watcher: reports when a model directory changes
package assets
