// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for levchat.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServerConfig: Inference endpoint and connection timeouts
//   - GenerationConfig: Request parameters and frame decoding
//   - HistoryConfig: Chat database and persistence retries
//   - ModelsConfig: Model library location and download progress
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (LEVCHAT_*)
//   - ~/.levchat/config.toml
//   - ~/.levchat/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	url := cfg.Server.URL
//	interval := cfg.PollInterval()
package config
