// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"encoding/json"
	"fmt"
)

// CancelSignal is the interrupt byte (Ctrl+C) sent to stop a generation.
const CancelSignal byte = 0x03

// Defaults used by the original desktop client.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
)

// GenerationRequest is sent exactly once, right after the connection opens.
type GenerationRequest struct {
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// NewGenerationRequest builds a request, substituting defaults for zero values.
func NewGenerationRequest(prompt string, temperature float64, maxTokens int) GenerationRequest {
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return GenerationRequest{
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}

// Encode returns the JSON body of the request.
func (r GenerationRequest) Encode() ([]byte, error) {
	if r.Prompt == "" {
		return nil, fmt.Errorf("generation request: empty prompt")
	}
	return json.Marshal(r)
}

// CancelPayload returns a fresh payload holding the cancel byte.
func CancelPayload() []byte {
	return []byte{CancelSignal}
}
