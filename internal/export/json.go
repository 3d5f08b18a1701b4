// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/levchat/internal/model"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports transcripts to JSON. The output always holds the
// complete chat; Options only supply the export time.
type JSONExporter struct {
	options *Options
}

// jsonDocument is the shape of a JSON export.
type jsonDocument struct {
	Chat       model.Chat      `json:"chat"`
	Messages   []model.Message `json:"messages"`
	ExportedAt time.Time       `json:"exported_at"`
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export converts a transcript to indented JSON.
func (e *JSONExporter) Export(t *Transcript) ([]byte, error) {
	if t == nil || t.Chat.ID == "" {
		return nil, ErrNoChat
	}
	msgs := t.Messages
	if msgs == nil {
		msgs = []model.Message{}
	}
	return json.MarshalIndent(jsonDocument{
		Chat:       t.Chat,
		Messages:   msgs,
		ExportedAt: e.options.now(),
	}, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
