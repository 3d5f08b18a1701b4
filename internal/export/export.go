// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/levchat/internal/model"
	"github.com/jeranaias/levchat/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Transcript is a chat and its messages in display order.
type Transcript struct {
	Chat     model.Chat
	Messages []model.Message
}

// Exporter converts a transcript to one file format.
type Exporter interface {
	// Export converts a transcript to the target format and returns the content.
	Export(t *Transcript) ([]byte, error)

	// FileExtension returns the file extension, dot included.
	FileExtension() string

	// MimeType returns the MIME type of the format.
	MimeType() string
}

// ErrUnknownFormat is returned by ForFormat for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown export format")

// ErrNoChat is returned when a transcript has no chat.
var ErrNoChat = errors.New("transcript has no chat")

// Formats lists the accepted format names.
var Formats = []string{"markdown", "json"}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// IncludeMetadata adds a front matter block with the chat id and dates.
	IncludeMetadata bool

	// IncludeTimestamps adds the time to each message heading.
	IncludeTimestamps bool

	// Now is the export time written into metadata. Zero means time.Now.
	Now time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
	}
}

func (o *Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// ForFormat returns the exporter for a format name ("markdown", "md" or
// "json").
func ForFormat(name string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "markdown", "md", "":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q (use %s)", ErrUnknownFormat, name, strings.Join(Formats, " or "))
	}
}

// =============================================================================
// FILE OUTPUT
// =============================================================================

// FileName returns the default file name for an export of chat.
func FileName(chat model.Chat, exp Exporter, now time.Time) string {
	return fmt.Sprintf("chat_%s_%s%s", sanitizeFilename(chat.Name), now.Format("20060102_150405"), exp.FileExtension())
}

// ToFile exports t and writes the result to path, creating parent
// directories. The write is atomic.
func ToFile(t *Transcript, exp Exporter, path string) error {
	content, err := exp.Export(t)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	const maxLen = 50
	runes := []rune(s)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}

	result := make([]rune, 0, len(runes))
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			result = append(result, '-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			result = append(result, '_')
		case r < 32 || r == 127:
			result = append(result, '-')
		default:
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return "chat"
	}
	return string(result)
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
