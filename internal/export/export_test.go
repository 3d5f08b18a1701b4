// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/levchat/internal/model"
)

var exportTime = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func sampleTranscript() *Transcript {
	created := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	return &Transcript{
		Chat: model.Chat{ID: "c-1", Name: "Trip: Lyon", CreatedAt: created},
		Messages: []model.Message{
			{ID: 1, ChatID: "c-1", Content: "How far is Lyon?", IsUser: true, Timestamp: created},
			{ID: 2, ChatID: "c-1", Content: "About **460 km**.", Timestamp: created.Add(time.Minute)},
		},
	}
}

func TestForFormat(t *testing.T) {
	for _, name := range []string{"markdown", "MD", ""} {
		exp, err := ForFormat(name, nil)
		require.NoError(t, err, name)
		assert.Equal(t, ".md", exp.FileExtension())
	}

	exp, err := ForFormat("json", nil)
	require.NoError(t, err)
	assert.Equal(t, "application/json", exp.MimeType())

	_, err = ForFormat("html", nil)
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestMarkdownExport(t *testing.T) {
	opts := DefaultOptions()
	opts.Now = exportTime
	data, err := NewMarkdownExporter(opts).Export(sampleTranscript())
	require.NoError(t, err)
	out := string(data)

	assert.True(t, strings.HasPrefix(out, "---\ntitle: \"Trip: Lyon\"\nchat_id: c-1\n"), out)
	assert.Contains(t, out, "messages: 2\n")
	assert.Contains(t, out, "# Trip: Lyon\n")
	assert.Contains(t, out, "### You <sub>09:00:00</sub>\n\nHow far is Lyon?")
	assert.Contains(t, out, "### Assistant <sub>09:01:00</sub>\n\nAbout **460 km**.")
	assert.Contains(t, out, "*Exported from levchat on 2025-03-14 09:30:00*")
}

func TestMarkdownExport_NoMetadata(t *testing.T) {
	opts := &Options{}
	tr := sampleTranscript()
	tr.Chat.Name = "Notes_*draft*"
	tr.Messages[1].Err = "connection closed"
	tr.Messages[1].Cancelled = true

	data, err := NewMarkdownExporter(opts).Export(tr)
	require.NoError(t, err)
	out := string(data)

	assert.True(t, strings.HasPrefix(out, `# Notes\_\*draft\*`), out)
	assert.NotContains(t, out, "generator:")
	assert.Contains(t, out, "### You\n\n")
	assert.Contains(t, out, "[Error: connection closed]")
	assert.Contains(t, out, "*[Cancelled]*")
}

func TestMarkdownExport_EmptyChat(t *testing.T) {
	tr := &Transcript{Chat: model.Chat{ID: "c-2", Name: "Empty"}}
	data, err := NewMarkdownExporter(&Options{}).Export(tr)
	require.NoError(t, err)
	assert.Contains(t, string(data), "*No messages.*")

	_, err = NewMarkdownExporter(nil).Export(&Transcript{})
	assert.ErrorIs(t, err, ErrNoChat)
	_, err = NewMarkdownExporter(nil).Export(nil)
	assert.ErrorIs(t, err, ErrNoChat)
}

func TestJSONExport(t *testing.T) {
	opts := DefaultOptions()
	opts.Now = exportTime
	data, err := NewJSONExporter(opts).Export(sampleTranscript())
	require.NoError(t, err)

	var doc struct {
		Chat       model.Chat      `json:"chat"`
		Messages   []model.Message `json:"messages"`
		ExportedAt time.Time       `json:"exported_at"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "Trip: Lyon", doc.Chat.Name)
	require.Len(t, doc.Messages, 2)
	assert.True(t, doc.Messages[0].IsUser)
	assert.True(t, exportTime.Equal(doc.ExportedAt))

	data, err = NewJSONExporter(nil).Export(&Transcript{Chat: model.Chat{ID: "x"}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"messages": []`)
}

func TestFileName(t *testing.T) {
	chat := model.Chat{ID: "c-1", Name: `a/b: c?`}
	assert.Equal(t, "chat_a-b-_c-_20250314_093000.md", FileName(chat, NewMarkdownExporter(nil), exportTime))

	chat.Name = ""
	assert.Equal(t, "chat_chat_20250314_093000.json", FileName(chat, NewJSONExporter(nil), exportTime))

	chat.Name = strings.Repeat("x", 80)
	name := FileName(chat, NewJSONExporter(nil), exportTime)
	assert.Equal(t, "chat_"+strings.Repeat("x", 50)+"_20250314_093000.json", name)
}

func TestToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "chat.md")
	require.NoError(t, ToFile(sampleTranscript(), NewMarkdownExporter(nil), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "How far is Lyon?")

	err = ToFile(&Transcript{}, NewMarkdownExporter(nil), filepath.Join(t.TempDir(), "x.md"))
	assert.ErrorIs(t, err, ErrNoChat)
}
