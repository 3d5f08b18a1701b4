// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Transcript and list rendering.

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/levchat/internal/model"
	"github.com/jeranaias/levchat/internal/util"
)

// =============================================================================
// MARKDOWN
// =============================================================================

// Renderer formats messages for the terminal. Assistant replies are
// rendered as markdown when a glamour renderer is available.
type Renderer struct {
	md *glamour.TermRenderer
}

// NewRenderer returns a renderer. Markdown is only rendered when enabled
// and stdout is a terminal, so piped output stays plain.
func NewRenderer(markdown bool, wordWrap int) *Renderer {
	r := &Renderer{}
	if !markdown || !IsStdoutTTY() {
		return r
	}
	if wordWrap <= 0 {
		wordWrap = GetTerminalWidth()
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrap),
	)
	if err == nil {
		r.md = md
	}
	return r
}

// Markdown renders content, returning it unchanged when rendering is off
// or fails.
func (r *Renderer) Markdown(content string) string {
	if r == nil || r.md == nil {
		return content
	}
	out, err := r.md.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

// Message writes one transcript entry.
func (r *Renderer) Message(w io.Writer, msg model.Message) {
	header := UserHeaderStyle
	if !msg.IsUser {
		header = AssistantHeaderStyle
	}
	stamp := ""
	if !msg.Timestamp.IsZero() {
		stamp = DimStyle.Render(msg.Timestamp.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "%s %s\n", header.Render(msg.Role().DisplayName()), stamp)

	body := msg.Display()
	switch {
	case msg.Failed():
		body = ErrorStyle.Render(body)
	case !msg.IsUser:
		body = r.Markdown(body)
	}
	fmt.Fprintln(w, body)
	if msg.Cancelled {
		fmt.Fprintln(w, WarningStyle.Render("[Cancelled]"))
	}
	fmt.Fprintln(w)
}

// Transcript writes every message of a chat.
func (r *Renderer) Transcript(w io.Writer, msgs []model.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, DimStyle.Render("(no messages)"))
		return
	}
	for _, msg := range msgs {
		r.Message(w, msg)
	}
}

// =============================================================================
// CHAT LISTS
// =============================================================================

const listNameWidth = 40

// ChatList writes a numbered chat list, marking current with "*".
func ChatList(w io.Writer, chats []model.ChatRef, current string) {
	if len(chats) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No chats yet."))
		return
	}
	for i, c := range chats {
		mark := " "
		if c.ID == current {
			mark = "*"
		}
		name := util.PadWidth(c.Name, listNameWidth)
		fmt.Fprintf(w, "%s %3d  %s  %s\n", mark, i+1, ValueStyle.Render(name), DimStyle.Render(c.ID))
	}
}
