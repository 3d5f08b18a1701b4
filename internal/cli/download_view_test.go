// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/levchat/internal/assets"
)

func updateView(t *testing.T, v downloadView, msg tea.Msg) (downloadView, tea.Cmd) {
	t.Helper()
	m, cmd := v.Update(msg)
	next, ok := m.(downloadView)
	require.True(t, ok)
	return next, cmd
}

func TestDownloadView_Progress(t *testing.T) {
	v := newDownloadView(nil)
	assert.Contains(t, v.View(), "connecting")

	v, _ = updateView(t, v, progressMsg{Filename: "tiny.gguf", TotalSize: 2048, Downloaded: 1024, Active: true})
	out := v.View()
	assert.Contains(t, out, "tiny.gguf")
	assert.Contains(t, out, "50%")
	assert.Contains(t, out, "1.00 KB / 2.00 KB")

	v, _ = updateView(t, v, progressMsg{Filename: "tiny.gguf", TotalSize: -1, Downloaded: 3072, Active: true})
	assert.NotContains(t, v.View(), "%")
	assert.Contains(t, v.View(), "3.00 KB")
}

func TestDownloadView_CancelOnce(t *testing.T) {
	calls := 0
	v := newDownloadView(func() { calls++ })

	v, cmd := updateView(t, v, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Nil(t, cmd, "the view waits for the downloader to finish")
	assert.Contains(t, v.View(), "Cancelling")

	v, _ = updateView(t, v, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, 1, calls)

	v, _ = updateView(t, v, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	assert.Equal(t, 1, calls)
}

func TestDownloadView_DoneQuits(t *testing.T) {
	v := newDownloadView(nil)
	v, cmd := updateView(t, v, downloadDoneMsg{err: assets.ErrCancelled})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, v.View())
}

func TestDownloadView_WindowSizeClampsBar(t *testing.T) {
	v := newDownloadView(nil)
	v, _ = updateView(t, v, tea.WindowSizeMsg{Width: 30})
	assert.Equal(t, 20, v.progress.Width)

	v, _ = updateView(t, v, tea.WindowSizeMsg{Width: 300})
	assert.Equal(t, 80, v.progress.Width)
}
