// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// download_view.go - Live progress display for model downloads on a terminal.

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/levchat/internal/assets"
)

// =============================================================================
// MESSAGES
// =============================================================================

// progressMsg carries a downloader progress report into the view.
type progressMsg assets.Progress

// downloadDoneMsg ends the view.
type downloadDoneMsg struct {
	path string
	err  error
}

// =============================================================================
// MODEL
// =============================================================================

// downloadView shows a spinner, the file name and a progress bar while a
// download runs. Ctrl+C, Esc and q cancel the download; the view stays up
// until the downloader has cleaned up.
type downloadView struct {
	spinner  spinner.Model
	progress progress.Model
	current  assets.Progress
	cancel   func()

	cancelling bool
	done       bool
}

func newDownloadView(cancel func()) downloadView {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(Purple)

	return downloadView{
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient()),
		current:  assets.Progress{TotalSize: -1},
		cancel:   cancel,
	}
}

func (v downloadView) Init() tea.Cmd {
	return v.spinner.Tick
}

func (v downloadView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			if !v.cancelling && v.cancel != nil {
				v.cancelling = true
				v.cancel()
			}
		}
		return v, nil

	case tea.WindowSizeMsg:
		width := msg.Width - 30
		if width < 20 {
			width = 20
		}
		if width > 80 {
			width = 80
		}
		v.progress.Width = width
		return v, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return v, cmd

	case progressMsg:
		v.current = assets.Progress(msg)
		return v, nil

	case downloadDoneMsg:
		v.done = true
		return v, tea.Quit
	}
	return v, nil
}

func (v downloadView) View() string {
	if v.done {
		return ""
	}

	var b strings.Builder
	name := v.current.Filename
	if name == "" {
		name = "connecting"
	}
	fmt.Fprintf(&b, "%s %s\n", v.spinner.View(), name)

	if pct := v.current.Percentage(); pct >= 0 {
		fmt.Fprintf(&b, "  %s  %s / %s\n", v.progress.ViewAs(pct/100),
			formatBytes(v.current.Downloaded), formatBytes(v.current.TotalSize))
	} else {
		fmt.Fprintf(&b, "  %s\n", formatBytes(v.current.Downloaded))
	}

	if v.cancelling {
		b.WriteString(WarningStyle.Render("  Cancelling...") + "\n")
	} else {
		b.WriteString(DimStyle.Render("  Ctrl+C to cancel") + "\n")
	}
	return b.String()
}

// =============================================================================
// RUNNER
// =============================================================================

// downloadWithView runs dl under the progress view and returns the result
// of the download.
func downloadWithView(ctx context.Context, app *App, dl *assets.Downloader, url string, kind assets.Kind) (string, error) {
	prog := tea.NewProgram(newDownloadView(func() { dl.Cancel() }), tea.WithOutput(app.Err))
	dl.OnProgress(func(p assets.Progress) {
		prog.Send(progressMsg(p))
	})

	result := make(chan downloadDoneMsg, 1)
	go func() {
		path, err := dl.Download(ctx, url, kind)
		msg := downloadDoneMsg{path: path, err: err}
		result <- msg
		prog.Send(msg)
	}()

	if _, err := prog.Run(); err != nil {
		app.Logger.Warn("progress display failed", "err", err)
		dl.Cancel()
	}
	r := <-result
	return r.path, r.err
}
