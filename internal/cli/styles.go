// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Centralized styling for the levchat CLI.
//
// Colors are disabled for non-TTY output and respect NO_COLOR and
// FORCE_COLOR (see terminal.go).

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// PALETTE
// =============================================================================

// Adaptive colors pick the light or dark variant from the terminal
// background.
var (
	Purple        = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}
	Cyan          = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}
	Emerald       = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}
	Rose          = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}
	Amber         = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}
	TextPrimary   = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}
	TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}
	TextMuted     = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}
	Overlay       = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}
)

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles and headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Cyan).
			MarginBottom(1)

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(TextSecondary).
			Width(20)

	// ValueStyle is used for regular values and text
	ValueStyle = lipgloss.NewStyle().
			Foreground(TextPrimary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Emerald).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Rose).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Amber)

	// DimStyle is used for secondary information and hints
	DimStyle = lipgloss.NewStyle().
			Foreground(TextMuted)

	SeparatorStyle = lipgloss.NewStyle().
			Foreground(Overlay)

	// Chat transcript
	PromptStyle = lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true)

	UserHeaderStyle = lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true)

	AssistantHeaderStyle = lipgloss.NewStyle().
				Foreground(Purple).
				Bold(true)

	CommandStyle = lipgloss.NewStyle().
			Foreground(Emerald)
)

// =============================================================================
// HELPER FUNCTIONS FOR COMMON PATTERNS
// =============================================================================

// RenderSeparator renders a horizontal separator line of the specified width.
// Default width is 60 characters if not specified.
func RenderSeparator(width ...int) string {
	w := 60
	if len(width) > 0 && width[0] > 0 {
		w = width[0]
	}
	return SeparatorStyle.Render(strings.Repeat("=", w))
}

// RenderStatus renders a status indicator with appropriate color.
func RenderStatus(status string) string {
	switch strings.ToLower(status) {
	case "ok", "success", "pass":
		return SuccessStyle.Render("[OK]")
	case "error", "fail":
		return ErrorStyle.Render("[FAIL]")
	case "warning", "warn":
		return WarningStyle.Render("[!!]")
	default:
		return DimStyle.Render("[--]")
	}
}

// RenderLabel renders a label followed by its value.
func RenderLabel(label, value string) string {
	return LabelStyle.Render(label+":") + " " + ValueStyle.Render(value)
}
