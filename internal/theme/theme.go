// Package theme provides the Lip Gloss palette and shared styles for the
// paramlink TUI. It is a leaf package with no internal imports.
package theme

import "github.com/charmbracelet/lipgloss"

// Link state colors.
var (
	ColorIdle         = lipgloss.Color("#6b7280")
	ColorConnecting   = lipgloss.Color("#d97706")
	ColorConnected    = lipgloss.Color("#22c55e")
	ColorDisconnected = lipgloss.Color("#dc2626")
)

// Event log kind colors.
var (
	ColorLink = lipgloss.Color("#3b82f6")
	ColorTx   = lipgloss.Color("#a855f7")
	ColorRx   = lipgloss.Color("#06b6d4")
	ColorErr  = lipgloss.Color("#dc2626")
)

// UI chrome colors.
var (
	ColorBorder = lipgloss.Color("#4b5563")
	ColorDimmed = lipgloss.Color("#6b7280")
	ColorBright = lipgloss.Color("#f9fafb")
	ColorAccent = lipgloss.Color("#7c3aed")
)

// StateColor returns the color for a session state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "connecting":
		return ColorConnecting
	case "connected":
		return ColorConnected
	case "disconnected":
		return ColorDisconnected
	default:
		return ColorIdle
	}
}

// StateGlyph returns a one-cell marker for a session state name.
func StateGlyph(state string) string {
	switch state {
	case "connecting":
		return "◌"
	case "connected":
		return "●"
	case "disconnected":
		return "✗"
	default:
		return "○"
	}
}

// KindColor returns the color for an event log kind.
func KindColor(kind string) lipgloss.Color {
	switch kind {
	case "link":
		return ColorLink
	case "tx":
		return ColorTx
	case "rx":
		return ColorRx
	case "err":
		return ColorErr
	default:
		return ColorDimmed
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorErr)
)

// Panel returns the double-bordered frame used by status bar and overlays.
func Panel(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(ColorBorder)
}
