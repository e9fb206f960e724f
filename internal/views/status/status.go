// Package status renders the one-line link summary at the top of the console.
package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/paramlink/paramlink/internal/theme"
)

// Model holds the status bar state. State, Session, Reason and Frames
// follow session events only. Pending and Failure belong to the local
// connect call: a dial in flight, or the error it returned.
type Model struct {
	State   string
	Addr    string
	Session string
	Reason  string
	Frames  int
	Dropped uint64
	Pending bool
	Failure string
	Width   int
}

// New creates a status bar for an idle link to addr.
func New(addr string) Model {
	return Model{State: "idle", Addr: addr}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	stateStyle := lipgloss.NewStyle().Foreground(theme.StateColor(m.State))
	content := stateStyle.Render(theme.StateGlyph(m.State) + " " + m.State)
	if m.Pending {
		content += " " + lipgloss.NewStyle().Foreground(theme.StateColor("connecting")).Render("(connecting...)")
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content += sep + m.Addr
	if m.Session != "" {
		content += sep + theme.StyleDimmed.Render("session "+shortID(m.Session))
	}
	content += sep + fmt.Sprintf("%d frames", m.Frames)
	if m.Dropped > 0 {
		content += sep + lipgloss.NewStyle().Foreground(theme.ColorConnecting).
			Render(fmt.Sprintf("%d events dropped", m.Dropped))
	}
	if m.Reason != "" && m.State != "connected" {
		content += sep + theme.StyleError.Render(m.Reason)
	}
	if m.Failure != "" {
		content += sep + theme.StyleError.Render(m.Failure)
	}

	return theme.Panel(width).Render(content)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
