// Package eventlog renders the scrollable log of link activity: connects,
// disconnects, commands sent and frames received.
package eventlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/paramlink/paramlink/internal/theme"
)

const maxEntries = 500

// Entry is one log line. Kind is "link", "tx", "rx" or "err".
type Entry struct {
	Time    time.Time
	Kind    string
	Message string
}

// Model holds the log and its scroll position, counted in lines up from
// the newest entry.
type Model struct {
	Entries []Entry
	Offset  int
}

func New() Model {
	return Model{}
}

// Add appends an entry, keeps at most maxEntries and jumps back to the
// newest line.
func (m *Model) Add(kind, format string, args ...any) {
	m.Entries = append(m.Entries, Entry{
		Time:    time.Now(),
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	})
	if over := len(m.Entries) - maxEntries; over > 0 {
		m.Entries = append(m.Entries[:0], m.Entries[over:]...)
	}
	m.Offset = 0
}

func (m *Model) ScrollUp(n int) {
	m.Offset = min(m.Offset+n, max(len(m.Entries)-1, 0))
}

func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

// View renders the newest height lines above the scroll offset.
func (m Model) View(width, height int) string {
	width = max(width, 24)
	height = max(height, 1)

	if len(m.Entries) == 0 {
		return theme.StyleDimmed.Render("  nothing yet; press c to connect")
	}

	end := len(m.Entries) - m.Offset
	start := max(end-height, 0)

	lines := make([]string, 0, end-start)
	for _, e := range m.Entries[start:end] {
		ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
		kind := lipgloss.NewStyle().Foreground(theme.KindColor(e.Kind)).Width(5).Render(e.Kind)
		msg := ansi.Truncate(e.Message, width-19, "…")
		lines = append(lines, ts+" "+kind+" "+msg)
	}
	if m.Offset > 0 {
		lines = append(lines, theme.StyleDimmed.Render(fmt.Sprintf("  ↓ %d newer", m.Offset)))
	}
	return strings.Join(lines, "\n")
}
