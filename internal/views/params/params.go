// Package params shows every parameter and signal value the endpoint has
// reported, newest value per name, in a navigable table.
package params

import (
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/paramlink/paramlink/internal/protocol"
	"github.com/paramlink/paramlink/internal/theme"
)

type value struct {
	v       float64
	updated time.Time
}

type Model struct {
	table  table.Model
	values map[string]value
	names  []string
}

func New() Model {
	t := table.New(
		table.WithColumns(columns(60)),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(theme.ColorBorder).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(theme.ColorBright).
		Background(theme.ColorAccent)
	t.SetStyles(styles)

	return Model{table: t, values: make(map[string]value)}
}

func columns(width int) []table.Column {
	name := max(width-36, 12)
	return []table.Column{
		{Title: "Name", Width: name},
		{Title: "Value", Width: 18},
		{Title: "Updated", Width: 12},
	}
}

// Merge records every value in p. The cursor stays on the same name when
// rows are added.
func (m *Model) Merge(p protocol.Parameters, at time.Time) {
	selected, _ := m.Selected()
	for name, v := range p {
		m.values[name] = value{v: v, updated: at}
	}
	m.rebuild()
	if selected == "" {
		return
	}
	for i, name := range m.names {
		if name == selected {
			m.table.SetCursor(i)
			break
		}
	}
}

// Clear forgets every value.
func (m *Model) Clear() {
	m.values = make(map[string]value)
	m.rebuild()
	m.table.SetCursor(0)
}

func (m *Model) rebuild() {
	m.names = m.names[:0]
	for name := range m.values {
		m.names = append(m.names, name)
	}
	sort.Strings(m.names)

	rows := make([]table.Row, 0, len(m.names))
	for _, name := range m.names {
		v := m.values[name]
		rows = append(rows, table.Row{
			name,
			strconv.FormatFloat(v.v, 'g', -1, 64),
			v.updated.Format("15:04:05.000"),
		})
	}
	m.table.SetRows(rows)
}

// Value returns the last reported value of name.
func (m Model) Value(name string) (float64, bool) {
	v, ok := m.values[name]
	return v.v, ok
}

// Selected returns the name under the cursor.
func (m Model) Selected() (string, bool) {
	row := m.table.SelectedRow()
	if len(row) == 0 {
		return "", false
	}
	return row[0], true
}

func (m Model) Len() int { return len(m.names) }

func (m *Model) SetSize(width, height int) {
	m.table.SetColumns(columns(width))
	m.table.SetWidth(width)
	m.table.SetHeight(max(height, 3))
}

// Update forwards navigation keys to the table.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if len(m.names) == 0 {
		return theme.StyleDimmed.Render("  no values yet; press l for parameters or s for signals")
	}
	return m.table.View()
}
