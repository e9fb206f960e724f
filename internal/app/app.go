package app

import (
	"context"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/paramlink/paramlink/internal/bus"
	"github.com/paramlink/paramlink/internal/protocol"
	"github.com/paramlink/paramlink/internal/session"
	"github.com/paramlink/paramlink/internal/theme"
	"github.com/paramlink/paramlink/internal/views/eventlog"
	"github.com/paramlink/paramlink/internal/views/manual"
	"github.com/paramlink/paramlink/internal/views/params"
	"github.com/paramlink/paramlink/internal/views/status"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayHelp
)

// Pane identifies which panel receives navigation keys.
type Pane int

const (
	PaneTable Pane = iota
	PaneLog
)

// Model is the root Bubble Tea model. It talks to the link only through
// Connect, Send and Disconnect, and learns everything else from its own
// event subscription.
type Model struct {
	link   Link
	sub    *bus.Subscription[session.Event]
	addr   string
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	statusBar status.Model
	values    params.Model
	events    eventlog.Model
	footer    help.Model
	input     textinput.Model

	// editing is the parameter whose new value is being typed.
	editing string
	focus   Pane
	overlay Overlay
}

// New creates the root model for a link that connects to addr.
func New(link Link, addr string) Model {
	ctx, cancel := context.WithCancel(context.Background())
	input := textinput.New()
	input.CharLimit = 32
	input.Placeholder = "value"

	return Model{
		link:      link,
		sub:       link.Subscribe(),
		addr:      addr,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		statusBar: status.New(addr),
		values:    params.New(),
		events:    eventlog.New(),
		footer:    help.New(),
		input:     input,
	}
}

// Init starts the subscription poll loop.
func (m Model) Init() tea.Cmd {
	return poll()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width - 2
		m.footer.Width = msg.Width
		m.values.SetSize(msg.Width-2, m.tableHeight())
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case pollMsg:
		m.drain()
		return m, poll()

	case connectResultMsg:
		m.statusBar.Pending = false
		if msg.Err != nil {
			m.events.Add("err", "%v", msg.Err)
			m.statusBar.Failure = msg.Err.Error()
		}
		return m, nil

	case sendResultMsg:
		if msg.Err != nil {
			m.events.Add("err", "%s not sent: %v", commandLabel(msg.Cmd), msg.Err)
		} else {
			m.events.Add("tx", "%s", commandLabel(msg.Cmd))
		}
		return m, nil
	}

	if m.editing != "" {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// drain applies every event that arrived since the last poll.
func (m *Model) drain() {
	for _, ev := range m.sub.Drain() {
		m.apply(ev)
	}
	if d := m.sub.Dropped(); d > m.statusBar.Dropped {
		m.events.Add("err", "ui fell behind; %d events dropped", d-m.statusBar.Dropped)
		m.statusBar.Dropped = d
	}
}

func (m *Model) apply(ev session.Event) {
	switch e := ev.(type) {
	case session.Connected:
		m.statusBar.State = "connected"
		m.statusBar.Session = e.Session
		m.statusBar.Addr = e.Addr
		m.statusBar.Reason = ""
		m.statusBar.Pending = false
		m.statusBar.Failure = ""
		m.events.Add("link", "connected to %s", e.Addr)

	case session.Disconnected:
		m.statusBar.State = "disconnected"
		m.statusBar.Reason = session.Reason(e.Err)
		if e.Err != nil {
			m.events.Add("err", "disconnected: %v", e.Err)
		} else {
			m.events.Add("link", "disconnected")
		}
		m.editing = ""

	case session.DataReceived:
		m.statusBar.Frames++
		if p, ok := e.Response.(protocol.Parameters); ok {
			m.values.Merge(p, e.At)
		}
		m.events.Add("rx", "%v", e.Response)
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editing != "" {
		return m.handleEditKey(msg)
	}

	if m.overlay != OverlayNone {
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Help):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Quit):
			return m.quit()
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp
		return m, nil

	case key.Matches(msg, m.keys.Connect):
		if m.statusBar.State != "connected" {
			m.statusBar.Pending = true
			m.statusBar.Failure = ""
		}
		m.events.Add("link", "connecting to %s", m.addr)
		return m, connect(m.ctx, m.link, m.addr)

	case key.Matches(msg, m.keys.Disconnect):
		m.link.Disconnect()
		m.events.Add("link", "disconnect requested")
		return m, nil

	case key.Matches(msg, m.keys.ListParams):
		return m, send(m.ctx, m.link, protocol.ListParameters{})

	case key.Matches(msg, m.keys.ListSignals):
		return m, send(m.ctx, m.link, protocol.ListSignals{})

	case key.Matches(msg, m.keys.CloseRemote):
		return m, send(m.ctx, m.link, protocol.CloseListenerThread{})

	case key.Matches(msg, m.keys.Get), key.Matches(msg, m.keys.Subscribe), key.Matches(msg, m.keys.Edit):
		name, ok := m.values.Selected()
		if !ok {
			m.events.Add("err", "no row selected")
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Get):
			return m, send(m.ctx, m.link, protocol.GetParameterValue{Name: name})
		case key.Matches(msg, m.keys.Subscribe):
			return m, send(m.ctx, m.link, protocol.SubscribeToSignal{Name: name})
		}
		return m.startEdit(name)

	case key.Matches(msg, m.keys.Focus):
		if m.focus == PaneTable {
			m.focus = PaneLog
		} else {
			m.focus = PaneTable
		}
		return m, nil

	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
		if m.focus == PaneLog {
			if key.Matches(msg, m.keys.Up) {
				m.events.ScrollUp(1)
			} else {
				m.events.ScrollDown(1)
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.values, cmd = m.values.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) startEdit(name string) (tea.Model, tea.Cmd) {
	m.editing = name
	m.input.Prompt = "set " + name + " = "
	m.input.SetValue("")
	if v, ok := m.values.Value(name); ok {
		m.input.Placeholder = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return m, m.input.Focus()
}

func (m Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.editing = ""
		m.input.Blur()
		return m, nil

	case tea.KeyEnter:
		raw := strings.TrimSpace(m.input.Value())
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			m.events.Add("err", "%q is not a number", raw)
			return m, nil
		}
		cmd := protocol.SetParameterValue{Name: m.editing, Value: v}
		m.editing = ""
		m.input.Blur()
		return m, send(m.ctx, m.link, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.cancel()
	m.sub.Close()
	m.link.Disconnect()
	return m, tea.Quit
}

func (m Model) tableHeight() int {
	// status bar, two section headings, input line and footer
	return max((m.height-7)/2, 3)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.overlay == OverlayHelp {
		return theme.StyleBorder.Width(m.width - 2).Render(manual.Render(m.width - 2))
	}

	logHeight := max(m.height-m.tableHeight()-9, 3)
	sections := []string{
		m.statusBar.View(),
		m.heading("VALUES", PaneTable),
		m.values.View(),
		m.heading("LOG", PaneLog),
		m.events.View(m.width-2, logHeight),
	}
	if m.editing != "" {
		sections = append(sections, m.input.View())
	}
	sections = append(sections, m.footer.View(m.keys))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) heading(title string, p Pane) string {
	if m.focus == p {
		return theme.StyleHeader.Foreground(theme.ColorAccent).Render("▸ " + title)
	}
	return theme.StyleDimmed.Render("  " + title)
}

func commandLabel(cmd protocol.Command) string {
	if s, ok := cmd.(interface{ String() string }); ok {
		return s.String()
	}
	return string(cmd.Type())
}
