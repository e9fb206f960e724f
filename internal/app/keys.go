package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the TUI.
type KeyMap struct {
	Connect     key.Binding
	Disconnect  key.Binding
	ListParams  key.Binding
	ListSignals key.Binding
	Get         key.Binding
	Edit        key.Binding
	Subscribe   key.Binding
	CloseRemote key.Binding
	Up          key.Binding
	Down        key.Binding
	Focus       key.Binding
	Help        key.Binding
	Escape      key.Binding
	Quit        key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Connect: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "connect"),
		),
		Disconnect: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "disconnect"),
		),
		ListParams: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "parameters"),
		),
		ListSignals: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "signals"),
		),
		Get: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "get"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e", "enter"),
			key.WithHelp("e", "set"),
		),
		Subscribe: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "watch"),
		),
		CloseRemote: key.NewBinding(
			key.WithKeys("C"),
			key.WithHelp("C", "close remote"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Focus: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "table/log"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp feeds the footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Connect, k.Disconnect, k.ListParams, k.ListSignals, k.Edit, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Connect, k.Disconnect, k.CloseRemote},
		{k.ListParams, k.ListSignals, k.Get, k.Edit, k.Subscribe},
		{k.Up, k.Down, k.Focus, k.Help, k.Escape, k.Quit},
	}
}
