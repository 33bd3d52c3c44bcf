package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keybindings for the TUI.
type KeyMap struct {
	SpeedUp    key.Binding
	SpeedDown  key.Binding
	Power      key.Binding
	Boost      key.Binding
	Brightness key.Binding
	Heating    key.Binding
	Winter     key.Binding
	Auto       key.Binding
	Night      key.Binding
	FlowLock   key.Binding
	Direction  key.Binding
	Refresh    key.Binding
	Help       key.Binding
	Quit       key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		SpeedUp: key.NewBinding(
			key.WithKeys("up", "k", "+"),
			key.WithHelp("↑/k", "faster"),
		),
		SpeedDown: key.NewBinding(
			key.WithKeys("down", "j", "-"),
			key.WithHelp("↓/j", "slower"),
		),
		Power: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "on/off"),
		),
		Boost: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "boost"),
		),
		Brightness: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "brightness"),
		),
		Heating: key.NewBinding(
			key.WithKeys("h"),
			key.WithHelp("h", "heating"),
		),
		Winter: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "winter"),
		),
		Auto: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "auto"),
		),
		Night: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "night"),
		),
		FlowLock: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "flow lock"),
		),
		Direction: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "direction"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns keybindings to show in the help view (horizontal).
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.SpeedUp, k.SpeedDown, k.Power, k.Refresh, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.SpeedUp, k.SpeedDown, k.Power, k.Boost},
		{k.Heating, k.Winter, k.Auto, k.Night},
		{k.FlowLock, k.Direction, k.Brightness},
		{k.Refresh, k.Help, k.Quit},
	}
}
