package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of the mint view
type KeyMap struct {
	Connect    key.Binding
	Mint       key.Binding
	Enter      key.Binding
	Collection key.Binding
	Dismiss    key.Binding
	Quit       key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Connect: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "connect wallet"),
		),
		Mint: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mint nft"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "primary action"),
		),
		Collection: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "view collection"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "dismiss notice"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Connect, k.Mint, k.Collection, k.Quit}
}

// FullHelp implements help.KeyMap
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Connect, k.Mint, k.Enter},
		{k.Collection, k.Dismiss, k.Quit},
	}
}
