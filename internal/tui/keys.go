package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Toggle  key.Binding
	All     key.Binding
	Confirm key.Binding
	Cancel  key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Toggle:  key.NewBinding(key.WithKeys(" ", "x"), key.WithHelp("space", "toggle file")),
		All:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "toggle all")),
		Confirm: key.NewBinding(key.WithKeys("enter", "y"), key.WithHelp("enter", "import")),
		Cancel:  key.NewBinding(key.WithKeys("esc", "q", "ctrl+c"), key.WithHelp("q", "cancel")),
	}
}

func (k keyMap) bindings() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Toggle, k.All, k.Confirm, k.Cancel}
}
