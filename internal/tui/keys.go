package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Add       key.Binding
	Rename    key.Binding
	Delete    key.Binding
	MoveLeft  key.Binding
	MoveRight key.Binding
	Scan      key.Binding
	ScanAll   key.Binding
	View      key.Binding
	Open      key.Binding
	Export    key.Binding
	Quit      key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Add:       key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new")),
		Rename:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rename")),
		Delete:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		MoveLeft:  key.NewBinding(key.WithKeys("["), key.WithHelp("[", "move up")),
		MoveRight: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "move down")),
		Scan:      key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "scan")),
		ScanAll:   key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "scan all")),
		View:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "result")),
		Open:      key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open")),
		Export:    key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "export")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Add, k.Scan, k.ScanAll, k.View, k.Delete, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.MoveLeft, k.MoveRight},
		{k.Add, k.Rename, k.Delete},
		{k.Scan, k.ScanAll, k.View, k.Open, k.Export, k.Quit},
	}
}
