package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Left     key.Binding
	Right    key.Binding
	PrevWeek key.Binding
	NextWeek key.Binding
	Click    key.Binding
	Toggle   key.Binding
	Focus    key.Binding
	Members  key.Binding
	Write    key.Binding
	Assign   key.Binding
	Unassign key.Binding
	Lock     key.Binding
	Commit   key.Binding
	Revert   key.Binding
	Reload   key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:     key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "previous day")),
		Right:    key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "next day")),
		PrevWeek: key.NewBinding(key.WithKeys("["), key.WithHelp("[", "previous week")),
		NextWeek: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "next week")),
		Click:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Toggle:   key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "add/remove")),
		Focus:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "grid/constraints")),
		Members:  key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "pick members")),
		Write:    key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "propose picked members")),
		Assign:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "assign worker")),
		Unassign: key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "unassign")),
		Lock:     key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "lock/unlock")),
		Commit:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "commit constraint")),
		Revert:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back/clear")),
		Reload:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Click, k.Toggle, k.PrevWeek, k.NextWeek, k.Focus, k.Members, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right, k.PrevWeek, k.NextWeek},
		{k.Click, k.Toggle, k.Focus, k.Revert},
		{k.Assign, k.Unassign, k.Lock},
		{k.Members, k.Write, k.Commit, k.Reload},
		{k.Help, k.Quit},
	}
}
