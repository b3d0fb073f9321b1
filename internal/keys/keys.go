package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the bindings shared by every view. Views with their own keys
// (contacts, sources) define them locally.
type KeyMap struct {
	Down, Up               key.Binding
	NextFolder, PrevFolder key.Binding
	Select, Mark           key.Binding
	Back, Quit             key.Binding
	Search, Command, Help  key.Binding
	Refresh                key.Binding

	Compose  key.Binding
	Star     key.Binding
	MarkRead key.Binding
	Trash    key.Binding
	Scan     key.Binding
	Reply    key.Binding

	Contacts key.Binding
	Sources  key.Binding
}

func bind(label, desc string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(label, desc))
}

// DefaultKeyMap returns the stock bindings, vi style with arrow fallbacks.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down:       bind("j/↓", "down", "j", "down"),
		Up:         bind("k/↑", "up", "k", "up"),
		NextFolder: bind("tab", "next folder", "tab", "l"),
		PrevFolder: bind("shift+tab", "previous folder", "shift+tab", "h"),
		Select:     bind("enter", "open message", "enter"),
		Mark:       bind("space", "mark for bulk action", " "),
		Back:       bind("esc", "back", "esc"),
		Quit:       bind("q", "quit", "q"),
		Search:     bind("/", "search", "/"),
		Command:    bind(":", "command palette", ":"),
		Help:       bind("?", "toggle help", "?"),
		Refresh:    bind("r", "refresh", "r"),

		Compose:  bind("n", "compose", "n"),
		Star:     bind("s", "star / unstar", "s"),
		MarkRead: bind("m", "mark read", "m"),
		Trash:    bind("d", "move to trash", "d"),
		Scan:     bind("x", "security scan", "x"),
		Reply:    bind("R", "reply", "R"),

		Contacts: bind("b", "address book", "b"),
		Sources:  bind("S", "imported mailboxes", "S"),
	}
}

// ShortHelp implements help.KeyMap.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Compose, k.Search, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap, one column per group.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.NextFolder, k.PrevFolder, k.Select, k.Back, k.Quit},
		{k.Search, k.Command, k.Help, k.Refresh},
		{k.Compose, k.Star, k.MarkRead, k.Trash, k.Mark, k.Scan, k.Reply},
		{k.Contacts, k.Sources},
	}
}
