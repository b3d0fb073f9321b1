package maillist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/theme"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/wallet"
)

// EmailItem wraps a model.Email so it can be used in a bubbles/list.
type EmailItem struct {
	Email  model.Email
	Marked bool

	// Outgoing shows the recipient instead of the sender.
	Outgoing bool
}

// FilterValue returns the string used for fuzzy filtering.
func (i EmailItem) FilterValue() string { return i.Email.Subject }

// Title returns the subject for the list.
func (i EmailItem) Title() string { return i.Email.Subject }

// Description returns the correspondent and age.
func (i EmailItem) Description() string {
	return strings.Join([]string{i.correspondent(), relativeTime(i.Email.CreatedAt)}, " | ")
}

func (i EmailItem) correspondent() string {
	if i.Outgoing {
		return "To: " + wallet.Short(i.Email.ToAddress)
	}
	if i.Email.FromDisplayName != "" {
		return i.Email.FromDisplayName
	}
	return wallet.Short(i.Email.FromAddress)
}

// ItemDelegate implements list.ItemDelegate for rendering one line per
// message.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single message line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(EmailItem)
	if !ok {
		return
	}
	e := it.Email

	mark := " "
	if it.Marked {
		mark = "*"
	}

	star := " "
	if e.IsStarred {
		star = theme.StarStyle.Render("★")
	}

	unread := " "
	if !e.IsRead && !it.Outgoing {
		unread = lipgloss.NewStyle().Foreground(theme.ColorBlue).Render("●")
	}

	who := theme.AddressStyle(strings.Contains(e.FromAddress, ":")).
		Width(22).
		Render(truncate(it.correspondent(), 21))

	value := ""
	if e.HasTransfer() {
		value = theme.ValueStyle.Render(" +" + e.ValueTransferred.String())
	}

	attach := ""
	if len(e.Attachments) > 0 {
		attach = theme.DimmedStyle.Render(fmt.Sprintf(" [%d]", len(e.Attachments)))
	}

	age := theme.DimmedStyle.Render(relativeTime(e.CreatedAt))

	subject := e.Subject
	if !e.IsRead && !it.Outgoing {
		subject = theme.UnreadStyle.Render(subject)
	}

	line := fmt.Sprintf("%s%s%s %s %s%s%s  %s", mark, unread, star, who, subject, value, attach, age)

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 02")
	}
}
