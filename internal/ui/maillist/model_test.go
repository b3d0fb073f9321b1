package maillist

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/keys"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
)

const me = "kaspa:qme"

type fakeMailbox struct {
	emails []model.Email
	cached []model.Email
}

func (f *fakeMailbox) SelectFolder(context.Context, string, model.Folder, string) ([]model.Email, error) {
	return f.emails, nil
}

func (f *fakeMailbox) Cached(string, model.Folder, string) ([]model.Email, bool) {
	return f.cached, f.cached != nil
}

func inboxMail(id string) model.Email {
	return model.Email{ID: id, Subject: "subject " + id, FromAddress: "kaspa:qother", ToAddress: me, Folder: model.FolderInbox}
}

func loaded(t *testing.T, m Model) Model {
	t.Helper()
	cmd := m.Load()
	require.NotNil(t, cmd)
	m, _ = m.Update(cmd())
	return m
}

func ids(m Model) []string {
	var out []string
	for _, it := range m.list.Items() {
		out = append(out, it.(EmailItem).Email.ID)
	}
	return out
}

func TestLoadShowsCacheThenResult(t *testing.T) {
	mb := &fakeMailbox{cached: []model.Email{inboxMail("a")}, emails: []model.Email{inboxMail("a"), inboxMail("b")}}
	m := New(mb, keys.DefaultKeyMap(), 80, 24)
	m.identity = me

	cmd := m.Load()
	assert.Equal(t, []string{"a"}, ids(m))

	m, _ = m.Update(cmd())
	assert.Equal(t, []string{"a", "b"}, ids(m))
	assert.False(t, m.loading)
}

func TestStaleResultIgnored(t *testing.T) {
	m := New(&fakeMailbox{}, keys.DefaultKeyMap(), 80, 24)
	m.identity = me

	m, _ = m.Update(EmailsLoadedMsg{Identity: me, Folder: model.FolderSent, Emails: []model.Email{inboxMail("x")}})
	assert.Empty(t, ids(m))

	m, _ = m.Update(EmailsLoadedMsg{Identity: "kaspa:qsomeoneelse", Folder: model.FolderInbox, Emails: []model.Email{inboxMail("x")}})
	assert.Empty(t, ids(m))
}

func TestFolderCycling(t *testing.T) {
	m := New(&fakeMailbox{}, keys.DefaultKeyMap(), 80, 24)
	m.identity = me

	assert.Equal(t, model.FolderStarred, m.shiftFolder(1))
	assert.Equal(t, model.FolderAll, m.shiftFolder(-1))

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.NotNil(t, cmd)
	assert.Equal(t, model.FolderStarred, m.Folder())
}

func TestPatchDropsMessagesLeavingFolder(t *testing.T) {
	mb := &fakeMailbox{emails: []model.Email{inboxMail("a"), inboxMail("b")}}
	m := New(mb, keys.DefaultKeyMap(), 80, 24)
	m.identity = me
	m = loaded(t, m)

	m.Patch([]string{"a"}, func(e *model.Email) { e.IsRead = true })
	require.Equal(t, []string{"a", "b"}, ids(m))
	assert.True(t, m.list.Items()[0].(EmailItem).Email.IsRead)

	m.Patch([]string{"b"}, func(e *model.Email) { e.Folder = model.FolderTrash })
	assert.Equal(t, []string{"a"}, ids(m))
}

func TestMarkAndTargets(t *testing.T) {
	mb := &fakeMailbox{emails: []model.Email{inboxMail("a"), inboxMail("b"), inboxMail("c")}}
	m := New(mb, keys.DefaultKeyMap(), 80, 24)
	m.identity = me
	m = loaded(t, m)

	assert.Equal(t, []string{"a"}, m.targets("a"))

	space := tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	m, _ = m.Update(space)
	m, _ = m.Update(space)
	assert.Equal(t, []string{"a", "b"}, m.Marked())
	assert.Equal(t, []string{"a", "b"}, m.targets("c"))

	// A reload without b forgets its mark.
	mb.emails = []model.Email{inboxMail("a"), inboxMail("c")}
	m = loaded(t, m)
	assert.Equal(t, []string{"a"}, m.Marked())

	m.ClearMarks()
	assert.Empty(t, m.Marked())
}

func TestUnread(t *testing.T) {
	read := inboxMail("r")
	read.IsRead = true
	m := New(&fakeMailbox{emails: []model.Email{inboxMail("u"), read}}, keys.DefaultKeyMap(), 80, 24)
	m.identity = me
	m = loaded(t, m)

	assert.Equal(t, []string{"u"}, m.Unread())
}
