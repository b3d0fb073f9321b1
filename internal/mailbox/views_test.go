package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
)

const (
	alice = "kaspa:qalice"
	bob   = "kaspa:qbob"
	carol = "kaspa:qcarol"
)

func TestMatches(t *testing.T) {
	received := model.Email{FromAddress: bob, ToAddress: alice, Folder: model.FolderInbox, OwnerAddress: alice}
	starred := received
	starred.IsStarred = true
	sent := model.Email{FromAddress: alice, ToAddress: bob, Folder: model.FolderSent, OwnerAddress: alice}
	trashedStar := starred
	trashedStar.Folder = model.FolderTrash
	spam := received
	spam.Folder = model.FolderSpam
	legacyInbox := model.Email{FromAddress: bob, ToAddress: alice, Folder: model.FolderInbox}

	tests := []struct {
		name   string
		folder model.Folder
		email  model.Email
		want   bool
	}{
		{"inbox shows received", model.FolderInbox, received, true},
		{"inbox hides sent", model.FolderInbox, sent, false},
		{"starred needs star", model.FolderStarred, received, false},
		{"starred shows starred", model.FolderStarred, starred, true},
		{"starred hides trashed", model.FolderStarred, trashedStar, false},
		{"sent shows own sent", model.FolderSent, sent, true},
		{"sent hides received", model.FolderSent, received, false},
		{"spam shows spam", model.FolderSpam, spam, true},
		{"trash shows trashed", model.FolderTrash, trashedStar, true},
		{"trash hides inbox", model.FolderTrash, received, false},
		{"all shows received", model.FolderAll, received, true},
		{"all shows sent", model.FolderAll, sent, true},
		{"all shows trashed", model.FolderAll, trashedStar, true},
		{"legacy record falls back to recipient", model.FolderInbox, legacyInbox, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(alice, tt.folder, tt.email))
		})
	}
}

func TestMatchesRequiresOwnership(t *testing.T) {
	// bob's copy of a message alice sent him.
	bobsCopy := model.Email{FromAddress: alice, ToAddress: bob, Folder: model.FolderInbox, OwnerAddress: bob}

	for _, f := range model.Folders {
		assert.False(t, Matches(alice, f, bobsCopy), "folder %s", f)
		assert.False(t, Matches(carol, f, bobsCopy), "folder %s", f)
	}
	assert.True(t, Matches(bob, model.FolderInbox, bobsCopy))
	assert.False(t, Matches("", model.FolderAll, bobsCopy))
}

func TestMatchesQuery(t *testing.T) {
	e := model.Email{
		Subject:         "Budget Q3",
		FromDisplayName: "Bob Builder",
		FromAddress:     bob,
		Body:            "numbers attached",
	}

	assert.True(t, MatchesQuery(e, ""))
	assert.True(t, MatchesQuery(e, "  "))
	assert.True(t, MatchesQuery(e, "budget"))
	assert.True(t, MatchesQuery(e, "BUILDER"))
	assert.True(t, MatchesQuery(e, "qbob"))
	assert.True(t, MatchesQuery(e, "Attached"))
	assert.False(t, MatchesQuery(e, "hello"))
}

func TestSortNewestFirst(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	emails := []model.Email{
		{ID: "a", CreatedAt: t0},
		{ID: "b", CreatedAt: t0.Add(2 * time.Hour)},
		{ID: "c", CreatedAt: t0.Add(time.Hour)},
		{ID: "d", CreatedAt: t0.Add(time.Hour)},
	}

	SortNewestFirst(emails)

	var ids []string
	for _, e := range emails {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"b", "c", "d", "a"}, ids)
}

func TestCount(t *testing.T) {
	emails := []model.Email{
		{FromAddress: bob, ToAddress: alice, Folder: model.FolderInbox, OwnerAddress: alice},
		{FromAddress: bob, ToAddress: alice, Folder: model.FolderInbox, OwnerAddress: alice, IsRead: true, IsStarred: true},
		{FromAddress: alice, ToAddress: bob, Folder: model.FolderSent, OwnerAddress: alice, IsRead: true},
		{FromAddress: carol, ToAddress: alice, Folder: model.FolderTrash, OwnerAddress: alice},
		{FromAddress: alice, ToAddress: bob, Folder: model.FolderInbox, OwnerAddress: bob},
	}

	counts := Count(alice, emails)

	assert.Equal(t, 1, counts[model.FolderInbox], "inbox counts unread only")
	assert.Equal(t, 1, counts[model.FolderStarred])
	assert.Equal(t, 1, counts[model.FolderSent])
	assert.Equal(t, 1, counts[model.FolderTrash])
	assert.Equal(t, 0, counts[model.FolderSpam])
	_, hasAll := counts[model.FolderAll]
	assert.False(t, hasAll)
}
