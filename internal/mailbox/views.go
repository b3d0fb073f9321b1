package mailbox

import (
	"slices"
	"strings"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
)

// Matches reports whether e belongs in identity's view of folder. Every view
// first requires the record to be identity's own copy.
func Matches(identity string, folder model.Folder, e model.Email) bool {
	if identity == "" || e.Owner() != identity {
		return false
	}

	switch folder {
	case model.FolderStarred:
		// Only received mail can be starred into view. Trashed mail is left
		// out so trash stays the only folder view that shows it.
		return e.ToAddress == identity && e.IsStarred && e.Folder != model.FolderTrash
	case model.FolderSent:
		return e.FromAddress == identity && e.Folder == model.FolderSent
	case model.FolderAll:
		return e.FromAddress == identity || e.ToAddress == identity
	case model.FolderTrash:
		return e.Folder == model.FolderTrash
	default:
		return e.ToAddress == identity && e.Folder == folder
	}
}

// MatchesQuery is the case-insensitive search over subject, sender name,
// sender address and body. An empty query matches everything.
func MatchesQuery(e model.Email, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	for _, field := range []string{e.Subject, e.FromDisplayName, e.FromAddress, e.Body} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Visible reports whether identity may see or change e at all.
func Visible(identity string, e model.Email) bool {
	return Matches(identity, model.FolderAll, e)
}

// SortNewestFirst orders by created_at descending, keeping input order for
// ties.
func SortNewestFirst(emails []model.Email) {
	slices.SortStableFunc(emails, func(a, b model.Email) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

// Count computes every sidebar badge from identity's records. Inbox counts
// unread mail only.
func Count(identity string, emails []model.Email) model.FolderCounts {
	counts := model.FolderCounts{}
	for _, f := range model.Folders {
		if f == model.FolderAll {
			continue
		}
		counts[f] = 0
	}

	for _, e := range emails {
		for f := range counts {
			if !Matches(identity, f, e) {
				continue
			}
			if f == model.FolderInbox && e.IsRead {
				continue
			}
			counts[f]++
		}
	}
	return counts
}

// predicates returns the store filters whose union is a superset of the
// folder's view. Matches narrows the result.
func predicates(identity string, folder model.Folder) []entity.Predicate {
	switch folder {
	case model.FolderStarred:
		return []entity.Predicate{{"to_address": identity, "is_starred": true}}
	case model.FolderSent:
		return []entity.Predicate{{"from_address": identity, "folder": string(model.FolderSent)}}
	case model.FolderAll:
		return []entity.Predicate{{"from_address": identity}, {"to_address": identity}}
	case model.FolderTrash:
		// Legacy records lack owner_address, so look on both sides.
		return []entity.Predicate{
			{"to_address": identity, "folder": string(model.FolderTrash)},
			{"from_address": identity, "folder": string(model.FolderTrash)},
		}
	default:
		return []entity.Predicate{{"to_address": identity, "folder": string(folder)}}
	}
}
