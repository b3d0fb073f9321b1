package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Folder names a mailbox view. Inbox, sent, drafts, spam and trash are
// stored on the record; starred and all are computed views.
type Folder string

const (
	FolderInbox   Folder = "inbox"
	FolderStarred Folder = "starred"
	FolderSent    Folder = "sent"
	FolderDrafts  Folder = "drafts"
	FolderSpam    Folder = "spam"
	FolderTrash   Folder = "trash"
	FolderAll     Folder = "all"
)

// Folders is the sidebar order.
var Folders = []Folder{
	FolderInbox,
	FolderStarred,
	FolderSent,
	FolderDrafts,
	FolderSpam,
	FolderTrash,
	FolderAll,
}

// Stored reports whether f is a value an email record can carry in its
// folder field.
func (f Folder) Stored() bool {
	switch f {
	case FolderInbox, FolderSent, FolderDrafts, FolderSpam, FolderTrash:
		return true
	}
	return false
}

// Valid reports whether f names a known view.
func (f Folder) Valid() bool {
	return f.Stored() || f == FolderStarred || f == FolderAll
}

// Title returns the display name of the folder.
func (f Folder) Title() string {
	switch f {
	case FolderInbox:
		return "Inbox"
	case FolderStarred:
		return "Starred"
	case FolderSent:
		return "Sent"
	case FolderDrafts:
		return "Drafts"
	case FolderSpam:
		return "Spam"
	case FolderTrash:
		return "Trash"
	case FolderAll:
		return "All Mail"
	}
	return string(f)
}

// Attachment references a file stored outside the entity store.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Email is a single physical mail record. A user-to-user send produces two
// of these: the sender's sent copy and the recipient's inbox copy.
type Email struct {
	// ID is assigned by the entity store.
	ID string `json:"id,omitempty"`

	FromAddress     string `json:"from_address"`
	FromDisplayName string `json:"from_display_name,omitempty"`
	ToAddress       string `json:"to_address"`

	Subject string `json:"subject"`

	// Body is HTML. Preview is the first 100 characters of the plain body.
	Body    string `json:"body"`
	Preview string `json:"preview"`

	Folder    Folder `json:"folder"`
	IsRead    bool   `json:"is_read"`
	IsStarred bool   `json:"is_starred"`

	Attachments []Attachment `json:"attachments,omitempty"`

	// ValueTransferred is the amount sent alongside the message. Zero
	// means no transfer happened.
	ValueTransferred decimal.Decimal `json:"value_transferred"`

	// TransferID is the wallet transaction that carried ValueTransferred.
	TransferID string `json:"transfer_id,omitempty"`

	// OwnerAddress is the identity whose mailbox holds this record.
	OwnerAddress string `json:"owner_address,omitempty"`

	// ExternalID identifies the message in the system it was imported from.
	ExternalID string `json:"external_id,omitempty"`

	// CreatedAt is assigned by the entity store and never changes.
	CreatedAt time.Time `json:"created_at"`
}

// Owner returns the identity whose mailbox holds the record. Records
// written before owner_address existed belong to the sender when filed
// under sent and to the recipient otherwise.
func (e Email) Owner() string {
	if e.OwnerAddress != "" {
		return e.OwnerAddress
	}
	if e.Folder == FolderSent {
		return e.FromAddress
	}
	return e.ToAddress
}

// HasTransfer reports whether the email carried value.
func (e Email) HasTransfer() bool {
	return e.ValueTransferred.IsPositive()
}

// FolderCounts holds the badge number of every sidebar folder.
type FolderCounts map[Folder]int

// Draft is the user's input to a send.
type Draft struct {
	To              string          `json:"to" validate:"required"`
	Subject         string          `json:"subject" validate:"required"`
	Body            string          `json:"body"`
	FromDisplayName string          `json:"from_display_name,omitempty"`
	Attachments     []Attachment    `json:"attachments,omitempty" validate:"dive"`
	Value           decimal.Decimal `json:"value"`
	TransferID      string          `json:"transfer_id,omitempty"`
}
