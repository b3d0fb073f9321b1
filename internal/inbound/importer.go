package inbound

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/mailbox"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
)

// DefaultImportLimit is how many recent messages one import looks at.
const DefaultImportLimit = 50

// ErrNoTarget is returned when a source names no identity to import into.
var ErrNoTarget = errors.New("source has no target_address")

// ImportResult counts what one import run did.
type ImportResult struct {
	Imported int
	Skipped  int
}

// Importer copies messages from an external mailbox into one identity's
// inbox, skipping messages imported before.
type Importer struct {
	id     string
	store  entity.Store
	source Mailbox
	target string
	limit  int
}

// NewImporter returns an Importer for source id filing into target's inbox.
func NewImporter(id string, store entity.Store, source Mailbox, target string) *Importer {
	return &Importer{
		id:     id,
		store:  store,
		source: source,
		target: target,
		limit:  DefaultImportLimit,
	}
}

// ID returns the source id.
func (i *Importer) ID() string { return i.id }

// Target returns the identity the importer files into.
func (i *Importer) Target() string { return i.target }

// Import runs one pass. Messages already present, by external id, are
// skipped; the rest are created unread unless the source had seen them.
func (i *Importer) Import(ctx context.Context) (ImportResult, error) {
	var res ImportResult
	if i.target == "" {
		return res, ErrNoTarget
	}

	msgs, err := i.source.Recent(ctx, i.limit)
	if err != nil {
		return res, fmt.Errorf("reading source %s: %w", i.id, err)
	}

	for _, m := range msgs {
		extID := i.externalID(m)

		existing, err := i.store.Filter(ctx, entity.KindEmail, entity.Predicate{
			"to_address":  i.target,
			"external_id": extID,
		}, "")
		if err != nil {
			return res, fmt.Errorf("checking %s: %w", extID, err)
		}
		if len(existing) > 0 {
			res.Skipped++
			continue
		}

		rec, err := entity.Encode(i.toEmail(m, extID))
		if err != nil {
			return res, err
		}
		delete(rec, "id")
		delete(rec, "created_at")
		rec["value_transferred"] = nil

		if _, err := i.store.Create(ctx, entity.KindEmail, rec); err != nil {
			return res, fmt.Errorf("importing %s: %w", extID, err)
		}
		res.Imported++
	}

	logrus.WithFields(logrus.Fields{
		"source":   i.id,
		"imported": res.Imported,
		"skipped":  res.Skipped,
	}).Debug("import finished")
	return res, nil
}

func (i *Importer) externalID(m Message) string {
	if m.MessageID != "" {
		return m.MessageID
	}
	return fmt.Sprintf("%s/%d", i.id, m.UID)
}

func (i *Importer) toEmail(m Message, extID string) model.Email {
	body := m.HTMLBody
	if body == "" {
		body = mailbox.RenderBody(m.TextBody)
	}
	subject := m.Subject
	if subject == "" {
		subject = "(no subject)"
	}

	return model.Email{
		FromAddress:     m.FromAddr,
		FromDisplayName: m.FromName,
		ToAddress:       i.target,
		Subject:         subject,
		Body:            body,
		Preview:         mailbox.Preview(m.TextBody),
		Folder:          model.FolderInbox,
		IsRead:          m.Seen,
		Attachments:     m.Attachments,
		OwnerAddress:    i.target,
		ExternalID:      extID,
	}
}
