package mailbox

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/relay"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/validate"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/wallet"
)

// previewLength is the number of characters kept in Email.Preview.
const previewLength = 100

// SendEmail delivers draft from identity and returns the sender's copy.
//
// A wallet recipient gets an inbox copy of their own next to the sender's
// sent copy. Any other recipient goes through the relay first; only the
// sent copy is stored. A draft carrying value must already hold the id of
// the wallet transfer.
func (s *Synchronizer) SendEmail(ctx context.Context, identity string, draft model.Draft) (model.Email, error) {
	if identity == "" {
		return model.Email{}, ErrNoIdentity
	}

	draft.To = strings.TrimSpace(draft.To)
	draft.Subject = strings.TrimSpace(draft.Subject)
	if err := validate.Struct(draft); err != nil {
		return model.Email{}, err
	}
	if draft.Value.IsNegative() {
		return model.Email{}, &validate.Error{Problems: []string{"value must not be negative"}}
	}
	if draft.Value.IsPositive() && draft.TransferID == "" {
		return model.Email{}, ErrTransferMissing
	}

	body := RenderBody(draft.Body)
	sent := model.Email{
		FromAddress:      identity,
		FromDisplayName:  draft.FromDisplayName,
		ToAddress:        draft.To,
		Subject:          draft.Subject,
		Body:             body,
		Preview:          Preview(draft.Body),
		Folder:           model.FolderSent,
		IsRead:           true,
		Attachments:      draft.Attachments,
		ValueTransferred: draft.Value,
		TransferID:       draft.TransferID,
		OwnerAddress:     identity,
	}

	toWallet := wallet.IsAddress(draft.To, s.opts.AddressPrefixes)
	if !toWallet {
		if s.relay == nil {
			return model.Email{}, ErrNoRelay
		}
		err := s.relay.Deliver(ctx, relay.Message{
			From:     identity,
			FromName: draft.FromDisplayName,
			To:       draft.To,
			Subject:  draft.Subject,
			Text:     draft.Body,
			HTML:     body,
		})
		if err != nil {
			return model.Email{}, fmt.Errorf("relaying message: %w", err)
		}
	}

	created, err := s.create(ctx, sent)
	if err != nil {
		return model.Email{}, fmt.Errorf("storing sent copy: %w", err)
	}

	if toWallet {
		inbox := sent
		inbox.Folder = model.FolderInbox
		inbox.IsRead = false
		inbox.OwnerAddress = draft.To
		if _, err := s.create(ctx, inbox); err != nil {
			s.Invalidate(identity)
			return created, fmt.Errorf("sent copy stored but recipient copy failed: %w", err)
		}
	}

	s.mu.Lock()
	s.absorbLocked(created)
	s.invalidateLocked(identity)
	s.invalidateLocked(draft.To)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"from":   wallet.Short(identity),
		"to":     draft.To,
		"wallet": toWallet,
		"value":  draft.Value.String(),
	}).Info("message sent")
	return created, nil
}

func (s *Synchronizer) create(ctx context.Context, e model.Email) (model.Email, error) {
	rec, err := entity.Encode(e)
	if err != nil {
		return model.Email{}, err
	}
	delete(rec, "id")
	delete(rec, "created_at")
	if !e.ValueTransferred.IsPositive() {
		rec["value_transferred"] = nil
	}

	created, err := s.store.Create(ctx, entity.KindEmail, rec)
	if err != nil {
		return model.Email{}, err
	}
	return entity.Decode[model.Email](created)
}

// RenderBody escapes text and keeps its line breaks as <br>.
func RenderBody(text string) string {
	escaped := html.EscapeString(text)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	return strings.ReplaceAll(escaped, "\n", "<br>")
}

// Preview returns the first 100 characters of text.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength])
}

// ParseValue reads a user-entered amount. Empty input is zero.
func ParseValue(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
