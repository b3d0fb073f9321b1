// Package addressbook stores each identity's contacts and labels.
package addressbook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/validate"
)

// UnnamedContact is the display name given to a contact saved without one.
const UnnamedContact = "Unnamed Contact"

var (
	// ErrNoIdentity is returned when an operation is called without an
	// identity.
	ErrNoIdentity = errors.New("no identity: connect a wallet or log in")

	// ErrNotFound is returned when a contact does not exist in the
	// identity's address book.
	ErrNotFound = errors.New("contact not found")
)

type contactInput struct {
	Name    string `json:"display_name" validate:"max=100"`
	Address string `json:"target_address" validate:"required,wallet|email"`
}

type labelInput struct {
	Name  string `json:"name" validate:"required,max=50"`
	Color string `json:"color" validate:"required,hexcolor"`
}

// Book reads and writes address book records through an entity store.
type Book struct {
	store entity.Store
}

// New returns a Book over store.
func New(store entity.Store) *Book {
	return &Book{store: store}
}

// Contacts returns identity's contacts, newest first.
func (b *Book) Contacts(ctx context.Context, identity string) ([]model.Contact, error) {
	if identity == "" {
		return nil, ErrNoIdentity
	}
	recs, err := b.store.Filter(ctx, entity.KindContact, entity.Predicate{"owner_address": identity}, entity.NewestFirst)
	if err != nil {
		return nil, fmt.Errorf("listing contacts: %w", err)
	}
	return entity.DecodeAll[model.Contact](recs)
}

// AddContact saves address under name in identity's address book.
func (b *Book) AddContact(ctx context.Context, identity, name, address string) (model.Contact, error) {
	if identity == "" {
		return model.Contact{}, ErrNoIdentity
	}

	in := contactInput{Name: strings.TrimSpace(name), Address: strings.TrimSpace(address)}
	if err := validate.Struct(in); err != nil {
		return model.Contact{}, err
	}
	if in.Name == "" {
		in.Name = UnnamedContact
	}

	rec, err := b.store.Create(ctx, entity.KindContact, entity.Record{
		"owner_address":  identity,
		"display_name":   in.Name,
		"target_address": in.Address,
	})
	if err != nil {
		return model.Contact{}, fmt.Errorf("saving contact: %w", err)
	}

	logrus.WithField("owner", identity).Debug("contact added")
	return entity.Decode[model.Contact](rec)
}

// DeleteContact removes one of identity's contacts. Contacts of other
// identities are reported as not found.
func (b *Book) DeleteContact(ctx context.Context, identity, id string) error {
	if identity == "" {
		return ErrNoIdentity
	}

	recs, err := b.store.Filter(ctx, entity.KindContact, entity.Predicate{"id": id, "owner_address": identity}, "")
	if err != nil {
		return fmt.Errorf("looking up contact: %w", err)
	}
	if len(recs) == 0 {
		return ErrNotFound
	}

	if err := b.store.Delete(ctx, entity.KindContact, id); err != nil {
		if entity.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting contact: %w", err)
	}
	return nil
}

// Labels returns identity's labels, newest first.
func (b *Book) Labels(ctx context.Context, identity string) ([]model.Label, error) {
	if identity == "" {
		return nil, ErrNoIdentity
	}
	recs, err := b.store.Filter(ctx, entity.KindLabel, entity.Predicate{"owner_address": identity}, entity.NewestFirst)
	if err != nil {
		return nil, fmt.Errorf("listing labels: %w", err)
	}
	return entity.DecodeAll[model.Label](recs)
}

// CreateLabel adds a label. An empty color becomes model.DefaultLabelColor.
func (b *Book) CreateLabel(ctx context.Context, identity, name, color string) (model.Label, error) {
	if identity == "" {
		return model.Label{}, ErrNoIdentity
	}

	in := labelInput{Name: strings.TrimSpace(name), Color: strings.TrimSpace(color)}
	if in.Color == "" {
		in.Color = model.DefaultLabelColor
	}
	if err := validate.Struct(in); err != nil {
		return model.Label{}, err
	}

	rec, err := b.store.Create(ctx, entity.KindLabel, entity.Record{
		"name":          in.Name,
		"color":         in.Color,
		"owner_address": identity,
	})
	if err != nil {
		return model.Label{}, fmt.Errorf("saving label: %w", err)
	}
	return entity.Decode[model.Label](rec)
}
