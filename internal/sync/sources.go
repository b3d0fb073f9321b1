package sync

import (
	"context"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/inbound"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
)

// Invalidator drops cached views of an identity.
type Invalidator interface {
	Invalidate(identity string)
}

// ImportSource polls an inbound importer. Imported mail invalidates the
// target's cached views so the next read sees it.
type ImportSource struct {
	imp *inbound.Importer
	inv Invalidator
}

// NewImportSource wraps imp. inv may be nil.
func NewImportSource(imp *inbound.Importer, inv Invalidator) *ImportSource {
	return &ImportSource{imp: imp, inv: inv}
}

// ImportSourceID is the poller id of the importer with id.
func ImportSourceID(id string) string { return "import:" + id }

func (s *ImportSource) ID() string { return ImportSourceID(s.imp.ID()) }

func (s *ImportSource) Poll(ctx context.Context) (Outcome, error) {
	res, err := s.imp.Import(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if res.Imported > 0 && s.inv != nil {
		s.inv.Invalidate(s.imp.Target())
	}
	return Outcome{Identity: s.imp.Target(), NewItems: res.Imported}, nil
}

// CountsFunc computes the folder badges of identity.
type CountsFunc func(ctx context.Context, identity string) (model.FolderCounts, error)

// CountsSource refreshes the folder badges of whoever is signed in.
type CountsSource struct {
	identity func() string
	counts   CountsFunc
}

// NewCountsSource returns a source reading counts for identity(). Nothing
// is fetched while identity() is empty.
func NewCountsSource(identity func() string, counts CountsFunc) *CountsSource {
	return &CountsSource{identity: identity, counts: counts}
}

func (s *CountsSource) ID() string { return "counts" }

func (s *CountsSource) Poll(ctx context.Context) (Outcome, error) {
	id := s.identity()
	if id == "" {
		return Outcome{}, nil
	}
	counts, err := s.counts(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Identity: id, Counts: counts}, nil
}
