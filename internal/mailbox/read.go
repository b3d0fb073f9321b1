package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
)

// maxBackoff caps the delay between read retries.
const maxBackoff = 5 * time.Second

// ListFolder returns identity's view of folder, newest first, narrowed by
// query when non-empty.
func (s *Synchronizer) ListFolder(ctx context.Context, identity string, folder model.Folder, query string) ([]model.Email, error) {
	if identity == "" {
		return nil, ErrNoIdentity
	}
	if !folder.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFolder, folder)
	}

	ctx, _, gen, done := s.track(ctx)
	defer done()

	return s.list(ctx, gen, identity, folder, query)
}

// SelectFolder is ListFolder for the view on screen. Selecting another
// folder cancels the previous selection's read.
func (s *Synchronizer) SelectFolder(ctx context.Context, identity string, folder model.Folder, query string) ([]model.Email, error) {
	if identity == "" {
		return nil, ErrNoIdentity
	}
	if !folder.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFolder, folder)
	}

	ctx, id, gen, done := s.track(ctx)
	defer done()

	s.mu.Lock()
	if prev, ok := s.inflight[s.active]; ok && s.active != id {
		prev()
	}
	s.active = id
	s.mu.Unlock()

	return s.list(ctx, gen, identity, folder, query)
}

func (s *Synchronizer) list(ctx context.Context, gen uint64, identity string, folder model.Folder, query string) ([]model.Email, error) {
	emails, err := s.fetch(ctx, identity, predicates(identity, folder))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return nil, context.Canceled
	}

	ids := make([]string, 0, len(emails))
	for _, e := range emails {
		s.absorbLocked(e)
		ids = append(ids, e.ID)
	}
	s.views[viewKey{identity, folder, query}] = ids

	return s.viewLocked(identity, folder, query, ids), nil
}

// FolderCounts returns the badge number of every sidebar folder.
func (s *Synchronizer) FolderCounts(ctx context.Context, identity string) (model.FolderCounts, error) {
	if identity == "" {
		return nil, ErrNoIdentity
	}

	ctx, _, gen, done := s.track(ctx)
	defer done()

	emails, err := s.fetch(ctx, identity, predicates(identity, model.FolderAll))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return nil, context.Canceled
	}

	local := make([]model.Email, 0, len(emails))
	for _, e := range emails {
		local = append(local, s.absorbLocked(e))
	}
	counts := Count(identity, local)
	s.counts[identity] = counts

	out := make(model.FolderCounts, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out, nil
}

// Get returns one email from identity's mailbox.
func (s *Synchronizer) Get(ctx context.Context, identity, id string) (model.Email, error) {
	if identity == "" {
		return model.Email{}, ErrNoIdentity
	}
	return s.visible(ctx, identity, id)
}

// visible returns the local copy of id when identity owns it, asking the
// store once when the cache has no answer.
func (s *Synchronizer) visible(ctx context.Context, identity, id string) (model.Email, error) {
	s.mu.Lock()
	if it, ok := s.items[id]; ok && Visible(identity, it.email) {
		e := it.email
		s.mu.Unlock()
		return e, nil
	}
	gen := s.generation
	s.mu.Unlock()

	emails, err := s.fetch(ctx, identity, []entity.Predicate{{"id": id}})
	if err != nil {
		return model.Email{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return model.Email{}, context.Canceled
	}
	for _, e := range emails {
		if e.ID == id && Visible(identity, e) {
			return s.absorbLocked(e), nil
		}
	}
	return model.Email{}, ErrNotVisible
}

// fetch runs every predicate with retries and returns the deduplicated
// union.
func (s *Synchronizer) fetch(ctx context.Context, identity string, preds []entity.Predicate) ([]model.Email, error) {
	seen := make(map[string]bool)
	var out []model.Email

	for _, pred := range preds {
		recs, err := s.readWithRetry(ctx, func(ctx context.Context) ([]entity.Record, error) {
			return s.store.Filter(ctx, entity.KindEmail, pred, entity.NewestFirst)
		})
		if err != nil {
			return nil, err
		}

		emails, err := entity.DecodeAll[model.Email](recs)
		if err != nil {
			return nil, err
		}
		for _, e := range emails {
			if e.ID == "" || seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			out = append(out, e)
		}
	}

	logrus.WithFields(logrus.Fields{"identity": identity, "count": len(out)}).Debug("mailbox fetched")
	return out, nil
}

// readWithRetry runs read under a per-attempt timeout and retries
// NetworkErrors with exponential backoff.
func (s *Synchronizer) readWithRetry(ctx context.Context, read func(context.Context) ([]entity.Record, error)) ([]entity.Record, error) {
	backoff := s.opts.RetryBackoff

	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.ReadTimeout)
		recs, err := read(attemptCtx)
		cancel()

		if err == nil {
			return recs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = &entity.NetworkError{Op: "read", Err: err}
		}
		if !entity.IsNetworkError(err) || attempt >= s.opts.ReadRetries {
			return nil, err
		}

		logrus.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"wait":    backoff,
		}).WithError(err).Warn("mailbox read failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
