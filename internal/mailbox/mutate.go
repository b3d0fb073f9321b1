package mailbox

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
)

// MarkRead marks one of identity's emails as read.
func (s *Synchronizer) MarkRead(ctx context.Context, identity, id string) (model.Email, error) {
	return s.mutate(ctx, identity, id, func(model.Email) entity.Record {
		return entity.Record{fieldIsRead: true}
	})
}

// ToggleStar flips the star of one of identity's emails.
func (s *Synchronizer) ToggleStar(ctx context.Context, identity, id string) (model.Email, error) {
	return s.mutate(ctx, identity, id, func(cur model.Email) entity.Record {
		return entity.Record{fieldIsStarred: !cur.IsStarred}
	})
}

// MoveToTrash moves one of identity's emails to trash. Nothing is deleted.
func (s *Synchronizer) MoveToTrash(ctx context.Context, identity, id string) (model.Email, error) {
	return s.mutate(ctx, identity, id, func(model.Email) entity.Record {
		return entity.Record{fieldFolder: string(model.FolderTrash)}
	})
}

// mutate applies the patch built from the current local state to the
// cache, sends it, then reconciles: merge on success, roll back on
// failure. Writes are never retried.
func (s *Synchronizer) mutate(ctx context.Context, identity, id string, build func(model.Email) entity.Record) (model.Email, error) {
	if identity == "" {
		return model.Email{}, ErrNoIdentity
	}
	if _, err := s.visible(ctx, identity, id); err != nil {
		return model.Email{}, err
	}

	s.mu.Lock()
	it, ok := s.items[id]
	if !ok || !Visible(identity, it.email) {
		s.mu.Unlock()
		return model.Email{}, ErrNotVisible
	}
	s.seq++
	seq := s.seq
	gen := s.generation

	patch := build(it.email)
	if it.email.OwnerAddress == "" {
		// Owner() falls back on folder, so pin it before folder can move.
		patch[fieldOwner] = it.email.Owner()
	}
	for field, v := range patch {
		it.pending[field] = append(it.pending[field], pendingWrite{seq: seq, before: getField(&it.email, field)})
		setField(&it.email, field, v)
	}
	s.invalidateLocked(identity)
	s.mu.Unlock()

	rec, err := s.store.Update(ctx, entity.KindEmail, id, patch)

	var server model.Email
	if err == nil {
		server, err = entity.Decode[model.Email](rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		// The identity went away while the write was in flight.
		if err != nil {
			return model.Email{}, err
		}
		return server, nil
	}

	if err != nil {
		s.rollbackLocked(it, seq, patch)
		s.invalidateLocked(identity)
		logrus.WithFields(logrus.Fields{
			"id":    id,
			"seq":   seq,
			"patch": patch,
		}).WithError(err).Warn("mailbox update failed, rolled back")
		return it.email, fmt.Errorf("updating email: %w", err)
	}

	if applyErr := s.applyLocked(it, seq, patch, server); applyErr != nil {
		logrus.WithFields(logrus.Fields{"id": id, "seq": seq, "last_applied": it.lastApplied}).
			Debug(applyErr.Error())
	}
	s.invalidateLocked(identity)
	return it.email, nil
}

// applyLocked merges a successful response. A response older than one
// already merged is dropped with ErrStaleMutation. Fields with newer writes
// still in flight keep their local value.
func (s *Synchronizer) applyLocked(it *item, seq uint64, patch entity.Record, server model.Email) error {
	for field := range patch {
		resolveLocked(it, field, seq, true)
	}

	if seq < it.lastApplied {
		return ErrStaleMutation
	}
	it.lastApplied = seq

	merged := server
	for field, writes := range it.pending {
		if len(writes) > 0 {
			setField(&merged, field, getField(&it.email, field))
		}
	}
	it.email = merged

	// Writes queued behind this one now roll back to the confirmed value.
	for field, writes := range it.pending {
		if len(writes) > 0 {
			writes[0].before = getField(&server, field)
		}
	}
	return nil
}

// rollbackLocked undoes the failed write seq. Only fields whose value
// still comes from seq are restored; a later write already replaced the
// others and inherits seq's prior value instead.
func (s *Synchronizer) rollbackLocked(it *item, seq uint64, patch entity.Record) {
	for field := range patch {
		resolveLocked(it, field, seq, false)
	}
}

// resolveLocked removes write seq from field's queue. On success the older
// writes are superseded and dropped too. On failure the field is restored
// when seq was the newest write, otherwise its successor takes over seq's
// prior value.
func resolveLocked(it *item, field string, seq uint64, succeeded bool) {
	writes := it.pending[field]

	idx := -1
	for i, w := range writes {
		if w.seq == seq {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	switch {
	case succeeded:
		writes = writes[idx+1:]
	case idx == len(writes)-1:
		setField(&it.email, field, writes[idx].before)
		writes = writes[:idx]
	default:
		writes[idx+1].before = writes[idx].before
		writes = append(writes[:idx], writes[idx+1:]...)
	}

	if len(writes) == 0 {
		delete(it.pending, field)
		return
	}
	it.pending[field] = writes
}
