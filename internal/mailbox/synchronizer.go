// Package mailbox computes folder views over the entity store and applies
// read, star and trash changes optimistically.
package mailbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/relay"
)

var (
	// ErrNotVisible is returned when a mutation names an email outside the
	// identity's own mailbox.
	ErrNotVisible = errors.New("email is not in your mailbox")

	// ErrStaleMutation marks a response overtaken by a newer one for the
	// same email. It never reaches the UI.
	ErrStaleMutation = errors.New("stale mutation response discarded")

	// ErrUnknownFolder is returned for folder names outside model.Folders.
	ErrUnknownFolder = errors.New("unknown folder")

	// ErrNoIdentity is returned when an operation is called without an
	// identity.
	ErrNoIdentity = errors.New("no identity: connect a wallet or log in")

	// ErrTransferMissing means a value-bearing send arrived without the
	// wallet transaction that carried the value.
	ErrTransferMissing = errors.New("value transfer must complete before the message is sent")

	// ErrNoRelay means the recipient needs a relay and none is configured.
	ErrNoRelay = errors.New("no relay configured for non-wallet recipients")
)

// Options tune a Synchronizer.
type Options struct {
	// ReadRetries is how many times a read is retried after a NetworkError.
	ReadRetries int

	// ReadTimeout bounds every read attempt.
	ReadTimeout time.Duration

	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration

	// BulkConcurrency caps in-flight requests of a BulkApply.
	BulkConcurrency int

	// AddressPrefixes identify wallet recipients.
	AddressPrefixes []string
}

func (o *Options) applyDefaults() {
	if o.ReadRetries < 0 {
		o.ReadRetries = 0
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 15 * time.Second
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 250 * time.Millisecond
	}
	if o.BulkConcurrency < 1 {
		o.BulkConcurrency = 6
	}
	if len(o.AddressPrefixes) == 0 {
		o.AddressPrefixes = []string{"kaspa:", "kaspatest:"}
	}
}

// OptionsFromConfig derives synchronizer options from the application config.
func OptionsFromConfig(cfg *model.AppConfig) Options {
	return Options{
		ReadRetries:     cfg.Sync.ReadRetries,
		ReadTimeout:     time.Duration(cfg.Sync.ReadTimeoutSec) * time.Second,
		BulkConcurrency: cfg.Sync.BulkConcurrency,
		AddressPrefixes: cfg.Wallet.AddressPrefixes,
	}
}

// pendingWrite is an unresolved change to one field. before is the local
// value the write replaced, used to roll back.
type pendingWrite struct {
	seq    uint64
	before any
}

// item is the local copy of one email.
type item struct {
	email model.Email

	// pending holds, per field, the unresolved writes oldest first.
	pending map[string][]pendingWrite

	// lastApplied is the highest sequence whose response was merged.
	lastApplied uint64
}

type viewKey struct {
	identity string
	folder   model.Folder
	query    string
}

// Synchronizer is the client-side mailbox model for the active identity.
// It is safe for concurrent use.
type Synchronizer struct {
	store entity.Store
	relay relay.Relay
	opts  Options

	mu         sync.Mutex
	generation uint64
	seq        uint64
	items      map[string]*item
	views      map[viewKey][]string
	counts     map[string]model.FolderCounts

	nextRead uint64
	inflight map[uint64]context.CancelFunc
	active   uint64
}

// New returns a Synchronizer over store. relay may be nil when only wallet
// recipients are supported.
func New(store entity.Store, r relay.Relay, opts Options) *Synchronizer {
	opts.applyDefaults()
	return &Synchronizer{
		store:    store,
		relay:    r,
		opts:     opts,
		items:    make(map[string]*item),
		views:    make(map[viewKey][]string),
		counts:   make(map[string]model.FolderCounts),
		inflight: make(map[uint64]context.CancelFunc),
	}
}

// Reset forgets everything and cancels every read in flight. Responses that
// arrive afterwards are dropped.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	for _, cancel := range s.inflight {
		cancel()
	}
	s.inflight = make(map[uint64]context.CancelFunc)
	s.active = 0
	s.items = make(map[string]*item)
	s.views = make(map[viewKey][]string)
	s.counts = make(map[string]model.FolderCounts)
}

// Invalidate drops identity's cached views and counts so the next read
// goes to the store.
func (s *Synchronizer) Invalidate(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateLocked(identity)
}

func (s *Synchronizer) invalidateLocked(identity string) {
	for k := range s.views {
		if k.identity == identity {
			delete(s.views, k)
		}
	}
	delete(s.counts, identity)
}

// Cached returns the last fetched view for (identity, folder, query) with
// local changes applied, if one is cached.
func (s *Synchronizer) Cached(identity string, folder model.Folder, query string) ([]model.Email, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.views[viewKey{identity, folder, query}]
	if !ok {
		return nil, false
	}
	return s.viewLocked(identity, folder, query, ids), true
}

// CachedCounts returns the last computed counts for identity, if cached.
func (s *Synchronizer) CachedCounts(identity string) (model.FolderCounts, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counts[identity]
	if !ok {
		return nil, false
	}
	out := make(model.FolderCounts, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out, true
}

// absorbLocked merges a fetched email into the cache. Fields with writes
// still in flight keep their local value.
func (s *Synchronizer) absorbLocked(e model.Email) model.Email {
	it, ok := s.items[e.ID]
	if !ok {
		s.items[e.ID] = &item{email: e, pending: make(map[string][]pendingWrite)}
		return e
	}

	merged := e
	for field, writes := range it.pending {
		if len(writes) > 0 {
			setField(&merged, field, getField(&it.email, field))
		}
	}
	it.email = merged
	return merged
}

// viewLocked resolves ids against the cache and applies the folder rule,
// search and ordering to the local state.
func (s *Synchronizer) viewLocked(identity string, folder model.Folder, query string, ids []string) []model.Email {
	out := make([]model.Email, 0, len(ids))
	for _, id := range ids {
		it, ok := s.items[id]
		if !ok {
			continue
		}
		if !Matches(identity, folder, it.email) || !MatchesQuery(it.email, query) {
			continue
		}
		out = append(out, it.email)
	}
	SortNewestFirst(out)
	return out
}

// track registers a cancellable read. done must be called when it ends.
func (s *Synchronizer) track(ctx context.Context) (context.Context, uint64, uint64, func()) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.nextRead++
	id := s.nextRead
	gen := s.generation
	s.inflight[id] = cancel
	s.mu.Unlock()

	return ctx, id, gen, func() {
		s.mu.Lock()
		delete(s.inflight, id)
		if s.active == id {
			s.active = 0
		}
		s.mu.Unlock()
		cancel()
	}
}

// Mutable fields of an email, by store name.
const (
	fieldIsRead    = "is_read"
	fieldIsStarred = "is_starred"
	fieldFolder    = "folder"
	fieldOwner     = "owner_address"
)

func getField(e *model.Email, field string) any {
	switch field {
	case fieldIsRead:
		return e.IsRead
	case fieldIsStarred:
		return e.IsStarred
	case fieldFolder:
		return string(e.Folder)
	case fieldOwner:
		return e.OwnerAddress
	}
	return nil
}

func setField(e *model.Email, field string, v any) {
	switch field {
	case fieldIsRead:
		e.IsRead, _ = v.(bool)
	case fieldIsStarred:
		e.IsStarred, _ = v.(bool)
	case fieldFolder:
		f, _ := v.(string)
		e.Folder = model.Folder(f)
	case fieldOwner:
		e.OwnerAddress, _ = v.(string)
	}
}
