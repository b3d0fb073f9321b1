package testutil

import (
	"context"
	"sync"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
)

// UpdateHook runs after the wrapped store applied an Update and before the
// response is returned, so blocking in it delays the response. Returning an
// error replaces the response with that error.
type UpdateHook func(ctx context.Context, id string, patch entity.Record) error

// FaultStore wraps a Store and injects failures.
type FaultStore struct {
	entity.Store

	mu          sync.Mutex
	filterErrs  []error
	updateErrs  map[string]error
	createErrs  []error
	updateHook  UpdateHook
	filterCalls int
	updateCalls int
	createCalls int
}

// NewFaultStore wraps s.
func NewFaultStore(s entity.Store) *FaultStore {
	return &FaultStore{Store: s, updateErrs: make(map[string]error)}
}

// FailFilters makes the next len(errs) Filter calls return errs in order.
func (f *FaultStore) FailFilters(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterErrs = append(f.filterErrs, errs...)
}

// FailCreates makes the next len(errs) Create calls return errs in order.
// A nil entry lets that call through.
func (f *FaultStore) FailCreates(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErrs = append(f.createErrs, errs...)
}

// FailUpdate makes every Update of id return err.
func (f *FaultStore) FailUpdate(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateErrs[id] = err
}

// OnUpdate installs a hook run on every successful Update.
func (f *FaultStore) OnUpdate(hook UpdateHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateHook = hook
}

// FilterCalls returns how many Filter or List calls were made.
func (f *FaultStore) FilterCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filterCalls
}

// UpdateCalls returns how many Update calls were made.
func (f *FaultStore) UpdateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateCalls
}

// CreateCalls returns how many Create calls were made.
func (f *FaultStore) CreateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

func (f *FaultStore) List(ctx context.Context, kind entity.Kind, orderBy string) ([]entity.Record, error) {
	return f.Filter(ctx, kind, nil, orderBy)
}

func (f *FaultStore) Filter(ctx context.Context, kind entity.Kind, where entity.Predicate, orderBy string) ([]entity.Record, error) {
	f.mu.Lock()
	f.filterCalls++
	var err error
	if len(f.filterErrs) > 0 {
		err, f.filterErrs = f.filterErrs[0], f.filterErrs[1:]
	}
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return f.Store.Filter(ctx, kind, where, orderBy)
}

func (f *FaultStore) Create(ctx context.Context, kind entity.Kind, fields entity.Record) (entity.Record, error) {
	f.mu.Lock()
	f.createCalls++
	var err error
	if len(f.createErrs) > 0 {
		err, f.createErrs = f.createErrs[0], f.createErrs[1:]
	}
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return f.Store.Create(ctx, kind, fields)
}

func (f *FaultStore) Update(ctx context.Context, kind entity.Kind, id string, patch entity.Record) (entity.Record, error) {
	f.mu.Lock()
	f.updateCalls++
	err := f.updateErrs[id]
	hook := f.updateHook
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	rec, err := f.Store.Update(ctx, kind, id, patch)
	if err != nil {
		return nil, err
	}
	if hook != nil {
		if err := hook(ctx, id, patch); err != nil {
			return nil, err
		}
	}
	return rec, nil
}
