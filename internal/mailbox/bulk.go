package mailbox

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

// Op is a mutation that can be applied to many emails at once.
type Op string

const (
	OpMarkRead    Op = "markRead"
	OpMoveToTrash Op = "moveToTrash"
)

// BulkFailure records why one id of a bulk operation failed.
type BulkFailure struct {
	ID  string
	Err error
}

// BulkResult separates the ids that were applied from those that were not.
// Both keep the order of the request.
type BulkResult struct {
	Succeeded []string
	Failed    []BulkFailure
}

// OK reports whether every id succeeded.
func (r BulkResult) OK() bool { return len(r.Failed) == 0 }

// BulkApply runs op on every id with bounded concurrency. It is not atomic:
// each id succeeds or fails on its own.
func (s *Synchronizer) BulkApply(ctx context.Context, identity string, ids []string, op Op) (BulkResult, error) {
	if identity == "" {
		return BulkResult{}, ErrNoIdentity
	}

	var apply func(context.Context, string, string) error
	switch op {
	case OpMarkRead:
		apply = func(ctx context.Context, identity, id string) error {
			_, err := s.MarkRead(ctx, identity, id)
			return err
		}
	case OpMoveToTrash:
		apply = func(ctx context.Context, identity, id string) error {
			_, err := s.MoveToTrash(ctx, identity, id)
			return err
		}
	default:
		return BulkResult{}, fmt.Errorf("unknown bulk operation %q", op)
	}

	errs := make([]error, len(ids))

	p := pool.New().WithMaxGoroutines(s.opts.BulkConcurrency)
	for i, id := range ids {
		p.Go(func() {
			errs[i] = apply(ctx, identity, id)
		})
	}
	p.Wait()

	var res BulkResult
	for i, id := range ids {
		if errs[i] != nil {
			res.Failed = append(res.Failed, BulkFailure{ID: id, Err: errs[i]})
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}

	logrus.WithFields(logrus.Fields{
		"op":        op,
		"succeeded": len(res.Succeeded),
		"failed":    len(res.Failed),
	}).Info("bulk operation finished")
	return res, nil
}
