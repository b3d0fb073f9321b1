package inbound

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/testutil"
)

type countingMailbox struct {
	calls atomic.Int32
}

func (c *countingMailbox) Recent(context.Context, int) ([]Message, error) {
	c.calls.Add(1)
	return nil, nil
}

func TestRunAllImportsUntilCancelled(t *testing.T) {
	store := testutil.NewTestStore(t)
	a, b := &countingMailbox{}, &countingMailbox{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunAll(ctx, []Schedule{
			{Importer: NewImporter("a", store, a, "kaspa:qa"), Interval: 10 * time.Millisecond},
			{Importer: NewImporter("b", store, b, "kaspa:qb"), Interval: time.Hour},
		})
		close(done)
	}()

	require.Eventually(t, func() bool { return a.calls.Load() >= 2 && b.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunAll did not return after cancel")
	}
	assert.Equal(t, int32(1), b.calls.Load())
}
