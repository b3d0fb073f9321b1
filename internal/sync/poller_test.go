package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/inbound"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/testutil"
)

type countingSource struct {
	id    string
	polls atomic.Int32
	err   error
}

func (s *countingSource) ID() string { return s.id }

func (s *countingSource) Poll(context.Context) (Outcome, error) {
	n := s.polls.Add(1)
	if s.err != nil {
		return Outcome{}, s.err
	}
	return Outcome{Identity: "kaspa:qalice", NewItems: int(n)}, nil
}

func nextResult(t *testing.T, p *Poller) SyncResultMsg {
	t.Helper()

	done := make(chan SyncResultMsg, 1)
	go func() {
		msg, _ := p.WaitForNextResult()().(SyncResultMsg)
		done <- msg
	}()
	select {
	case msg := <-done:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no poll result")
		return SyncResultMsg{}
	}
}

func TestPollerRunsSourcesImmediately(t *testing.T) {
	p := New()
	src := &countingSource{id: "a"}
	p.RegisterSource(src, time.Hour)

	cmd := p.Start()
	require.NotNil(t, cmd)
	defer p.Stop()

	msg, ok := cmd().(SyncResultMsg)
	require.True(t, ok)
	assert.Equal(t, "a", msg.Source)
	assert.NoError(t, msg.Error)
	assert.Equal(t, 1, msg.NewItems)

	assert.Nil(t, p.Start(), "second start is a no-op")

	p.RefreshSource("a")
	msg = nextResult(t, p)
	assert.Equal(t, 2, msg.NewItems)

	statuses := p.GetStatuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, SyncIdle, statuses[0].State)
	assert.False(t, statuses[0].LastSync.IsZero())
}

func TestPollerReportsErrors(t *testing.T) {
	p := New()
	boom := errors.New("imap down")
	p.RegisterSource(&countingSource{id: "bad", err: boom}, time.Hour)

	cmd := p.Start()
	defer p.Stop()

	msg := cmd().(SyncResultMsg)
	assert.ErrorIs(t, msg.Error, boom)

	statuses := p.GetStatuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, SyncError, statuses[0].State)
	assert.Equal(t, "error", statuses[0].State.String())
}

func TestPollerStopIsIdempotent(t *testing.T) {
	p := New()
	p.RegisterSource(&countingSource{id: "a"}, time.Hour)
	p.Start()()
	p.Stop()
	p.Stop()

	assert.Nil(t, p.WaitForNextResult()())
}

func TestPollerAddsAndRemovesWhileRunning(t *testing.T) {
	p := New()
	p.RegisterSource(&countingSource{id: "a"}, time.Hour)
	p.Start()()
	defer p.Stop()

	late := &countingSource{id: "late"}
	p.RegisterSource(late, time.Hour)
	msg := nextResult(t, p)
	assert.Equal(t, "late", msg.Source)
	require.Len(t, p.GetStatuses(), 2)

	p.RemoveSource("late")
	p.RemoveSource("missing")
	require.Len(t, p.GetStatuses(), 1)

	p.RefreshSource("late")
	p.RefreshSource("a")
	msg = nextResult(t, p)
	assert.Equal(t, "a", msg.Source)
	assert.Equal(t, int32(1), late.polls.Load())
}

type fakeMailbox struct{ msgs []inbound.Message }

func (f fakeMailbox) Recent(context.Context, int) ([]inbound.Message, error) { return f.msgs, nil }

type recordingInvalidator struct{ identities []string }

func (r *recordingInvalidator) Invalidate(identity string) {
	r.identities = append(r.identities, identity)
}

func TestImportSource(t *testing.T) {
	store := testutil.NewTestStore(t)
	mb := fakeMailbox{msgs: []inbound.Message{{MessageID: "<m1>", Subject: "hello"}}}
	inv := &recordingInvalidator{}
	src := NewImportSource(inbound.NewImporter("work", store, mb, "kaspa:qalice"), inv)

	assert.Equal(t, "import:work", src.ID())

	out, err := src.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Outcome{Identity: "kaspa:qalice", NewItems: 1}, out)
	assert.Equal(t, []string{"kaspa:qalice"}, inv.identities)

	out, err = src.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, out.NewItems)
	assert.Len(t, inv.identities, 1, "nothing new, nothing invalidated")
}

func TestCountsSource(t *testing.T) {
	identity := ""
	calls := 0
	src := NewCountsSource(
		func() string { return identity },
		func(_ context.Context, id string) (model.FolderCounts, error) {
			calls++
			return model.FolderCounts{model.FolderInbox: 3}, nil
		},
	)

	out, err := src.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, calls)
	assert.Empty(t, out.Counts)

	identity = "kaspa:qalice"
	out, err = src.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "kaspa:qalice", out.Identity)
	assert.Equal(t, 3, out.Counts[model.FolderInbox])
}
