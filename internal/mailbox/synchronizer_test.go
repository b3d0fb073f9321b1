package mailbox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/relay"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/testutil"
)

var errUnreachable = &entity.NetworkError{Op: "test", Err: errors.New("connection refused")}

type fixture struct {
	sync   *Synchronizer
	store  *entity.SQLiteStore
	faults *testutil.FaultStore
}

func newFixture(t *testing.T, r relay.Relay) *fixture {
	t.Helper()

	store := testutil.NewTestStore(t)
	faults := testutil.NewFaultStore(store)
	return &fixture{
		sync: New(faults, r, Options{
			ReadRetries:  2,
			ReadTimeout:  time.Second,
			RetryBackoff: time.Millisecond,
		}),
		store:  store,
		faults: faults,
	}
}

// received seeds an inbox message from sender to recipient, as the
// recipient's copy.
func (f *fixture) received(t *testing.T, sender, recipient, subject string) model.Email {
	t.Helper()
	return testutil.SeedEmail(t, f.store, model.Email{
		FromAddress:  sender,
		ToAddress:    recipient,
		Subject:      subject,
		Body:         "body of " + subject,
		Folder:       model.FolderInbox,
		OwnerAddress: recipient,
	})
}

func subjects(emails []model.Email) []string {
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		out = append(out, e.Subject)
	}
	return out
}

func ids(emails []model.Email) []string {
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		out = append(out, e.ID)
	}
	return out
}

func TestListFolderRequiresIdentity(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.sync.ListFolder(context.Background(), "", model.FolderInbox, "")
	assert.ErrorIs(t, err, ErrNoIdentity)

	_, err = f.sync.ListFolder(context.Background(), alice, model.Folder("archive"), "")
	assert.ErrorIs(t, err, ErrUnknownFolder)
}

func TestListFolderOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.received(t, bob, alice, "for alice")
	f.received(t, alice, bob, "for bob")
	f.received(t, carol, bob, "carol to bob")
	testutil.SeedEmail(t, f.store, model.Email{
		FromAddress: alice, ToAddress: carol, Subject: "alice sent", Folder: model.FolderSent, OwnerAddress: alice,
	})

	for _, folder := range model.Folders {
		got, err := f.sync.ListFolder(ctx, alice, folder, "")
		require.NoError(t, err, folder)
		for _, e := range got {
			assert.Equal(t, alice, e.Owner(), "folder %s leaked %q", folder, e.Subject)
			switch folder {
			case model.FolderInbox:
				assert.Equal(t, alice, e.ToAddress)
			case model.FolderSent:
				assert.Equal(t, alice, e.FromAddress)
			}
		}
	}

	all, err := f.sync.ListFolder(ctx, alice, model.FolderAll, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice sent", "for alice"}, subjects(all))
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.received(t, bob, alice, "Hello World")
	f.received(t, bob, alice, "Budget Q3")
	f.received(t, bob, alice, "hello again")

	got, err := f.sync.ListFolder(ctx, alice, model.FolderInbox, "hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello again", "Hello World"}, subjects(got))

	cached, ok := f.sync.Cached(alice, model.FolderInbox, "hello")
	require.True(t, ok)
	assert.Equal(t, ids(got), ids(cached))
}

func TestToggleStarParity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	e := f.received(t, bob, alice, "star me")

	for i := 1; i <= 3; i++ {
		got, err := f.sync.ToggleStar(ctx, alice, e.ID)
		require.NoError(t, err)
		assert.Equal(t, i%2 == 1, got.IsStarred, "after %d toggles", i)
	}

	assert.True(t, testutil.FetchEmail(t, f.store, e.ID).IsStarred)

	starred, err := f.sync.ListFolder(ctx, alice, model.FolderStarred, "")
	require.NoError(t, err)
	assert.Equal(t, []string{e.ID}, ids(starred))
}

func TestMarkReadChangesUnreadCountByOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	first := f.received(t, bob, alice, "one")
	f.received(t, bob, alice, "two")

	before, err := f.sync.FolderCounts(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, 2, before[model.FolderInbox])

	_, err = f.sync.MarkRead(ctx, alice, first.ID)
	require.NoError(t, err)

	after, err := f.sync.FolderCounts(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, before[model.FolderInbox]-1, after[model.FolderInbox])

	// Marking it again changes nothing.
	_, err = f.sync.MarkRead(ctx, alice, first.ID)
	require.NoError(t, err)
	again, err := f.sync.FolderCounts(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, after, again)

	assert.True(t, testutil.FetchEmail(t, f.store, first.ID).IsRead)
}

func TestMoveToTrashLeavesOnlyTrashAndAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	e := f.received(t, bob, alice, "doomed")
	_, err := f.sync.ToggleStar(ctx, alice, e.ID)
	require.NoError(t, err)

	got, err := f.sync.MoveToTrash(ctx, alice, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FolderTrash, got.Folder)

	for _, folder := range model.Folders {
		list, err := f.sync.ListFolder(ctx, alice, folder, "")
		require.NoError(t, err)
		present := assert.ObjectsAreEqual([]string{e.ID}, ids(list))
		switch folder {
		case model.FolderTrash, model.FolderAll:
			assert.True(t, present, "expected in %s", folder)
		default:
			assert.False(t, present, "unexpected in %s", folder)
		}
	}

	stored := testutil.FetchEmail(t, f.store, e.ID)
	assert.Equal(t, model.FolderTrash, stored.Folder)
}

func TestTrashIsPerCopy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	sent, err := f.sync.SendEmail(ctx, alice, model.Draft{To: bob, Subject: "hi", Body: "there"})
	require.NoError(t, err)

	_, err = f.sync.MoveToTrash(ctx, alice, sent.ID)
	require.NoError(t, err)

	aliceTrash, err := f.sync.ListFolder(ctx, alice, model.FolderTrash, "")
	require.NoError(t, err)
	assert.Equal(t, []string{sent.ID}, ids(aliceTrash))

	bobTrash, err := f.sync.ListFolder(ctx, bob, model.FolderTrash, "")
	require.NoError(t, err)
	assert.Empty(t, bobTrash)

	bobInbox, err := f.sync.ListFolder(ctx, bob, model.FolderInbox, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, subjects(bobInbox))
}

func TestTrashKeepsOwnerOfRecordsWithoutOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	legacy := testutil.SeedEmail(t, f.store, model.Email{
		FromAddress: alice, ToAddress: bob, Subject: "legacy", Folder: model.FolderSent,
	})

	got, err := f.sync.MoveToTrash(ctx, alice, legacy.ID)
	require.NoError(t, err)
	assert.Equal(t, alice, got.Owner())

	for _, folder := range []model.Folder{model.FolderTrash, model.FolderAll} {
		list, err := f.sync.ListFolder(ctx, alice, folder, "")
		require.NoError(t, err)
		assert.Equal(t, []string{legacy.ID}, ids(list), folder)
	}

	bobTrash, err := f.sync.ListFolder(ctx, bob, model.FolderTrash, "")
	require.NoError(t, err)
	assert.Empty(t, bobTrash)

	_, err = f.sync.MarkRead(ctx, bob, legacy.ID)
	assert.ErrorIs(t, err, ErrNotVisible)

	stored := testutil.FetchEmail(t, f.store, legacy.ID)
	assert.Equal(t, alice, stored.OwnerAddress)
	assert.Equal(t, model.FolderTrash, stored.Folder)
}

func TestMutationOutsideMailboxIsRefused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	e := f.received(t, bob, alice, "private")

	_, err := f.sync.MarkRead(ctx, carol, e.ID)
	assert.ErrorIs(t, err, ErrNotVisible)

	// The sender does not own the recipient's copy either.
	_, err = f.sync.MoveToTrash(ctx, bob, e.ID)
	assert.ErrorIs(t, err, ErrNotVisible)

	_, err = f.sync.ToggleStar(ctx, alice, "missing")
	assert.ErrorIs(t, err, ErrNotVisible)

	assert.Zero(t, f.faults.UpdateCalls())
	stored := testutil.FetchEmail(t, f.store, e.ID)
	assert.False(t, stored.IsRead)
	assert.Equal(t, model.FolderInbox, stored.Folder)
}

func TestFailedMutationRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	e := f.received(t, bob, alice, "flaky")
	_, err := f.sync.ListFolder(ctx, alice, model.FolderInbox, "")
	require.NoError(t, err)

	f.faults.FailUpdate(e.ID, errUnreachable)

	_, err = f.sync.MarkRead(ctx, alice, e.ID)
	require.Error(t, err)
	assert.True(t, entity.IsNetworkError(err))
	assert.Equal(t, 1, f.faults.UpdateCalls(), "writes are not retried")

	local, err := f.sync.Get(ctx, alice, e.ID)
	require.NoError(t, err)
	assert.False(t, local.IsRead)
	assert.False(t, testutil.FetchEmail(t, f.store, e.ID).IsRead)

	counts, err := f.sync.FolderCounts(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.FolderInbox])
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	e := f.received(t, bob, alice, "race")
	_, err := f.sync.ListFolder(ctx, alice, model.FolderInbox, "")
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	f.faults.OnUpdate(func(_ context.Context, _ string, _ entity.Record) error {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		return nil
	})

	starDone := make(chan error, 1)
	go func() {
		_, err := f.sync.ToggleStar(ctx, alice, e.ID)
		starDone <- err
	}()
	<-entered

	trashed, err := f.sync.MoveToTrash(ctx, alice, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FolderTrash, trashed.Folder)

	// The star response carries folder=inbox from before the trash.
	close(release)
	require.NoError(t, <-starDone)

	local, err := f.sync.Get(ctx, alice, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FolderTrash, local.Folder)
	assert.True(t, local.IsStarred)

	stored := testutil.FetchEmail(t, f.store, e.ID)
	assert.Equal(t, model.FolderTrash, stored.Folder)
	assert.True(t, stored.IsStarred)
}

func TestBulkApplyPartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	e1 := f.received(t, bob, alice, "one")
	e2 := f.received(t, bob, alice, "two")
	e3 := f.received(t, bob, alice, "three")
	f.faults.FailUpdate(e2.ID, errUnreachable)

	res, err := f.sync.BulkApply(ctx, alice, []string{e1.ID, e2.ID, e3.ID}, OpMarkRead)
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, []string{e1.ID, e3.ID}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, e2.ID, res.Failed[0].ID)
	assert.True(t, entity.IsNetworkError(res.Failed[0].Err))

	for _, e := range []model.Email{e1, e3} {
		local, err := f.sync.Get(ctx, alice, e.ID)
		require.NoError(t, err)
		assert.True(t, local.IsRead)
	}
	local, err := f.sync.Get(ctx, alice, e2.ID)
	require.NoError(t, err)
	assert.False(t, local.IsRead)
	assert.False(t, testutil.FetchEmail(t, f.store, e2.ID).IsRead)
}

func TestBulkApplyTrash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	e1 := f.received(t, bob, alice, "one")
	e2 := f.received(t, bob, alice, "two")
	other := f.received(t, alice, bob, "not yours")

	res, err := f.sync.BulkApply(ctx, alice, []string{e1.ID, other.ID, e2.ID}, OpMoveToTrash)
	require.NoError(t, err)
	assert.Equal(t, []string{e1.ID, e2.ID}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.Failed[0].Err, ErrNotVisible)

	_, err = f.sync.BulkApply(ctx, alice, nil, Op("archive"))
	assert.Error(t, err)
}

func TestReadRetriesNetworkErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.received(t, bob, alice, "eventually")

	f.faults.FailFilters(errUnreachable, errUnreachable)

	got, err := f.sync.ListFolder(ctx, alice, model.FolderInbox, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"eventually"}, subjects(got))
	assert.Equal(t, 3, f.faults.FilterCalls())
}

func TestReadGivesUpAfterRetries(t *testing.T) {
	f := newFixture(t, nil)

	f.faults.FailFilters(errUnreachable, errUnreachable, errUnreachable)

	_, err := f.sync.ListFolder(context.Background(), alice, model.FolderInbox, "")
	require.Error(t, err)
	assert.True(t, entity.IsNetworkError(err))
	assert.Equal(t, 3, f.faults.FilterCalls())
}

func TestBulkApplyBoundsConcurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	s := New(f.faults, nil, Options{BulkConcurrency: 2, RetryBackoff: time.Millisecond})

	var targets []string
	for i := 0; i < 8; i++ {
		targets = append(targets, f.received(t, bob, alice, "bulk").ID)
	}

	var inFlight, peak atomic.Int32
	f.faults.OnUpdate(func(context.Context, string, entity.Record) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	res, err := s.BulkApply(ctx, alice, targets, OpMarkRead)
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 8)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Positive(t, peak.Load())
}

func TestReadTimeoutIsRetriedAsNetworkError(t *testing.T) {
	store := testutil.NewTestStore(t)
	g := &gatedStore{Store: store, gate: make(chan struct{}), entered: make(chan struct{}, 8)}
	s := New(g, nil, Options{
		ReadRetries:  2,
		ReadTimeout:  20 * time.Millisecond,
		RetryBackoff: time.Millisecond,
	})

	_, err := s.ListFolder(context.Background(), alice, model.FolderInbox, "")
	require.Error(t, err)
	assert.True(t, entity.IsNetworkError(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, g.entered, 3)
}

func TestReadDoesNotRetryRejection(t *testing.T) {
	f := newFixture(t, nil)

	f.faults.FailFilters(&entity.RejectedError{Op: "filter", Status: 403, Message: "forbidden"})

	_, err := f.sync.ListFolder(context.Background(), alice, model.FolderInbox, "")
	require.Error(t, err)
	assert.True(t, entity.IsRejected(err))
	assert.Equal(t, 1, f.faults.FilterCalls())
}

// gatedStore holds every Filter until gate is closed or the context ends.
type gatedStore struct {
	entity.Store
	gate    chan struct{}
	entered chan struct{}
}

func (g *gatedStore) Filter(ctx context.Context, kind entity.Kind, where entity.Predicate, orderBy string) ([]entity.Record, error) {
	g.entered <- struct{}{}
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Store.Filter(ctx, kind, where, orderBy)
}

func newGated(t *testing.T) (*Synchronizer, *gatedStore, *entity.SQLiteStore) {
	t.Helper()
	store := testutil.NewTestStore(t)
	g := &gatedStore{Store: store, gate: make(chan struct{}), entered: make(chan struct{}, 8)}
	return New(g, nil, Options{RetryBackoff: time.Millisecond}), g, store
}

func TestSelectFolderCancelsPreviousRead(t *testing.T) {
	ctx := context.Background()
	s, g, store := newGated(t)
	testutil.SeedEmail(t, store, model.Email{
		FromAddress: bob, ToAddress: alice, Subject: "sent to alice", Folder: model.FolderInbox, OwnerAddress: alice,
	})

	firstDone := make(chan error, 1)
	go func() {
		_, err := s.SelectFolder(ctx, alice, model.FolderSpam, "")
		firstDone <- err
	}()
	<-g.entered

	type result struct {
		emails []model.Email
		err    error
	}
	secondDone := make(chan result, 1)
	go func() {
		emails, err := s.SelectFolder(ctx, alice, model.FolderInbox, "")
		secondDone <- result{emails, err}
	}()

	assert.ErrorIs(t, <-firstDone, context.Canceled)

	<-g.entered
	close(g.gate)
	second := <-secondDone
	require.NoError(t, second.err)
	assert.Equal(t, []string{"sent to alice"}, subjects(second.emails))
}

func TestResetCancelsReadsAndClearsCache(t *testing.T) {
	ctx := context.Background()
	s, g, _ := newGated(t)

	done := make(chan error, 1)
	go func() {
		_, err := s.ListFolder(ctx, alice, model.FolderInbox, "")
		done <- err
	}()
	<-g.entered

	s.Reset()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(g.gate)
	_, err := s.ListFolder(ctx, alice, model.FolderInbox, "")
	<-g.entered
	require.NoError(t, err)

	_, ok := s.Cached(alice, model.FolderInbox, "")
	assert.True(t, ok)

	s.Reset()
	_, ok = s.Cached(alice, model.FolderInbox, "")
	assert.False(t, ok)
	_, ok = s.CachedCounts(alice)
	assert.False(t, ok)
}

func TestMutationInvalidatesCachedViews(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	e := f.received(t, bob, alice, "cached")

	_, err := f.sync.ListFolder(ctx, alice, model.FolderInbox, "")
	require.NoError(t, err)
	_, err = f.sync.FolderCounts(ctx, alice)
	require.NoError(t, err)

	_, err = f.sync.MarkRead(ctx, alice, e.ID)
	require.NoError(t, err)

	_, ok := f.sync.Cached(alice, model.FolderInbox, "")
	assert.False(t, ok)
	_, ok = f.sync.CachedCounts(alice)
	assert.False(t, ok)
}
