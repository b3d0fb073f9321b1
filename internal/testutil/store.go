package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
)

// Epoch is the created_at of the first record in a test store.
var Epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// Its clock starts at Epoch and advances one second per read, so records
// sort in creation order. It automatically closes the store when the test
// completes.
func NewTestStore(t *testing.T) *entity.SQLiteStore {
	t.Helper()

	s, err := entity.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	var mu sync.Mutex
	next := Epoch
	s.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(time.Second)
		return now
	})

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// SeedEmail writes e to the store and returns it with its assigned id and
// created_at.
func SeedEmail(t *testing.T, s entity.Store, e model.Email) model.Email {
	t.Helper()

	rec, err := entity.Encode(e)
	if err != nil {
		t.Fatalf("encoding email: %v", err)
	}
	delete(rec, "id")
	delete(rec, "created_at")

	created, err := s.Create(context.Background(), entity.KindEmail, rec)
	if err != nil {
		t.Fatalf("seeding email: %v", err)
	}
	out, err := entity.Decode[model.Email](created)
	if err != nil {
		t.Fatalf("decoding seeded email: %v", err)
	}
	return out
}

// FetchEmail reads a record straight from the store, bypassing any cache.
func FetchEmail(t *testing.T, s entity.Store, id string) model.Email {
	t.Helper()

	recs, err := s.Filter(context.Background(), entity.KindEmail, entity.Predicate{"id": id}, "")
	if err != nil {
		t.Fatalf("fetching email %s: %v", id, err)
	}
	if len(recs) != 1 {
		t.Fatalf("fetching email %s: got %d records", id, len(recs))
	}
	out, err := entity.Decode[model.Email](recs[0])
	if err != nil {
		t.Fatalf("decoding email %s: %v", id, err)
	}
	return out
}
