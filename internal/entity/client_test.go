package entity

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientFilterSendsQueryAndSort(t *testing.T) {
	var gotQuery, gotSort, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/entities/Email", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		gotSort = r.URL.Query().Get("sort")
		gotKey = r.Header.Get("api_key")
		w.Write([]byte(`[{"id":"e1","value_transferred":12.50000000001}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", time.Second)
	recs, err := c.Filter(context.Background(), KindEmail, Predicate{"to_address": "kaspa:b"}, NewestFirst)
	require.NoError(t, err)

	require.Len(t, recs, 1)
	assert.Equal(t, "e1", recs[0].ID())
	assert.Equal(t, json.Number("12.50000000001"), recs[0]["value_transferred"])
	assert.JSONEq(t, `{"to_address":"kaspa:b"}`, gotQuery)
	assert.Equal(t, "-created_at", gotSort)
	assert.Equal(t, "secret", gotKey)
}

func TestClientCreateAndUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var in map[string]any
		require.NoError(t, json.Unmarshal(body, &in))

		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "/entities/Contact", r.URL.Path)
			in["id"] = "c1"
			in["created_at"] = "2025-01-01T00:00:00Z"
		case http.MethodPut:
			assert.Equal(t, "/entities/Contact/c1", r.URL.Path)
			in["id"] = "c1"
		}
		json.NewEncoder(w).Encode(in)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	ctx := context.Background()

	created, err := c.Create(ctx, KindContact, Record{"display_name": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "c1", created.ID())

	updated, err := c.Update(ctx, KindContact, "c1", Record{"display_name": "Robert"})
	require.NoError(t, err)
	assert.Equal(t, "Robert", updated["display_name"])
}

func TestClientClassifiesFailures(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantNetwork bool
		wantReject  bool
	}{
		{"server error", http.StatusBadGateway, true, false},
		{"bad request", http.StatusBadRequest, false, true},
		{"forbidden", http.StatusForbidden, false, true},
		{"not found", http.StatusNotFound, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"message":"nope"}`))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "", time.Second)
			_, err := c.Update(context.Background(), KindEmail, "e1", Record{"is_read": true})
			require.Error(t, err)
			assert.Equal(t, tt.wantNetwork, IsNetworkError(err))
			assert.Equal(t, tt.wantReject, IsRejected(err))
		})
	}
}

func TestClientUnreachableIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, "", time.Second)
	_, err := c.List(context.Background(), KindEmail, "")
	assert.True(t, IsNetworkError(err))
}

func TestClientTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, "", 50*time.Millisecond)
	_, err := c.List(context.Background(), KindEmail, "")
	assert.True(t, IsNetworkError(err))
}

func TestClientWritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.Update(context.Background(), KindEmail, "e1", Record{"is_read": true})
	assert.True(t, IsNetworkError(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientRetriesRateLimitedReads(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	recs, err := c.List(context.Background(), KindEmail, "")
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, int32(2), calls.Load())
}
