package entity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
)

func TestOpenHTTPScopesToApp(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	store, closer, err := Open(model.BackendConfig{Kind: model.BackendHTTP, BaseURL: srv.URL + "/api/", AppID: "kmail"}, "k")
	require.NoError(t, err)
	defer closer.Close()

	_, err = store.List(context.Background(), KindLabel, "")
	require.NoError(t, err)
	assert.Equal(t, "/api/apps/kmail/entities/Label", gotPath)
}

func TestOpenSQLite(t *testing.T) {
	store, closer, err := Open(model.BackendConfig{Kind: model.BackendSQLite, SQLitePath: ":memory:"}, "")
	require.NoError(t, err)
	defer closer.Close()
	assert.IsType(t, &SQLiteStore{}, store)
}

func TestOpenRejectsBadConfig(t *testing.T) {
	_, _, err := Open(model.BackendConfig{Kind: model.BackendHTTP}, "")
	assert.Error(t, err)

	_, _, err = Open(model.BackendConfig{Kind: "postgres"}, "")
	assert.ErrorContains(t, err, "unknown backend")
}
