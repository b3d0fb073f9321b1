package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRelayPostsPayload(t *testing.T) {
	var got Payload
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	r := NewHTTPRelay(srv.URL, "k-123")
	err := r.Deliver(context.Background(), Message{
		From:    "kaspa:qalice",
		To:      "kaspa:qbob",
		Subject: "PIN",
		Text:    "Your PIN is 1234",
		PinCode: "1234",
	})
	require.NoError(t, err)

	assert.Equal(t, "k-123", gotKey)
	assert.Equal(t, "kaspa:qbob", got.RecipientWalletAddress)
	assert.Equal(t, "1234", got.PinCode)
	assert.Equal(t, "Your PIN is 1234", got.Body)
	assert.Equal(t, "kaspa:qalice", got.FromName)
}

func TestHTTPRelaySurfacesRelayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Unauthorized"}`))
	}))
	defer srv.Close()

	err := NewHTTPRelay(srv.URL, "wrong").Deliver(context.Background(), Message{To: "x", Subject: "s", Text: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")
}

func TestHTTPRelayRequiresRecipient(t *testing.T) {
	err := NewHTTPRelay("http://unused", "").Deliver(context.Background(), Message{Subject: "s"})
	assert.ErrorIs(t, err, ErrInvalidRecipient)
}
