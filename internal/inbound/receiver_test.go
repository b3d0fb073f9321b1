package inbound

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/testutil"
)

const testKey = "s3cret"

func post(t *testing.T, h http.Handler, key, body string) (*httptest.ResponseRecorder, reply) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/inbound", strings.NewReader(body))
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func inboxOf(t *testing.T, s entity.Store, addr string) []model.Email {
	t.Helper()
	recs, err := s.Filter(context.Background(), entity.KindEmail, entity.Predicate{"to_address": addr}, "")
	require.NoError(t, err)
	emails, err := entity.DecodeAll[model.Email](recs)
	require.NoError(t, err)
	return emails
}

func TestReceiverCreatesInboxRecord(t *testing.T) {
	store := testutil.NewTestStore(t)
	r := NewReceiver(store, testKey)

	rec, out := post(t, r, testKey, `{
		"recipientWalletAddress": "kaspa:qalice",
		"pinCode": "482913",
		"subject": "Your PIN",
		"body": "<p>482913</p>"
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", out.Status)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	emails := inboxOf(t, store, "kaspa:qalice")
	require.Len(t, emails, 1)
	e := emails[0]
	assert.Equal(t, VerificationSender, e.FromAddress)
	assert.Equal(t, "TTT Verification <ttt@fluxk.kas>", e.FromDisplayName)
	assert.Equal(t, "Your verification PIN: 482913", e.Preview)
	assert.Equal(t, "<p>482913</p>", e.Body)
	assert.Equal(t, model.FolderInbox, e.Folder)
	assert.False(t, e.IsRead)
	assert.Equal(t, "kaspa:qalice", e.Owner())
}

func TestReceiverKeepsFromName(t *testing.T) {
	store := testutil.NewTestStore(t)
	r := NewReceiver(store, testKey)

	rec, _ := post(t, r, testKey, `{"recipientWalletAddress":"kaspa:qalice","pinCode":"1","subject":"s","body":"b","fromName":"Vibecode"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	emails := inboxOf(t, store, "kaspa:qalice")
	require.Len(t, emails, 1)
	assert.Equal(t, "Vibecode", emails[0].FromDisplayName)
}

func TestReceiverRejectsBadKey(t *testing.T) {
	store := testutil.NewTestStore(t)
	body := `{"recipientWalletAddress":"kaspa:qalice","pinCode":"1","subject":"s","body":"b"}`

	for name, key := range map[string]string{"missing": "", "wrong": "guess"} {
		t.Run(name, func(t *testing.T) {
			rec, out := post(t, NewReceiver(store, testKey), key, body)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "error", out.Status)
			assert.Contains(t, out.Message, "Unauthorized")
		})
	}

	t.Run("unconfigured", func(t *testing.T) {
		rec, _ := post(t, NewReceiver(store, ""), "", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	assert.Empty(t, inboxOf(t, store, "kaspa:qalice"))
}

func TestReceiverRejectsMissingFields(t *testing.T) {
	store := testutil.NewTestStore(t)
	r := NewReceiver(store, testKey)

	tests := map[string]string{
		"no pin":       `{"recipientWalletAddress":"kaspa:qalice","subject":"s","body":"b"}`,
		"no recipient": `{"pinCode":"1","subject":"s","body":"b"}`,
		"no subject":   `{"recipientWalletAddress":"kaspa:qalice","pinCode":"1","body":"b"}`,
		"no body":      `{"recipientWalletAddress":"kaspa:qalice","pinCode":"1","subject":"s"}`,
		"not json":     `pin please`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec, out := post(t, r, testKey, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "error", out.Status)
		})
	}

	assert.Empty(t, inboxOf(t, store, "kaspa:qalice"))
}

func TestReceiverStoreFailure(t *testing.T) {
	faults := testutil.NewFaultStore(testutil.NewTestStore(t))
	faults.FailCreates(&entity.NetworkError{Op: "create", Err: context.DeadlineExceeded})

	rec, out := post(t, NewReceiver(faults, testKey), testKey,
		`{"recipientWalletAddress":"kaspa:qalice","pinCode":"1","subject":"s","body":"b"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "error", out.Status)
}

func TestReceiverMethodAndHealth(t *testing.T) {
	r := NewReceiver(testutil.NewTestStore(t), testKey)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inbound", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
