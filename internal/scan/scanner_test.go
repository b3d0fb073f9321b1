package scan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func server(t *testing.T, status int, reply string, seen *apiRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestScanReturnsAssessment(t *testing.T) {
	var seen apiRequest
	srv := server(t, http.StatusOK, `{
		"id": "msg_1",
		"stop_reason": "tool_use",
		"content": [{
			"type": "tool_use",
			"id": "tu_1",
			"name": "report_assessment",
			"input": {
				"threat_level": "high",
				"threats_found": ["asks for seed phrase"],
				"explanation": "Classic wallet drainer lure.",
				"recommendations": ["Do not reply"]
			}
		}]
	}`, &seen)

	a, err := New("key", "", 0).WithURL(srv.URL).Scan(context.Background(), "Urgent", "send your seed")
	require.NoError(t, err)
	assert.Equal(t, ThreatHigh, a.ThreatLevel)
	assert.False(t, a.Safe())
	assert.Equal(t, []string{"asks for seed phrase"}, a.ThreatsFound)
	assert.Equal(t, []string{"Do not reply"}, a.Recommendations)

	assert.Equal(t, defaultModel, seen.Model)
	assert.Equal(t, defaultMaxTokens, seen.MaxTokens)
	require.NotNil(t, seen.ToolChoice)
	assert.Equal(t, reportTool, seen.ToolChoice.Name)
	require.Len(t, seen.Messages, 1)
	assert.Contains(t, seen.Messages[0].Content, "Email Subject: Urgent")
}

func TestScanRejectsUnknownLevel(t *testing.T) {
	srv := server(t, http.StatusOK, `{"content":[{"type":"tool_use","name":"report_assessment","input":{"threat_level":"SPICY","explanation":"x"}}]}`, nil)

	_, err := New("key", "", 0).WithURL(srv.URL).Scan(context.Background(), "s", "b")
	assert.ErrorContains(t, err, "invalid assessment")
}

func TestScanWithoutToolUse(t *testing.T) {
	srv := server(t, http.StatusOK, `{"content":[{"type":"text","text":"looks fine"}]}`, nil)

	_, err := New("key", "", 0).WithURL(srv.URL).Scan(context.Background(), "s", "b")
	assert.ErrorContains(t, err, "no assessment")
}

func TestScanAPIError(t *testing.T) {
	srv := server(t, http.StatusUnauthorized, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, nil)

	_, err := New("key", "", 0).WithURL(srv.URL).Scan(context.Background(), "s", "b")
	assert.ErrorContains(t, err, "API error (401): invalid x-api-key")
}

func TestScanNeedsKey(t *testing.T) {
	_, err := New("", "", 0).Scan(context.Background(), "s", "b")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
