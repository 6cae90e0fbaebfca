package opensearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSearchServer(t *testing.T, gotBody *map[string]interface{}, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !strings.HasSuffix(r.URL.Path, "/_search") {
			w.Write([]byte(`{"version":{"number":"2.11.0","distribution":"opensearch"}}`))
			return
		}
		if gotBody != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(gotBody))
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewSourceRequiresIndex(t *testing.T) {
	_, err := NewSource(Config{Addresses: []string{"http://127.0.0.1:9200"}})
	assert.Error(t, err)
}

func TestFetchDecodesHits(t *testing.T) {
	var body map[string]interface{}
	srv := newSearchServer(t, &body, http.StatusOK, `{
		"hits": {"hits": [
			{"_id": "1", "_source": {"@timestamp": "2024-03-01T10:00:00Z", "User": "alice", "Computer": "ws1", "Image": "C:\\Windows\\cmd.exe"}},
			{"_id": "2", "_source": {}},
			{"_id": "3", "_source": {"@timestamp": "2024-03-01T10:00:05Z", "user": "alice", "source_ip": "10.0.0.5"}}
		]}
	}`)

	src, err := NewSource(Config{Addresses: []string{srv.URL}, Index: "siem-*"})
	require.NoError(t, err)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	events, err := src.Fetch(context.Background(), Query{Query: "user:alice", From: from})
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "alice", events[0].Field("user"))
	assert.Equal(t, "ws1", events[0].Field("host"))
	assert.True(t, events[0].HasTime())
	assert.NotEmpty(t, events[0].ID)
	assert.NotEqual(t, events[0].ID, events[1].ID)
	assert.Equal(t, 1, events[1].Seq)

	query := body["query"].(map[string]interface{})
	must := query["bool"].(map[string]interface{})["must"].([]interface{})
	assert.Len(t, must, 2)
}

func TestFetchMatchAllWithoutFilters(t *testing.T) {
	var body map[string]interface{}
	srv := newSearchServer(t, &body, http.StatusOK, `{"hits":{"hits":[]}}`)

	src, err := NewSource(Config{Addresses: []string{srv.URL}, Index: "siem"})
	require.NoError(t, err)

	events, err := src.Fetch(context.Background(), Query{})
	require.NoError(t, err)
	assert.Empty(t, events)
	_, ok := body["query"].(map[string]interface{})["match_all"]
	assert.True(t, ok)
}

func TestFetchReturnsSearchErrors(t *testing.T) {
	srv := newSearchServer(t, nil, http.StatusBadRequest, `{"error":"bad query"}`)

	src, err := NewSource(Config{Addresses: []string{srv.URL}, Index: "siem"})
	require.NoError(t, err)

	_, err = src.Fetch(context.Background(), Query{Query: "("})
	assert.Error(t, err)
}
