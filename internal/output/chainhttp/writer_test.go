package chainhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threatchain/pkg/models"
)

func TestWriteChainsPostsArray(t *testing.T) {
	var got []models.AttackChain
	var auth, severity, count, events string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		severity = r.Header.Get(HeaderSeverity)
		count = r.Header.Get(HeaderChains)
		events = r.Header.Get(HeaderEvents)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer t"}})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WriteChains([]*models.AttackChain{
		{ID: "chain-1", Severity: "medium", EventCount: 3},
		{ID: "chain-2", Severity: "high", EventCount: 4},
	}))
	require.Len(t, got, 2)
	assert.Equal(t, "chain-2", got[1].ID)
	assert.Equal(t, "Bearer t", auth)
	assert.Equal(t, "high", severity)
	assert.Equal(t, "2", count)
	assert.Equal(t, "7", events)
}

func TestWriteChainsFiltersBySeverityAndSplitsBatches(t *testing.T) {
	var mu sync.Mutex
	var batches [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got []models.AttackChain
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		ids := make([]string, 0, len(got))
		for _, c := range got {
			ids = append(ids, c.ID)
		}
		mu.Lock()
		batches = append(batches, ids)
		mu.Unlock()
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL, MinSeverity: "high", MaxBatch: 2})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WriteChains([]*models.AttackChain{
		{ID: "c1", Severity: "critical"},
		{ID: "c2", Severity: "low"},
		{ID: "c3", Severity: "high"},
		nil,
		{ID: "c4", Severity: "medium"},
		{ID: "c5", Severity: "critical"},
	}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][]string{{"c1", "c3"}, {"c5"}}, batches)
}

func TestNewWriterRejectsUnknownSeverity(t *testing.T) {
	_, err := NewWriter(Config{URL: "http://127.0.0.1:1", MinSeverity: "severe"})
	assert.Error(t, err)
}

func TestWriteChainsSkipsEmptyBatch(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, w.WriteChains(nil))
	assert.Zero(t, calls)
}

func TestWriteChainsReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL})
	require.NoError(t, err)
	assert.Error(t, w.WriteChains([]*models.AttackChain{{ID: "chain-1"}}))
}

func TestNewWriterRequiresURL(t *testing.T) {
	_, err := NewWriter(Config{})
	assert.Error(t, err)
}
