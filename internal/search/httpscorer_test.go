package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newScorerServer serves /health and /rerank, scoring each document by
// its position reversed so order is observable.
func newScorerServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	requests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/rerank", func(w http.ResponseWriter, r *http.Request) {
		requests++
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var resp rerankResponse
		for i := range req.Documents {
			resp.Results = append(resp.Results, struct {
				Index int     `json:"index"`
				Score float64 `json:"score"`
			}{Index: i, Score: float64(len(req.Documents) - i)})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &requests
}

func TestHTTPScorer_ScoreBatch(t *testing.T) {
	server, requests := newScorerServer(t)

	scorer, err := NewHTTPScorer(context.Background(), HTTPScorerConfig{
		Endpoint: server.URL,
	})
	require.NoError(t, err)
	defer scorer.Close()

	scores, err := scorer.ScoreBatch(context.Background(), "红烧肉",
		[]string{"doc a", "doc b", "doc c"})

	require.NoError(t, err)
	assert.Equal(t, []float64{3, 2, 1}, scores)
	assert.Equal(t, 1, *requests)
	assert.True(t, scorer.Available(context.Background()))
}

func TestHTTPScorer_EmptyDocs(t *testing.T) {
	server, requests := newScorerServer(t)

	scorer, err := NewHTTPScorer(context.Background(), HTTPScorerConfig{Endpoint: server.URL})
	require.NoError(t, err)
	defer scorer.Close()

	scores, err := scorer.ScoreBatch(context.Background(), "q", nil)

	require.NoError(t, err)
	assert.Empty(t, scores)
	assert.Zero(t, *requests)
}

func TestHTTPScorer_UnreachableServiceFailsConstruction(t *testing.T) {
	_, err := NewHTTPScorer(context.Background(), HTTPScorerConfig{
		Endpoint: "http://127.0.0.1:1",
	})
	assert.Error(t, err)
}

func TestHTTPScorer_ServerErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	scorer, err := NewHTTPScorer(context.Background(), HTTPScorerConfig{Endpoint: server.URL})
	require.NoError(t, err)
	defer scorer.Close()

	_, err = scorer.ScoreBatch(context.Background(), "q", []string{"doc"})
	assert.Error(t, err)
}

func TestHTTPScorer_OutOfRangeIndexRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"index":5,"score":1.0}]}`))
	}))
	t.Cleanup(server.Close)

	scorer, err := NewHTTPScorer(context.Background(), HTTPScorerConfig{Endpoint: server.URL})
	require.NoError(t, err)
	defer scorer.Close()

	_, err = scorer.ScoreBatch(context.Background(), "q", []string{"doc"})
	assert.Error(t, err)
}

func TestHTTPScorer_ClosedIsUnavailable(t *testing.T) {
	server, _ := newScorerServer(t)

	scorer, err := NewHTTPScorer(context.Background(), HTTPScorerConfig{Endpoint: server.URL})
	require.NoError(t, err)
	require.NoError(t, scorer.Close())

	assert.False(t, scorer.Available(context.Background()))
	_, err = scorer.ScoreBatch(context.Background(), "q", []string{"doc"})
	assert.Error(t, err)
}
