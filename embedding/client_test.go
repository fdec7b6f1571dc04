package embedding

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEmbedServer(t *testing.T, dim int, failures *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failures != nil && atomic.AddInt32(failures, -1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req batchEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := batchEmbedResponse{}
		for range req.Requests {
			values := make([]float64, dim)
			for i := range values {
				values[i] = 0.1
			}
			resp.Embeddings = append(resp.Embeddings, struct {
				Values []float64 `json:"values"`
			}{Values: values})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestEmbedBatchesAndNormalizes(t *testing.T) {
	srv := fakeEmbedServer(t, 4, nil)
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Dimension: 4, BatchSize: 2})
	vectors, err := c.Embed(t.Context(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	norm := 0.0
	for _, x := range vectors[0] {
		norm += x * x
	}
	assert.InDelta(t, 1.0, norm, 1e-9)
}

func TestEmbedRetriesTransientFailure(t *testing.T) {
	failures := int32(1)
	srv := fakeEmbedServer(t, 4, &failures)
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Dimension: 4})
	vectors, err := c.EmbedQuery(t.Context(), "q")
	require.NoError(t, err)
	assert.Len(t, vectors, 4)
}

func TestEmbedFailsOnWrongDimension(t *testing.T) {
	srv := fakeEmbedServer(t, 3, nil)
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Dimension: 4})
	_, err := c.EmbedQuery(t.Context(), "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestEmbedDoesNotRetryBadRequest(t *testing.T) {
	calls := int32(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	_, err := c.EmbedQuery(t.Context(), "q")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEmbedTruncatesLongInput(t *testing.T) {
	var gotLen int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req batchEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotLen = len([]rune(req.Requests[0].Content.Parts[0].Text))
		values := make([]float64, 4)
		for i := range values {
			values[i] = 0.5
		}
		resp := batchEmbedResponse{Embeddings: []struct {
			Values []float64 `json:"values"`
		}{{Values: values}}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Dimension: 4, CharLimit: 10})
	_, err := c.EmbedQuery(t.Context(), strings.Repeat("光", 50))
	require.NoError(t, err)
	assert.Equal(t, 10, gotLen)
}
