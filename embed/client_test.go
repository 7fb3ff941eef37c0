package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/webrag/config"
	"github.com/c360studio/webrag/pipeline"
)

func fastRetry() pipeline.RetryConfig {
	return pipeline.RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(config.EmbeddingConfig{
		BaseURL:   baseURL,
		Model:     "embed-english-v3.0",
		Dimension: 4,
		APIKey:    "test-key",
	}, WithRetryConfig(fastRetry()))
}

func embeddingsFor(n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{0.1, 0.2, 0.3, 0.4}
	}
	return out
}

func TestClient_Embed_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Texts     []string `json:"texts"`
			Model     string   `json:"model"`
			InputType string   `json:"input_type"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "embed-english-v3.0", req.Model)
		assert.Equal(t, "search_document", req.InputType)

		json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddingsFor(len(req.Texts))})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	vectors, err := c.Embed(context.Background(), []string{"first chunk", "second chunk"}, InputTypeDocument)
	require.NoError(t, err)

	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 4)
}

func TestClient_EmbedQuery_UsesQueryInputType(t *testing.T) {
	var gotInputType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Texts     []string `json:"texts"`
			InputType string   `json:"input_type"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotInputType = req.InputType
		json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddingsFor(len(req.Texts))})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	vector, err := c.EmbedQuery(context.Background(), "what is a vector database")
	require.NoError(t, err)

	assert.Equal(t, "search_query", gotInputType)
	assert.Len(t, vector, 4)
}

func TestClient_Embed_EmptyInput(t *testing.T) {
	c := testClient(t, "http://localhost:1")
	_, err := c.Embed(context.Background(), nil, InputTypeDocument)

	require.Error(t, err)
	assert.Equal(t, pipeline.KindEmbedding, pipeline.KindOf(err, ""))
}

func TestClient_Embed_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddingsFor(1)})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	vectors, err := c.Embed(context.Background(), []string{"text"}, InputTypeDocument)
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Embed_AuthFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid api token"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Embed(context.Background(), []string{"text"}, InputTypeDocument)

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, pipeline.IsRetryable(err))
	assert.Equal(t, pipeline.KindEmbedding, pipeline.KindOf(err, ""))
}

func TestClient_Embed_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddingsFor(1)})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Embed(context.Background(), []string{"one", "two"}, InputTypeDocument)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "count mismatch")
	assert.False(t, pipeline.IsRetryable(err))
}

func TestClient_Embed_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{0.1, 0.2}}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Embed(context.Background(), []string{"text"}, InputTypeDocument)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
	assert.False(t, pipeline.IsRetryable(err))
}

func TestClient_Embed_ServerErrorExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Embed(context.Background(), []string{"text"}, InputTypeDocument)

	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}
