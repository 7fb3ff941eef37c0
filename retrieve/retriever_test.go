package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/webrag/config"
	"github.com/c360studio/webrag/pipeline"
	"github.com/c360studio/webrag/vectorstore"
)

type stubEmbedder struct {
	calls int
	err   error
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

type stubSearcher struct {
	calls   int
	hits    []vectorstore.ScoredRecord
	err     error
	gotQ    vectorstore.Query
	gotColl string
}

func (s *stubSearcher) Search(ctx context.Context, collection string, vector []float32, q vectorstore.Query) ([]vectorstore.ScoredRecord, error) {
	s.calls++
	s.gotColl = collection
	s.gotQ = q
	return s.hits, s.err
}

func hit(url string, index int, score float64) vectorstore.ScoredRecord {
	return vectorstore.ScoredRecord{
		ID:    url,
		Score: score,
		Record: vectorstore.StoredRecord{
			URL:        url,
			Title:      "Title",
			ChunkText:  "chunk text",
			ChunkIndex: index,
		},
	}
}

func testRetriever(e *stubEmbedder, s *stubSearcher) *Retriever {
	cfg := config.DefaultConfig()
	cfg.Embedding.APIKey = "test"
	cfg.VectorStore.URL = "http://localhost:6333"
	return New(cfg, WithEmbedder(e), WithSearcher(s))
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"defaults", DefaultParams(), false},
		{"max top k", Params{TopK: 100, ScoreThreshold: 1.0}, false},
		{"zero top k", Params{TopK: 0}, true},
		{"negative top k", Params{TopK: -5}, true},
		{"top k too large", Params{TopK: 101}, true},
		{"negative threshold", Params{TopK: 5, ScoreThreshold: -0.1}, true},
		{"threshold above one", Params{TopK: 5, ScoreThreshold: 1.01}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, pipeline.KindValidation, pipeline.KindOf(err, ""))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetriever_Retrieve_InvalidParamsFailBeforeNetwork(t *testing.T) {
	e := &stubEmbedder{}
	s := &stubSearcher{}
	r := testRetriever(e, s)

	_, err := r.Retrieve(context.Background(), "query", Params{TopK: 0})
	require.Error(t, err)
	assert.Equal(t, pipeline.KindValidation, pipeline.KindOf(err, ""))
	assert.Equal(t, 0, e.calls, "validation must precede embedding")
	assert.Equal(t, 0, s.calls, "validation must precede search")
}

func TestRetriever_Retrieve_EmptyQueryRejected(t *testing.T) {
	e := &stubEmbedder{}
	r := testRetriever(e, &stubSearcher{})

	_, err := r.Retrieve(context.Background(), "", DefaultParams())
	require.Error(t, err)
	assert.Equal(t, pipeline.KindValidation, pipeline.KindOf(err, ""))
	assert.Equal(t, 0, e.calls)
}

func TestRetriever_Retrieve_ScoreOrderAndStats(t *testing.T) {
	s := &stubSearcher{hits: []vectorstore.ScoredRecord{
		hit("https://example.com/a", 0, 0.9),
		hit("https://example.com/b", 1, 0.5),
		hit("https://example.com/c", 2, 0.7),
	}}
	r := testRetriever(&stubEmbedder{}, s)

	result, err := r.Retrieve(context.Background(), "what is cosine similarity", DefaultParams())
	require.NoError(t, err)

	require.Len(t, result.Chunks, 3)
	assert.Equal(t, []float64{0.9, 0.7, 0.5}, []float64{
		result.Chunks[0].Score, result.Chunks[1].Score, result.Chunks[2].Score,
	})
	for i, c := range result.Chunks {
		assert.Equal(t, i+1, c.Rank)
	}
	assert.Equal(t, 0.9, result.TopScore)
	assert.InDelta(t, 0.7, result.AvgScore, 0.0001)
	assert.Equal(t, "what is cosine similarity", result.Query)
}

func TestRetriever_Retrieve_TieKeepsStoreOrder(t *testing.T) {
	s := &stubSearcher{hits: []vectorstore.ScoredRecord{
		hit("https://example.com/first", 0, 0.8),
		hit("https://example.com/second", 1, 0.8),
	}}
	r := testRetriever(&stubEmbedder{}, s)

	result, err := r.Retrieve(context.Background(), "query", DefaultParams())
	require.NoError(t, err)

	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "https://example.com/first", result.Chunks[0].URL)
	assert.Equal(t, "https://example.com/second", result.Chunks[1].URL)
}

func TestRetriever_Retrieve_EmptyResultSet(t *testing.T) {
	r := testRetriever(&stubEmbedder{}, &stubSearcher{})

	result, err := r.Retrieve(context.Background(), "nothing matches this", DefaultParams())
	require.NoError(t, err)

	assert.Empty(t, result.Chunks)
	assert.Equal(t, 0.0, result.TopScore)
	assert.Equal(t, 0.0, result.AvgScore)
}

func TestRetriever_Retrieve_PassesParamsThrough(t *testing.T) {
	s := &stubSearcher{}
	r := testRetriever(&stubEmbedder{}, s)

	_, err := r.Retrieve(context.Background(), "query", Params{
		TopK:           20,
		ScoreThreshold: 0.4,
		URLFilter:      "docs.example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "web_documents", s.gotColl)
	assert.Equal(t, 20, s.gotQ.TopK)
	assert.Equal(t, 0.4, s.gotQ.ScoreThreshold)
	assert.Equal(t, "docs.example.com", s.gotQ.URLFilter)
}

func TestRetriever_Retrieve_EmbeddingErrorPropagates(t *testing.T) {
	e := &stubEmbedder{err: pipeline.NewFatal(pipeline.KindEmbedding, errors.New("bad key"))}
	s := &stubSearcher{}
	r := testRetriever(e, s)

	_, err := r.Retrieve(context.Background(), "query", DefaultParams())
	require.Error(t, err)
	assert.Equal(t, pipeline.KindEmbedding, pipeline.KindOf(err, ""))
	assert.Equal(t, 0, s.calls, "search must not run without a query vector")
}

func TestRetriever_Retrieve_SearchErrorPropagates(t *testing.T) {
	s := &stubSearcher{err: pipeline.NewTransient(pipeline.KindStorage, errors.New("store down"))}
	r := testRetriever(&stubEmbedder{}, s)

	_, err := r.Retrieve(context.Background(), "query", DefaultParams())
	require.Error(t, err)
	assert.Equal(t, pipeline.KindStorage, pipeline.KindOf(err, ""))
}
