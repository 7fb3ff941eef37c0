// Package retrieve answers natural-language queries against the vector
// store: embed the query, search, and return score-ordered chunks.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/c360studio/webrag/config"
	"github.com/c360studio/webrag/embed"
	"github.com/c360studio/webrag/pipeline"
	"github.com/c360studio/webrag/vectorstore"
)

// Embedder converts a query to a vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the vector-store surface retrieval needs.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, q vectorstore.Query) ([]vectorstore.ScoredRecord, error)
}

// Params bound a retrieval request.
type Params struct {
	TopK           int
	ScoreThreshold float64
	URLFilter      string
}

// DefaultParams returns the standard retrieval parameters.
func DefaultParams() Params {
	return Params{TopK: 5, ScoreThreshold: 0.0}
}

// Validate rejects out-of-range parameters before any network work.
func (p Params) Validate() error {
	if p.TopK < 1 || p.TopK > 100 {
		return pipeline.Errorf(pipeline.KindValidation, "top_k must be between 1 and 100, got %d", p.TopK)
	}
	if p.ScoreThreshold < 0 || p.ScoreThreshold > 1 {
		return pipeline.Errorf(pipeline.KindValidation, "score_threshold must be between 0.0 and 1.0, got %g", p.ScoreThreshold)
	}
	return nil
}

// RetrievedChunk is one search hit with its source metadata. Rank is
// 1-based position in the result set.
type RetrievedChunk struct {
	ID         string  `json:"id"`
	Rank       int     `json:"rank"`
	Score      float64 `json:"score"`
	URL        string  `json:"url"`
	Title      string  `json:"title,omitempty"`
	ChunkText  string  `json:"chunk_text"`
	ChunkIndex int     `json:"chunk_index"`
	TokenCount int     `json:"token_count"`
}

// Result is a ranked answer set with aggregate score statistics.
type Result struct {
	Query        string           `json:"query"`
	Chunks       []RetrievedChunk `json:"chunks"`
	TotalResults int              `json:"total_results"`
	TopScore     float64          `json:"top_score"`
	AvgScore     float64          `json:"avg_score"`
	Latency      time.Duration    `json:"latency"`
}

// Retriever embeds queries and searches a collection.
type Retriever struct {
	embedder   Embedder
	searcher   Searcher
	collection string
	logger     *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithEmbedder replaces the embedding client.
func WithEmbedder(e Embedder) Option {
	return func(r *Retriever) { r.embedder = e }
}

// WithSearcher replaces the vector store client.
func WithSearcher(s Searcher) Option {
	return func(r *Retriever) { r.searcher = s }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) { r.logger = logger }
}

// New builds a Retriever from validated configuration.
func New(cfg *config.Config, opts ...Option) *Retriever {
	r := &Retriever{
		collection: cfg.Ingestion.Collection,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.embedder == nil {
		r.embedder = embed.NewClient(cfg.Embedding, embed.WithLogger(r.logger))
	}
	if r.searcher == nil {
		r.searcher = vectorstore.NewClient(cfg.VectorStore, vectorstore.WithLogger(r.logger))
	}

	return r
}

// Retrieve answers a query. Parameter validation failures surface before
// any embedding or search call is made.
func (r *Retriever) Retrieve(ctx context.Context, query string, params Params) (*Result, error) {
	if query == "" {
		return nil, pipeline.Errorf(pipeline.KindValidation, "query must not be empty")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := r.searcher.Search(ctx, r.collection, vector, vectorstore.Query{
		TopK:           params.TopK,
		ScoreThreshold: params.ScoreThreshold,
		URLFilter:      params.URLFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("searching collection %q: %w", r.collection, err)
	}

	// The store already ranks results, but the ordering contract is ours
	// to keep. Stable sort preserves store order among equal scores.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	result := &Result{
		Query:  query,
		Chunks: make([]RetrievedChunk, 0, len(hits)),
	}

	var sum float64
	for i, h := range hits {
		result.Chunks = append(result.Chunks, RetrievedChunk{
			ID:         h.ID,
			Rank:       i + 1,
			Score:      h.Score,
			URL:        h.Record.URL,
			Title:      h.Record.Title,
			ChunkText:  h.Record.ChunkText,
			ChunkIndex: h.Record.ChunkIndex,
			TokenCount: h.Record.TokenCount,
		})
		sum += h.Score
	}

	result.TotalResults = len(result.Chunks)
	if len(hits) > 0 {
		result.TopScore = result.Chunks[0].Score
		result.AvgScore = sum / float64(len(hits))
	}
	result.Latency = time.Since(start)

	r.logger.Info("Query answered",
		"query", query,
		"results", len(result.Chunks),
		"top_score", result.TopScore,
		"latency", result.Latency)

	return result, nil
}
