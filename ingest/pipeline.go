// Package ingest drives URLs through the fetch → extract → chunk →
// embed → store pipeline and coordinates batches under a concurrency
// ceiling.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/webrag/chunk"
	"github.com/c360studio/webrag/config"
	"github.com/c360studio/webrag/embed"
	"github.com/c360studio/webrag/extract"
	"github.com/c360studio/webrag/fetch"
	"github.com/c360studio/webrag/pipeline"
	"github.com/c360studio/webrag/vectorstore"
)

// Fetcher retrieves raw content for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// Extractor converts raw markup to clean text plus an optional title.
type Extractor interface {
	Extract(htmlBody []byte, sourceURL string) (*extract.Document, error)
}

// Chunker splits clean text into token-bounded chunks.
type Chunker interface {
	Split(text string) []chunk.Chunk
}

// Embedder converts text segments to fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string, inputType embed.InputType) ([][]float32, error)
	Model() string
	Dimension() int
}

// Store is the vector-store surface the pipeline needs.
type Store interface {
	EnsureCollection(ctx context.Context, name string, vectorSize int) error
	Upsert(ctx context.Context, collection string, records []vectorstore.StoredRecord) error
	HasURL(ctx context.Context, collection, url string) (bool, error)
}

// Pipeline processes URLs through the five ingestion stages. Each URL is
// sequential internally; concurrency exists only across URLs (see Run).
type Pipeline struct {
	fetcher   Fetcher
	extractor Extractor
	chunker   Chunker
	embedder  Embedder
	store     Store
	cfg       config.IngestionConfig
	embedCfg  config.EmbeddingConfig
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f Fetcher) Option {
	return func(p *Pipeline) { p.fetcher = f }
}

// WithExtractor replaces the text extractor.
func WithExtractor(e Extractor) Option {
	return func(p *Pipeline) { p.extractor = e }
}

// WithChunker replaces the chunker.
func WithChunker(c Chunker) Option {
	return func(p *Pipeline) { p.chunker = c }
}

// WithEmbedder replaces the embedding client.
func WithEmbedder(e Embedder) Option {
	return func(p *Pipeline) { p.embedder = e }
}

// WithStore replaces the vector store client.
func WithStore(s Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// New wires a Pipeline from validated configuration. The configuration
// must have passed Validate; New does not re-validate.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	retry := pipeline.DefaultRetryConfig().WithMaxAttempts(cfg.Ingestion.MaxRetries)

	p := &Pipeline{
		cfg:      cfg.Ingestion,
		embedCfg: cfg.Embedding,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.fetcher == nil {
		p.fetcher = fetch.NewFetcher(cfg.Ingestion.FetchTimeout,
			fetch.WithRetryConfig(retry),
			fetch.WithLogger(p.logger))
	}
	if p.extractor == nil {
		p.extractor = extract.NewExtractor()
	}
	if p.chunker == nil {
		p.chunker = chunk.MustNew(chunk.Config{
			ChunkSize:    cfg.Ingestion.ChunkSize,
			ChunkOverlap: cfg.Ingestion.ChunkOverlap,
		})
	}
	if p.embedder == nil {
		p.embedder = embed.NewClient(cfg.Embedding,
			embed.WithRetryConfig(retry),
			embed.WithLogger(p.logger))
	}
	if p.store == nil {
		p.store = vectorstore.NewClient(cfg.VectorStore,
			vectorstore.WithRetryConfig(retry),
			vectorstore.WithLogger(p.logger))
	}

	return p
}

// ProcessURL runs one URL through the full pipeline. Any stage failure
// short-circuits to a terminal failure; there is no partial credit —
// the store is only written once, with the complete chunk set.
func (p *Pipeline) ProcessURL(ctx context.Context, url string, skipDuplicates bool) (Outcome, int, *FailedURL) {
	if skipDuplicates {
		exists, err := p.store.HasURL(ctx, p.cfg.Collection, url)
		if err != nil {
			// Degraded dedup: assume the URL is new rather than fail it.
			p.logger.Warn("Duplicate check failed, assuming URL is new",
				"url", url, "error", err)
		} else if exists {
			p.logger.Info("Skipping duplicate URL", "url", url)
			return OutcomeSkipped, 0, nil
		}
	}

	res, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return p.fail(url, pipeline.KindHTTP, err)
	}
	if res.StatusCode != 200 {
		return p.fail(url, pipeline.KindHTTP, fmt.Errorf("HTTP %d", res.StatusCode))
	}

	doc, err := p.extractor.Extract(res.Body, url)
	if err != nil {
		return p.fail(url, pipeline.KindParse, err)
	}

	chunks := p.chunker.Split(doc.Text)
	if len(chunks) == 0 {
		return p.fail(url, pipeline.KindParse, fmt.Errorf("no chunks produced"))
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.Embed(ctx, texts, embed.InputTypeDocument)
	if err != nil {
		return p.fail(url, pipeline.KindEmbedding, err)
	}

	now := time.Now()
	records := make([]vectorstore.StoredRecord, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.StoredRecord{
			URL:          url,
			Title:        doc.Title,
			ChunkText:    c.Text,
			ChunkIndex:   c.Index,
			TokenCount:   c.TokenCount,
			Timestamp:    now,
			ChunkSize:    p.cfg.ChunkSize,
			ChunkOverlap: p.cfg.ChunkOverlap,
			ModelName:    p.embedder.Model(),
			Dimension:    p.embedder.Dimension(),
			Vector:       vectors[i],
		}
	}

	if err := p.store.Upsert(ctx, p.cfg.Collection, records); err != nil {
		return p.fail(url, pipeline.KindStorage, err)
	}

	p.logger.Info("Ingested URL", "url", url, "chunks", len(chunks), "title", doc.Title)
	return OutcomeSuccess, len(chunks), nil
}

// fail builds the FailedURL record for a classified stage error.
func (p *Pipeline) fail(url string, fallback pipeline.ErrorKind, err error) (Outcome, int, *FailedURL) {
	kind := pipeline.KindOf(err, fallback)
	p.logger.Error("Failed to ingest URL", "url", url, "kind", string(kind), "error", err)
	return OutcomeFailed, 0, &FailedURL{
		URL:       url,
		ErrorType: kind,
		Message:   err.Error(),
		Timestamp: time.Now(),
	}
}
