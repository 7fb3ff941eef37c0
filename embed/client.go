// Package embed provides the embedding service client. Document and
// query text use different encoding modes; mixing them up silently
// degrades retrieval, so the input type is explicit on every call.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/webrag/config"
	"github.com/c360studio/webrag/pipeline"
)

// maxResponseSize limits the embedding response body.
const maxResponseSize = 32 * 1024 * 1024 // 32MB

// InputType selects the asymmetric encoding mode of the embedding model.
type InputType string

const (
	// InputTypeDocument encodes corpus text for storage.
	InputTypeDocument InputType = "search_document"

	// InputTypeQuery encodes query text for retrieval.
	InputTypeQuery InputType = "search_query"
)

// Client calls the embedding service over HTTP with bounded retry on
// transient provider failures.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
	retry      pipeline.RetryConfig
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) { client.httpClient = c }
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg pipeline.RetryConfig) Option {
	return func(client *Client) { client.retry = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(client *Client) { client.logger = logger }
}

// NewClient creates an embedding client from configuration.
func NewClient(cfg config.EmbeddingConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		retry:  pipeline.DefaultRetryConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Model returns the configured embedding model identifier.
func (c *Client) Model() string { return c.model }

// Dimension returns the configured vector dimensionality.
func (c *Client) Dimension() int { return c.dimension }

// embedRequest is the embedding service request body.
type embedRequest struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
}

// embedResponse is the embedding service response body.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed converts texts into one fixed-length vector per input, in input
// order. Rate limits and server faults are retried; auth and malformed
// input fail immediately.
func (c *Client) Embed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, pipeline.Errorf(pipeline.KindEmbedding, "no texts to embed")
	}

	var vectors [][]float32
	err := pipeline.Do(ctx, c.retry, c.logger, "embed", func() error {
		v, err := c.doEmbed(ctx, texts, inputType)
		if err != nil {
			return err
		}
		vectors = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Generated embeddings",
		"count", len(vectors),
		"model", c.model,
		"input_type", string(inputType))

	return vectors, nil
}

// EmbedQuery embeds a single query string with the query input type.
func (c *Client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{query}, InputTypeQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) doEmbed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{
		Texts:     texts,
		Model:     c.model,
		InputType: string(inputType),
	})
	if err != nil {
		return nil, pipeline.NewFatal(pipeline.KindEmbedding, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, pipeline.NewFatal(pipeline.KindEmbedding, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pipeline.NewTransient(pipeline.KindEmbedding, fmt.Errorf("embed request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, pipeline.NewTransient(pipeline.KindEmbedding, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, pipeline.ClassifyStatus(pipeline.KindEmbedding, resp.StatusCode, respBody)
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, pipeline.NewFatal(pipeline.KindEmbedding, fmt.Errorf("parse response: %w", err))
	}

	if len(parsed.Embeddings) != len(texts) {
		return nil, pipeline.Errorf(pipeline.KindEmbedding,
			"embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(parsed.Embeddings))
	}
	for i, v := range parsed.Embeddings {
		if len(v) != c.dimension {
			return nil, pipeline.Errorf(pipeline.KindEmbedding,
				"vector %d has dimension %d, want %d", i, len(v), c.dimension)
		}
	}

	return parsed.Embeddings, nil
}
