// Package vectorstore is a REST client for the Qdrant vector store:
// collection management, upserts, nearest-neighbor search, and the
// URL-equality lookup used for duplicate detection.
package vectorstore

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

	"github.com/google/uuid"

	"github.com/c360studio/webrag/config"
	"github.com/c360studio/webrag/pipeline"
)

// maxResponseSize limits store response bodies.
const maxResponseSize = 32 * 1024 * 1024 // 32MB

// Client talks to the vector store over its REST API with bounded retry
// on transient RPC failures.
type Client struct {
	baseURL    string
	apiKey     string
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

// NewClient creates a vector store client from configuration.
func NewClient(cfg config.VectorStoreConfig, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry:  pipeline.DefaultRetryConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Query holds similarity search parameters.
type Query struct {
	// TopK caps the number of results.
	TopK int

	// ScoreThreshold drops results below this similarity.
	ScoreThreshold float64

	// URLFilter, when non-empty, restricts results to records whose URL
	// contains it.
	URLFilter string
}

// collectionInfo is the subset of the describe-collection response the
// client inspects.
type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// EnsureCollection creates the named collection with cosine-distance
// vectors if absent, and establishes the keyword index on the URL field.
// An existing collection of matching dimension is a no-op; a mismatched
// dimension is a fatal configuration error, never silently migrated.
func (c *Client) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	return pipeline.Do(ctx, c.retry, c.logger, "ensure_collection", func() error {
		var info collectionInfo
		status, err := c.doJSON(ctx, http.MethodGet, "/collections/"+name, nil, &info)
		if err != nil {
			return err
		}

		switch {
		case status == http.StatusOK:
			got := info.Result.Config.Params.Vectors.Size
			if got != vectorSize {
				return pipeline.Errorf(pipeline.KindConfiguration,
					"collection %q has dimension %d, config wants %d", name, got, vectorSize)
			}
		case status == http.StatusNotFound:
			body := map[string]any{
				"vectors": map[string]any{
					"size":     vectorSize,
					"distance": "Cosine",
				},
			}
			if status, err := c.doJSON(ctx, http.MethodPut, "/collections/"+name, body, nil); err != nil {
				return err
			} else if status >= 300 {
				return pipeline.ClassifyStatus(pipeline.KindStorage, status, nil)
			}
			c.logger.Info("Created collection", "name", name, "dimension", vectorSize)
		default:
			return pipeline.ClassifyStatus(pipeline.KindStorage, status, nil)
		}

		// Keyword index on url makes dedup lookups efficient. Qdrant
		// treats re-creation as a no-op, so this is safe to repeat.
		indexBody := map[string]any{
			"field_name":   "url",
			"field_schema": "keyword",
		}
		status, err = c.doJSON(ctx, http.MethodPut, "/collections/"+name+"/index?wait=true", indexBody, nil)
		if err != nil {
			return err
		}
		if status >= 300 && status != http.StatusConflict {
			return pipeline.ClassifyStatus(pipeline.KindStorage, status, nil)
		}
		return nil
	})
}

// Upsert writes records with their vectors to the collection. Every
// record gets a fresh opaque identifier; the store is append/overwrite,
// never content-addressed by the pipeline.
func (c *Client) Upsert(ctx context.Context, collection string, records []StoredRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]map[string]any, len(records))
	for i, r := range records {
		points[i] = map[string]any{
			"id":      uuid.New().String(),
			"vector":  r.Vector,
			"payload": toPayload(r),
		}
	}
	body := map[string]any{"points": points}

	return pipeline.Do(ctx, c.retry, c.logger, "upsert", func() error {
		status, err := c.doJSON(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body, nil)
		if err != nil {
			return err
		}
		if status >= 300 {
			return pipeline.ClassifyStatus(pipeline.KindStorage, status, nil)
		}
		return nil
	})
}

// searchResponse is the wire shape of a similarity search result.
type searchResponse struct {
	Result []struct {
		ID      any     `json:"id"`
		Score   float64 `json:"score"`
		Payload payload `json:"payload"`
	} `json:"result"`
}

// Search returns up to q.TopK records with similarity at or above
// q.ScoreThreshold, ordered by descending similarity. Ties keep stored
// order, so results are stable for a fixed store state.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, q Query) ([]ScoredRecord, error) {
	body := map[string]any{
		"vector":          vector,
		"limit":           q.TopK,
		"score_threshold": q.ScoreThreshold,
		"with_payload":    true,
	}
	if q.URLFilter != "" {
		body["filter"] = map[string]any{
			"must": []any{
				map[string]any{
					"key":   "url",
					"match": map[string]any{"text": q.URLFilter},
				},
			},
		}
	}

	var records []ScoredRecord
	err := pipeline.Do(ctx, c.retry, c.logger, "search", func() error {
		var resp searchResponse
		status, err := c.doJSON(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body, &resp)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return pipeline.ClassifyStatus(pipeline.KindStorage, status, nil)
		}

		records = make([]ScoredRecord, 0, len(resp.Result))
		for _, r := range resp.Result {
			records = append(records, ScoredRecord{
				ID:     fmt.Sprint(r.ID),
				Score:  r.Score,
				Record: fromPayload(r.Payload),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// scrollResponse is the wire shape of a scroll lookup.
type scrollResponse struct {
	Result struct {
		Points []struct {
			ID any `json:"id"`
		} `json:"points"`
	} `json:"result"`
}

// HasURL reports whether any record exists for the exact URL.
func (c *Client) HasURL(ctx context.Context, collection, url string) (bool, error) {
	body := map[string]any{
		"filter": map[string]any{
			"must": []any{
				map[string]any{
					"key":   "url",
					"match": map[string]any{"value": url},
				},
			},
		},
		"limit": 1,
	}

	var exists bool
	err := pipeline.Do(ctx, c.retry, c.logger, "has_url", func() error {
		var resp scrollResponse
		status, err := c.doJSON(ctx, http.MethodPost, "/collections/"+collection+"/points/scroll", body, &resp)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return pipeline.ClassifyStatus(pipeline.KindStorage, status, nil)
		}
		exists = len(resp.Result.Points) > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return exists, nil
}

// doJSON executes one store RPC, decoding the response into out when
// non-nil. Transport failures are transient; HTTP statuses come back to
// the caller for classification.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, pipeline.NewFatal(pipeline.KindStorage, fmt.Errorf("marshal request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, pipeline.NewFatal(pipeline.KindStorage, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, pipeline.NewTransient(pipeline.KindStorage, fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, pipeline.NewTransient(pipeline.KindStorage, fmt.Errorf("read response: %w", err))
	}

	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, pipeline.NewFatal(pipeline.KindStorage, fmt.Errorf("parse response: %w", err))
		}
	}

	return resp.StatusCode, nil
}
