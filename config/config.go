// Package config provides configuration loading and validation for the
// ingestion and retrieval pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// allowedDimensions lists the embedding dimensions the pipeline accepts.
var allowedDimensions = []int{384, 512, 768, 1024, 1536}

// Config is the complete pipeline configuration.
type Config struct {
	Ingestion   IngestionConfig   `yaml:"ingestion"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
}

// IngestionConfig holds the immutable per-run pipeline parameters.
// Invalid values fail Validate; nothing is silently clamped.
type IngestionConfig struct {
	// ChunkSize is the target chunk size in tokens (128-2048).
	ChunkSize int `yaml:"chunk_size"`

	// ChunkOverlap is the token overlap between adjacent chunks
	// (0 < overlap < chunk size).
	ChunkOverlap int `yaml:"chunk_overlap"`

	// Concurrency caps the number of URLs in flight (1-10).
	Concurrency int `yaml:"concurrency"`

	// MaxRetries is the retry count for transient failures (0-5).
	MaxRetries int `yaml:"max_retries"`

	// Collection is the target vector-store collection name.
	Collection string `yaml:"collection"`

	// FetchTimeout is the per-request timeout for document fetches.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// EmbeddingConfig configures the embedding service client.
type EmbeddingConfig struct {
	// BaseURL is the embedding API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model is the embedding model identifier.
	Model string `yaml:"model"`

	// Dimension is the vector size produced by the model
	// (one of 384, 512, 768, 1024, 1536).
	Dimension int `yaml:"dimension"`

	// APIKey authenticates embedding requests. Loaded from the
	// environment, never from config files.
	APIKey string `yaml:"-"`
}

// VectorStoreConfig configures the vector store client.
type VectorStoreConfig struct {
	// URL is the vector store endpoint.
	URL string `yaml:"url"`

	// APIKey authenticates vector-store requests. Loaded from the
	// environment, never from config files.
	APIKey string `yaml:"-"`
}

// DefaultConfig returns a Config with the pipeline defaults.
func DefaultConfig() *Config {
	return &Config{
		Ingestion: IngestionConfig{
			ChunkSize:    512,
			ChunkOverlap: 50,
			Concurrency:  5,
			MaxRetries:   3,
			Collection:   "web_documents",
			FetchTimeout: 30 * time.Second,
		},
		Embedding: EmbeddingConfig{
			BaseURL:   "https://api.cohere.com/v1",
			Model:     "embed-english-v3.0",
			Dimension: 1024,
		},
		VectorStore: VectorStoreConfig{},
	}
}

// Validate checks the full configuration.
func (c *Config) Validate() error {
	if err := c.Ingestion.Validate(); err != nil {
		return err
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if !validDimension(c.Embedding.Dimension) {
		return fmt.Errorf("embedding.dimension must be one of %v, got %d", allowedDimensions, c.Embedding.Dimension)
	}
	return nil
}

// Validate checks the ingestion parameter ranges.
func (c *IngestionConfig) Validate() error {
	if c.ChunkSize < 128 || c.ChunkSize > 2048 {
		return fmt.Errorf("chunk_size must be between 128 and 2048, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap <= 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap must be between 0 and %d exclusive, got %d", c.ChunkSize, c.ChunkOverlap)
	}
	if c.Concurrency < 1 || c.Concurrency > 10 {
		return fmt.Errorf("concurrency must be between 1 and 10, got %d", c.Concurrency)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 5 {
		return fmt.Errorf("max_retries must be between 0 and 5, got %d", c.MaxRetries)
	}
	if c.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive, got %s", c.FetchTimeout)
	}
	return nil
}

func validDimension(dim int) bool {
	for _, d := range allowedDimensions {
		if dim == d {
			return true
		}
	}
	return false
}

// LoadFromFile loads configuration from a YAML file on top of defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Ingestion
	if other.Ingestion.ChunkSize != 0 {
		c.Ingestion.ChunkSize = other.Ingestion.ChunkSize
	}
	if other.Ingestion.ChunkOverlap != 0 {
		c.Ingestion.ChunkOverlap = other.Ingestion.ChunkOverlap
	}
	if other.Ingestion.Concurrency != 0 {
		c.Ingestion.Concurrency = other.Ingestion.Concurrency
	}
	if other.Ingestion.MaxRetries != 0 {
		c.Ingestion.MaxRetries = other.Ingestion.MaxRetries
	}
	if other.Ingestion.Collection != "" {
		c.Ingestion.Collection = other.Ingestion.Collection
	}
	if other.Ingestion.FetchTimeout != 0 {
		c.Ingestion.FetchTimeout = other.Ingestion.FetchTimeout
	}

	// Embedding
	if other.Embedding.BaseURL != "" {
		c.Embedding.BaseURL = other.Embedding.BaseURL
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimension != 0 {
		c.Embedding.Dimension = other.Embedding.Dimension
	}
	if other.Embedding.APIKey != "" {
		c.Embedding.APIKey = other.Embedding.APIKey
	}

	// Vector store
	if other.VectorStore.URL != "" {
		c.VectorStore.URL = other.VectorStore.URL
	}
	if other.VectorStore.APIKey != "" {
		c.VectorStore.APIKey = other.VectorStore.APIKey
	}
}
