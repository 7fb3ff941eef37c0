package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/c360studio/webrag/pipeline"
)

const (
	// ProjectConfigFile is the name of the project-level config file.
	ProjectConfigFile = "webrag.yaml"

	// EnvEmbeddingAPIKey holds the embedding service API key.
	EnvEmbeddingAPIKey = "EMBEDDING_API_KEY"
	// EnvVectorStoreURL holds the vector store endpoint.
	EnvVectorStoreURL = "QDRANT_URL"
	// EnvVectorStoreAPIKey holds the vector store API key.
	EnvVectorStoreAPIKey = "QDRANT_API_KEY"
)

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
//  1. Default config
//  2. Project config (webrag.yaml, or the path given)
//  3. Environment variables (.env honored via godotenv)
//
// Credentials come exclusively from the environment. Missing credentials
// or out-of-range parameters fail with a configuration error before any
// pipeline work starts.
func (l *Loader) Load(configPath string) (*Config, error) {
	config := DefaultConfig()

	path := configPath
	if path == "" {
		path = ProjectConfigFile
	}
	if fileConfig, err := LoadFromFile(path); err == nil {
		l.logger.Debug("Loaded config file", slog.String("path", path))
		config.Merge(fileConfig)
	} else if configPath != "" {
		// An explicitly requested config file must exist.
		return nil, pipeline.NewFatal(pipeline.KindConfiguration, err)
	} else if !os.IsNotExist(err) {
		l.logger.Warn("Failed to load config file", slog.String("path", path), slog.String("error", err.Error()))
	}

	// Best-effort .env load; absence is not an error.
	if err := godotenv.Load(); err == nil {
		l.logger.Debug("Loaded .env file")
	}

	config.Embedding.APIKey = os.Getenv(EnvEmbeddingAPIKey)
	if url := os.Getenv(EnvVectorStoreURL); url != "" {
		config.VectorStore.URL = url
	}
	config.VectorStore.APIKey = os.Getenv(EnvVectorStoreAPIKey)

	if config.Embedding.APIKey == "" {
		return nil, pipeline.Errorf(pipeline.KindConfiguration,
			"%s not set: embedding service credentials are required", EnvEmbeddingAPIKey)
	}
	if config.VectorStore.URL == "" {
		return nil, pipeline.Errorf(pipeline.KindConfiguration,
			"%s not set: vector store endpoint is required", EnvVectorStoreURL)
	}

	if err := config.Validate(); err != nil {
		return nil, pipeline.NewFatal(pipeline.KindConfiguration, fmt.Errorf("invalid configuration: %w", err))
	}

	return config, nil
}
