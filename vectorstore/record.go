package vectorstore

import "time"

// StoredRecord is one chunk plus provenance, embedded as a vector and
// persisted in the store. The store is the sole system of record; the
// pipeline keeps no separate index.
type StoredRecord struct {
	// URL is the source document URL.
	URL string

	// Title is the document title, when one was extracted.
	Title string

	// ChunkText is the chunk content.
	ChunkText string

	// ChunkIndex is the zero-based chunk position in the document.
	ChunkIndex int

	// TokenCount is the chunk size in tokens.
	TokenCount int

	// Timestamp is the ingestion time.
	Timestamp time.Time

	// ChunkSize and ChunkOverlap are the chunking parameters used.
	ChunkSize    int
	ChunkOverlap int

	// ModelName is the embedding model identifier.
	ModelName string

	// Dimension is the vector dimensionality.
	Dimension int

	// Vector is the embedding. Never round-tripped on reads.
	Vector []float32
}

// ScoredRecord is a search hit: a stored record with its similarity
// score and opaque point identifier.
type ScoredRecord struct {
	ID     string
	Score  float64
	Record StoredRecord
}

// payload is the wire representation of a StoredRecord's metadata.
// The (de)serialization boundary to the store lives here and nowhere
// else.
type payload struct {
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	ChunkText    string `json:"chunk_text"`
	ChunkIndex   int    `json:"chunk_index"`
	TokenCount   int    `json:"token_count"`
	Timestamp    string `json:"timestamp"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
	ModelName    string `json:"model_name"`
	Dimension    int    `json:"dimension"`
}

func toPayload(r StoredRecord) payload {
	return payload{
		URL:          r.URL,
		Title:        r.Title,
		ChunkText:    r.ChunkText,
		ChunkIndex:   r.ChunkIndex,
		TokenCount:   r.TokenCount,
		Timestamp:    r.Timestamp.UTC().Format(time.RFC3339),
		ChunkSize:    r.ChunkSize,
		ChunkOverlap: r.ChunkOverlap,
		ModelName:    r.ModelName,
		Dimension:    r.Dimension,
	}
}

func fromPayload(p payload) StoredRecord {
	ts, _ := time.Parse(time.RFC3339, p.Timestamp)
	return StoredRecord{
		URL:          p.URL,
		Title:        p.Title,
		ChunkText:    p.ChunkText,
		ChunkIndex:   p.ChunkIndex,
		TokenCount:   p.TokenCount,
		Timestamp:    ts,
		ChunkSize:    p.ChunkSize,
		ChunkOverlap: p.ChunkOverlap,
		ModelName:    p.ModelName,
		Dimension:    p.Dimension,
	}
}
