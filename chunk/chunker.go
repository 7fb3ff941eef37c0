// Package chunk splits clean document text into overlapping
// token-bounded segments for embedding.
package chunk

import (
	"fmt"
	"strings"
)

// charsPerToken is the approximate average characters per token, used
// only for the hard-cut fallback when no natural boundary exists.
const charsPerToken = 4

// separators is the boundary hierarchy: paragraph, line, sentence end,
// then plain whitespace. Hard character cuts are the final fallback.
var separators = []string{"\n\n", "\n", ". ", " "}

// Chunk is a contiguous token-bounded slice of a document.
type Chunk struct {
	// Text is the chunk content.
	Text string

	// Index is the zero-based position within the document.
	Index int

	// TokenCount is the chunk size in tokenizer tokens.
	TokenCount int
}

// Config holds chunking configuration.
type Config struct {
	// ChunkSize is the token budget per chunk.
	ChunkSize int

	// ChunkOverlap is the number of tokens adjacent chunks share.
	ChunkOverlap int
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("ChunkSize must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap <= 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("ChunkOverlap must be between 0 and ChunkSize (%d) exclusive, got %d", c.ChunkSize, c.ChunkOverlap)
	}
	return nil
}

// Chunker splits text into overlapping token-bounded chunks. Boundaries
// are deterministic for a fixed (text, size, overlap) triple.
type Chunker struct {
	config    Config
	tokenizer Tokenizer
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithTokenizer replaces the default word tokenizer.
func WithTokenizer(t Tokenizer) Option {
	return func(c *Chunker) { c.tokenizer = t }
}

// New creates a Chunker with the given configuration.
// Returns an error if the configuration is invalid.
func New(cfg Config, opts ...Option) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Chunker{
		config:    cfg,
		tokenizer: WordTokenizer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// MustNew creates a Chunker, panicking on invalid config.
// Use for known-good configurations.
func MustNew(cfg Config) *Chunker {
	c, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// Tokenizer returns the tokenizer used for budgeting and overlap.
func (c *Chunker) Tokenizer() Tokenizer {
	return c.tokenizer
}

// Split chunks text into an ordered sequence covering the whole input.
// Adjacent chunks share up to ChunkOverlap trailing/leading tokens.
func (c *Chunker) Split(text string) []Chunk {
	pieces := c.split(text, separators)
	if len(pieces) == 0 {
		return nil
	}
	return c.merge(pieces)
}

// piece is an atomic fragment within the token budget.
type piece struct {
	text   string
	tokens int
}

// split recursively divides text at the strongest boundary that keeps
// every fragment within the token budget. Separators stay attached to
// the preceding fragment so joining fragments reconstructs the text.
func (c *Chunker) split(text string, seps []string) []piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if n := c.tokenizer.Count(text); n <= c.config.ChunkSize {
		return []piece{{text: text, tokens: n}}
	}
	if len(seps) == 0 {
		return c.hardCut(text)
	}

	parts := strings.SplitAfter(text, seps[0])
	if len(parts) <= 1 {
		return c.split(text, seps[1:])
	}

	var pieces []piece
	for _, part := range parts {
		if part == "" {
			continue
		}
		if c.tokenizer.Count(part) > c.config.ChunkSize {
			pieces = append(pieces, c.split(part, seps[1:])...)
		} else if n := c.tokenizer.Count(part); n > 0 {
			pieces = append(pieces, piece{text: part, tokens: n})
		} else {
			// Whitespace-only fragment: keep it glued to the previous
			// piece so reconstruction stays exact.
			if len(pieces) > 0 {
				pieces[len(pieces)-1].text += part
			}
		}
	}
	return pieces
}

// hardCut cuts text at character boundaries when no natural boundary
// exists within the budget.
func (c *Chunker) hardCut(text string) []piece {
	maxChars := c.config.ChunkSize * charsPerToken
	runes := []rune(text)

	var pieces []piece
	for i := 0; i < len(runes); i += maxChars {
		end := i + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		fragment := string(runes[i:end])
		pieces = append(pieces, piece{text: fragment, tokens: c.tokenizer.Count(fragment)})
	}
	return pieces
}

// merge packs pieces into chunks up to the token budget, carrying the
// trailing pieces whose token total fits the overlap into the next
// chunk.
func (c *Chunker) merge(pieces []piece) []Chunk {
	var chunks []Chunk
	var window []piece
	total := 0

	flush := func() {
		if len(window) == 0 {
			return
		}
		var sb strings.Builder
		for _, p := range window {
			sb.WriteString(p.text)
		}
		text := strings.TrimSpace(sb.String())
		if text == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Text:       text,
			Index:      len(chunks),
			TokenCount: c.tokenizer.Count(text),
		})
	}

	for _, p := range pieces {
		if total+p.tokens > c.config.ChunkSize && len(window) > 0 {
			flush()
			// Retain up to ChunkOverlap trailing tokens for the next
			// chunk, dropping more if the incoming piece would still
			// blow the budget.
			for len(window) > 0 && (total > c.config.ChunkOverlap || total+p.tokens > c.config.ChunkSize) {
				total -= window[0].tokens
				window = window[1:]
			}
		}
		window = append(window, p)
		total += p.tokens
	}
	flush()

	return chunks
}
