package ingest

import (
	"time"

	"github.com/c360studio/webrag/pipeline"
)

// Outcome is the terminal state of one URL's trip through the pipeline.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// FailedURL records one failed ingestion attempt. The failing stage's
// retry policy has already run; failures here are terminal.
type FailedURL struct {
	URL       string             `json:"url"`
	ErrorType pipeline.ErrorKind `json:"error_type"`
	Message   string             `json:"error_message"`
	Timestamp time.Time          `json:"timestamp"`
}

// Result aggregates a batch run. Immutable after return.
type Result struct {
	SuccessCount int           `json:"success_count"`
	FailedCount  int           `json:"failed_count"`
	SkippedCount int           `json:"skipped_count"`
	TotalChunks  int           `json:"total_chunks"`
	Duration     time.Duration `json:"duration"`
	FailedURLs   []FailedURL   `json:"failed_urls,omitempty"`
}

// SuccessRate returns the percentage of processed URLs that succeeded.
// Skipped URLs don't count either way; an empty run is 0.
func (r *Result) SuccessRate() float64 {
	total := r.SuccessCount + r.FailedCount
	if total == 0 {
		return 0.0
	}
	return float64(r.SuccessCount) / float64(total) * 100
}
