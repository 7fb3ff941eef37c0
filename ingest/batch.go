package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/c360studio/webrag/pipeline"
)

// Options controls batch behaviour.
type Options struct {
	// SkipDuplicates checks the store for each URL before fetching and
	// skips ones already present.
	SkipDuplicates bool
}

// Run processes a batch of URLs with at most Concurrency in flight.
// The collection is created (or verified) once up front; if that fails
// the whole batch aborts since nothing could be stored anyway. Per-URL
// failures never stop the batch.
func (p *Pipeline) Run(ctx context.Context, urls []string, opts Options) (*Result, error) {
	start := time.Now()

	if err := p.store.EnsureCollection(ctx, p.cfg.Collection, p.embedder.Dimension()); err != nil {
		return nil, fmt.Errorf("ensuring collection %q: %w", p.cfg.Collection, err)
	}

	result := &Result{}
	if len(urls) == 0 {
		result.Duration = time.Since(start)
		return result, nil
	}

	p.logger.Info("Starting batch ingestion",
		"urls", len(urls),
		"concurrency", p.cfg.Concurrency,
		"collection", p.cfg.Collection)

	sem := semaphore.NewWeighted(int64(p.cfg.Concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	record := func(outcome Outcome, chunks int, failed *FailedURL) {
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case OutcomeSuccess:
			result.SuccessCount++
			result.TotalChunks += chunks
		case OutcomeSkipped:
			result.SkippedCount++
		case OutcomeFailed:
			result.FailedCount++
			if failed != nil {
				result.FailedURLs = append(result.FailedURLs, *failed)
			}
		}
		urlsProcessed.WithLabelValues(string(outcome)).Inc()
		chunksStored.Add(float64(chunks))
	}

	for _, url := range urls {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled; remaining URLs count as failures.
			record(OutcomeFailed, 0, &FailedURL{
				URL:       url,
				ErrorType: pipeline.KindHTTP,
				Message:   err.Error(),
				Timestamp: time.Now(),
			})
			continue
		}

		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					// Never classified by ProcessURL, so the entry
					// carries no URL attribution.
					p.logger.Error("Panic while processing URL", "url", url, "panic", r)
					record(OutcomeFailed, 0, &FailedURL{
						URL:       "unknown",
						ErrorType: pipeline.KindParse,
						Message:   fmt.Sprintf("panic: %v", r),
						Timestamp: time.Now(),
					})
				}
			}()

			urlStart := time.Now()
			outcome, chunks, failed := p.ProcessURL(ctx, url, opts.SkipDuplicates)
			urlDuration.Observe(time.Since(urlStart).Seconds())
			record(outcome, chunks, failed)
		}(url)
	}

	wg.Wait()
	result.Duration = time.Since(start)

	p.logger.Info("Batch ingestion complete",
		"success", result.SuccessCount,
		"failed", result.FailedCount,
		"skipped", result.SkippedCount,
		"chunks", result.TotalChunks,
		"success_rate", fmt.Sprintf("%.1f%%", result.SuccessRate()),
		"duration", result.Duration)

	return result, nil
}
