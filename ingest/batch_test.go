package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/webrag/chunk"
	"github.com/c360studio/webrag/fetch"
	"github.com/c360studio/webrag/pipeline"
)

func TestRun_AllSucceed(t *testing.T) {
	store := newMemStore()
	p := testPipeline(&stubFetcher{}, store)

	urls := []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}
	result, err := p.Run(context.Background(), urls, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.SuccessCount)
	assert.Equal(t, 0, result.FailedCount)
	assert.Equal(t, 0, result.SkippedCount)
	assert.Greater(t, result.TotalChunks, 0)
	assert.Greater(t, result.Duration, time.Duration(0))
	assert.InDelta(t, 100.0, result.SuccessRate(), 0.001)
	assert.Equal(t, 1, store.ensureCalls)
}

func TestRun_FailureIsolation(t *testing.T) {
	f := &stubFetcher{responses: map[string]*fetch.Result{
		"https://example.com/broken": {StatusCode: 500},
	}}
	store := newMemStore()
	p := testPipeline(f, store)

	urls := []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/broken",
		"https://example.com/c",
		"https://example.com/d",
	}
	result, err := p.Run(context.Background(), urls, Options{})
	require.NoError(t, err)

	// One bad URL never takes the batch down with it.
	assert.Equal(t, 4, result.SuccessCount)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.FailedURLs, 1)
	assert.Equal(t, "https://example.com/broken", result.FailedURLs[0].URL)
	assert.Equal(t, pipeline.KindHTTP, result.FailedURLs[0].ErrorType)
	assert.Equal(t, "HTTP 500", result.FailedURLs[0].Message)
	assert.InDelta(t, 80.0, result.SuccessRate(), 0.001)
}

func TestRun_EmptyBatch(t *testing.T) {
	store := newMemStore()
	p := testPipeline(&stubFetcher{}, store)

	result, err := p.Run(context.Background(), nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, 0, result.FailedCount)
	assert.Equal(t, 0.0, result.SuccessRate())
	// The collection is still ensured even when there is nothing to do.
	assert.Equal(t, 1, store.ensureCalls)
}

func TestRun_EnsureCollectionFailureAborts(t *testing.T) {
	store := newMemStore()
	store.ensureErr = pipeline.NewFatal(pipeline.KindStorage, errors.New("store unreachable"))
	f := &stubFetcher{}
	p := testPipeline(f, store)

	_, err := p.Run(context.Background(), []string{"https://example.com/a"}, Options{})

	require.Error(t, err)
	assert.Equal(t, pipeline.KindStorage, pipeline.KindOf(err, ""))
	assert.Equal(t, 0, f.fetchCount(), "no URL may be fetched when the store is unusable")
}

func TestRun_SkipDuplicates(t *testing.T) {
	store := newMemStore()
	store.known["https://example.com/old"] = true
	p := testPipeline(&stubFetcher{}, store)

	urls := []string{"https://example.com/old", "https://example.com/new"}
	result, err := p.Run(context.Background(), urls, Options{SkipDuplicates: true})
	require.NoError(t, err)

	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.SkippedCount)
	assert.Equal(t, 0, result.FailedCount)
	// Skips count as neither success nor failure in the rate.
	assert.InDelta(t, 100.0, result.SuccessRate(), 0.001)
}

// gateFetcher tracks the maximum number of concurrent Fetch calls.
type gateFetcher struct {
	mu      sync.Mutex
	current int
	peak    int
}

func (g *gateFetcher) Fetch(ctx context.Context, url string) (*fetch.Result, error) {
	g.mu.Lock()
	g.current++
	if g.current > g.peak {
		g.peak = g.current
	}
	g.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	g.mu.Lock()
	g.current--
	g.mu.Unlock()

	return &fetch.Result{StatusCode: 200, Body: []byte(testPage), ContentType: "text/html"}, nil
}

func TestRun_ConcurrencyCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.Ingestion.Concurrency = 3

	g := &gateFetcher{}
	p := New(cfg,
		WithFetcher(g),
		WithChunker(chunk.MustNew(chunk.Config{ChunkSize: 512, ChunkOverlap: 50})),
		WithEmbedder(&stubEmbedder{}),
		WithStore(newMemStore()),
	)

	urls := make([]string, 12)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/page-%d", i)
	}

	result, err := p.Run(context.Background(), urls, Options{})
	require.NoError(t, err)

	assert.Equal(t, 12, result.SuccessCount)
	assert.LessOrEqual(t, g.peak, 3, "in-flight URLs must never exceed the configured ceiling")
	assert.Greater(t, g.peak, 1, "the batch should actually run URLs in parallel")
}

// panicFetcher panics on a chosen URL.
type panicFetcher struct {
	panicOn string
}

func (p *panicFetcher) Fetch(ctx context.Context, url string) (*fetch.Result, error) {
	if url == p.panicOn {
		panic("fetcher bug")
	}
	return &fetch.Result{StatusCode: 200, Body: []byte(testPage), ContentType: "text/html"}, nil
}

func TestRun_PanicIsContained(t *testing.T) {
	p := testPipeline(nil, newMemStore())
	p.fetcher = &panicFetcher{panicOn: "https://example.com/boom"}

	urls := []string{
		"https://example.com/a",
		"https://example.com/boom",
		"https://example.com/b",
	}
	result, err := p.Run(context.Background(), urls, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.FailedURLs, 1)
	assert.Equal(t, "unknown", result.FailedURLs[0].URL)
	assert.Equal(t, pipeline.KindParse, result.FailedURLs[0].ErrorType)
	assert.Contains(t, result.FailedURLs[0].Message, "panic")
}

func TestRun_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := testPipeline(&stubFetcher{}, newMemStore())
	result, err := p.Run(ctx, []string{"https://example.com/a", "https://example.com/b"}, Options{})
	require.NoError(t, err)

	// Cancelled URLs surface as failures rather than vanishing.
	assert.Equal(t, 2, result.FailedCount+result.SuccessCount)
}

func TestResult_SuccessRate(t *testing.T) {
	tests := []struct {
		name    string
		success int
		failed  int
		skipped int
		want    float64
	}{
		{"all success", 10, 0, 0, 100.0},
		{"all failed", 0, 10, 0, 0.0},
		{"mixed", 3, 1, 0, 75.0},
		{"empty", 0, 0, 0, 0.0},
		{"only skips", 0, 0, 5, 0.0},
		{"skips excluded", 1, 1, 8, 50.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Result{SuccessCount: tt.success, FailedCount: tt.failed, SkippedCount: tt.skipped}
			assert.InDelta(t, tt.want, r.SuccessRate(), 0.001)
		})
	}
}
