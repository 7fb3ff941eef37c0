// Package fetch retrieves raw web documents over HTTP with bounded
// retry on transport failures.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/c360studio/webrag/pipeline"
)

const (
	defaultUserAgent      = "webrag/1.0 (+https://github.com/c360studio/webrag)"
	defaultMaxContentSize = 10 * 1024 * 1024 // 10MB
	maxRedirects          = 5
)

// Result contains a fetched document. A non-2xx status is an ordinary
// result: the caller classifies it, the fetcher never retries it.
type Result struct {
	Body        []byte
	StatusCode  int
	ContentType string
}

// Fetcher fetches web content with per-request timeouts and retry on
// transient network errors only.
type Fetcher struct {
	client         *http.Client
	userAgent      string
	maxContentSize int64
	retry          pipeline.RetryConfig
	logger         *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithMaxContentSize caps the response body size in bytes.
func WithMaxContentSize(n int64) Option {
	return func(f *Fetcher) { f.maxContentSize = n }
}

// WithRetryConfig sets the retry policy for transport errors.
func WithRetryConfig(cfg pipeline.RetryConfig) Option {
	return func(f *Fetcher) { f.retry = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// WithHTTPClient sets a custom HTTP client, replacing the default
// timeout and redirect policy.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// NewFetcher creates a web fetcher with the given per-request timeout.
func NewFetcher(timeout time.Duration, opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (max %d)", maxRedirects)
				}
				return nil
			},
		},
		userAgent:      defaultUserAgent,
		maxContentSize: defaultMaxContentSize,
		retry:          pipeline.DefaultRetryConfig(),
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// ValidateURL checks that a URL is absolute and uses http or https.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}

// Fetch retrieves the content at urlStr. Transport errors (connection
// reset, timeout) are retried per the configured policy; HTTP error
// statuses are returned as results without retry.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (*Result, error) {
	if err := ValidateURL(urlStr); err != nil {
		return nil, pipeline.NewFatal(pipeline.KindHTTP, err)
	}

	var result *Result
	err := pipeline.Do(ctx, f.retry, f.logger, "fetch", func() error {
		r, err := f.doFetch(ctx, urlStr)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.logger.Debug("Fetched URL",
		"url", urlStr,
		"status", result.StatusCode,
		"content_type", result.ContentType,
		"size", len(result.Body))

	return result, nil
}

func (f *Fetcher) doFetch(ctx context.Context, urlStr string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, pipeline.NewFatal(pipeline.KindHTTP, fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		// Network-level failures are the only transient fetch errors.
		return nil, pipeline.NewTransient(pipeline.KindHTTP, fmt.Errorf("fetch %s: %w", urlStr, err))
	}
	defer resp.Body.Close()

	result := &Result{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}

	limitReader := io.LimitReader(resp.Body, f.maxContentSize+1)
	body, err := io.ReadAll(limitReader)
	if err != nil {
		return nil, pipeline.NewTransient(pipeline.KindHTTP, fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > f.maxContentSize {
		return nil, pipeline.NewFatal(pipeline.KindHTTP, fmt.Errorf("content too large (exceeds %d bytes)", f.maxContentSize))
	}

	result.Body = body
	return result, nil
}
