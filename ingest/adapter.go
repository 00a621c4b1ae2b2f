// Package ingest implements the source adapters that fetch and normalize
// threat-intelligence records from external origins: REST/JSON or XML
// APIs, syndication feeds, and scraped web pages.
package ingest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"threatharvest/config"
	"threatharvest/core"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxRetries is the number of attempts per network call
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the initial backoff; it doubles per attempt
	DefaultRetryDelay = 2 * time.Second
	// DefaultTimeout bounds a single outbound request
	DefaultTimeout = 10 * time.Second

	// Default field names for API sources
	defaultTitleField = "title"
	defaultDescField  = "description"
	defaultDateField  = "published_at"
	defaultLinkField  = "url"
)

// Adapter fetches and normalizes records from one external origin.
// Fetch never surfaces transient failures to its caller: network errors
// are retried internally and an exhausted source yields an empty batch,
// so one broken source cannot abort a whole pass.
type Adapter interface {
	Name() string
	Type() core.SourceType
	Fetch(ctx context.Context) []core.RawRecord
}

// errMissingSelectors marks a webpage source configured without the
// mandatory item selector
var errMissingSelectors = errors.New("webpage source requires an item selector")

// FetchError reports a network or parse failure for one source after all
// retries were exhausted.
type FetchError struct {
	Source string
	Err    error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch from source %q failed: %v", e.Source, e.Err)
}

// Unwrap returns the underlying cause
func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchOptions carries the shared retry and timeout policy for all
// adapters of one service instance.
type FetchOptions struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// withDefaults fills unset options
func (o FetchOptions) withDefaults() FetchOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	return o
}

// baseSource provides the HTTP plumbing shared by all adapter kinds:
// the configured client, per-source rate limiting, and the bounded
// retry combinator.
type baseSource struct {
	name       string
	sourceType core.SourceType
	cfg        config.SourceConfig
	opts       FetchOptions
	client     *http.Client
	limiter    *rate.Limiter
	logger     *zap.SugaredLogger
}

func newBaseSource(name string, sourceType core.SourceType, cfg config.SourceConfig, opts FetchOptions, logger *zap.SugaredLogger) baseSource {
	opts = opts.withDefaults()

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return baseSource{
		name:       name,
		sourceType: sourceType,
		cfg:        cfg,
		opts:       opts,
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		limiter: limiter,
		logger:  logger,
	}
}

// Name returns the configured source name
func (b *baseSource) Name() string { return b.name }

// Type returns the adapter kind
func (b *baseSource) Type() core.SourceType { return b.sourceType }

// fetchWithRetry performs one logical GET with bounded retries and
// exponential backoff. It returns the response body, or a FetchError
// once every attempt has failed. Retrying is modeled here as an explicit
// combinator; errors never unwind across adapter boundaries.
func (b *baseSource) fetchWithRetry(ctx context.Context) ([]byte, error) {
	delay := b.opts.RetryDelay

	var lastErr error
	for attempt := 1; attempt <= b.opts.MaxRetries; attempt++ {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, &FetchError{Source: b.name, Err: err}
			}
		}

		body, err := b.doRequest(ctx)
		if err == nil {
			return body, nil
		}
		lastErr = err

		b.logger.Warnw("Request failed",
			"source", b.name,
			"attempt", attempt,
			"max_retries", b.opts.MaxRetries,
			"error", err)

		if attempt < b.opts.MaxRetries {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &FetchError{Source: b.name, Err: ctx.Err()}
			}
			delay *= 2
		}
	}

	b.logger.Errorw("Request failed after all retries",
		"source", b.name, "url", b.cfg.URL, "error", lastErr)
	return nil, &FetchError{Source: b.name, Err: lastErr}
}

// doRequest performs a single GET against the source URL with configured
// headers, query parameters, and API key placement.
func (b *baseSource) doRequest(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	query := url.Values{}
	for k, v := range b.cfg.Params {
		query.Set(k, v)
	}
	for k, v := range b.cfg.Headers {
		req.Header.Set(k, v)
	}

	if b.cfg.APIKey != "" {
		keyName := b.cfg.APIKeyName
		if b.cfg.APIKeyIn == "param" {
			if keyName == "" {
				keyName = "api_key"
			}
			query.Set(keyName, b.cfg.APIKey)
		} else {
			if keyName == "" {
				keyName = "X-API-Key"
			}
			req.Header.Set(keyName, b.cfg.APIKey)
		}
	}

	if encoded := query.Encode(); encoded != "" {
		if req.URL.RawQuery != "" {
			req.URL.RawQuery += "&" + encoded
		} else {
			req.URL.RawQuery = encoded
		}
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// matchesKeywords reports whether the lower-cased content contains any of
// the filter keywords. An empty filter list means no filtering.
func matchesKeywords(content string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lowered := strings.ToLower(content)
	for _, keyword := range keywords {
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// NewAdapter builds the adapter for one source definition. Unknown source
// types are a configuration error: the adapter cannot be constructed and
// must not be used.
func NewAdapter(name string, cfg config.SourceConfig, opts FetchOptions, logger *zap.SugaredLogger) (Adapter, error) {
	switch core.SourceType(cfg.Type) {
	case core.SourceTypeAPI:
		return NewAPISource(name, cfg, opts, logger)
	case core.SourceTypeRSS:
		return NewRSSSource(name, cfg, opts, logger)
	case core.SourceTypeWebpage:
		return NewWebpageSource(name, cfg, opts, logger)
	default:
		return nil, fmt.Errorf("unknown source type %q for source %q", cfg.Type, name)
	}
}

// BuildAdapters constructs adapters for every configured source, in
// deterministic name order.
func BuildAdapters(cfg *config.Config, logger *zap.SugaredLogger) ([]Adapter, error) {
	opts := FetchOptions{
		Timeout:    cfg.Fetch.Timeout,
		MaxRetries: cfg.Fetch.MaxRetries,
		RetryDelay: cfg.Fetch.RetryDelay,
	}

	names := make([]string, 0, len(cfg.Sources))
	for name := range cfg.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	adapters := make([]Adapter, 0, len(names))
	for _, name := range names {
		adapter, err := NewAdapter(name, cfg.Sources[name], opts, logger)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}
